package gekko

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// EditorSelectedComponent marks a live entity as selected by the object editor
type EditorSelectedComponent struct{}

var ErrNotDragging = errors.New("no drag in progress")

// ObjectEditor turns interactive transform drags of the selected live
// entities into transactions: one per drag, updated while the drag moves and
// committed when it ends.
type ObjectEditor struct {
	editor *EditorState

	drag  *Transaction
	start map[EntityUuid]TransformComponent
}

type ObjectEditorModule struct{}

func (m ObjectEditorModule) Install(app *App, cmd *Commands) {
	editor := Resource[EditorState](cmd)
	if editor == nil {
		panic("ObjectEditorModule requires the EditorModule to be installed first")
	}
	cmd.AddResources(NewObjectEditor(editor))
}

func NewObjectEditor(editor *EditorState) *ObjectEditor {
	return &ObjectEditor{editor: editor}
}

func (o *ObjectEditor) Dragging() bool {
	return o.drag != nil && !o.drag.Done()
}

// BeginDrag opens a transaction over the current selection and remembers
// where every selected entity started.
func (o *ObjectEditor) BeginDrag(cmd *Commands) error {
	tx, err := o.editor.CreateTransactionFromSelected(cmd)
	if err != nil {
		return err
	}
	o.drag = tx
	o.start = make(map[EntityUuid]TransformComponent)
	for _, id := range tx.Entities() {
		if tr, ok := TransactionComponent[TransformComponent](tx, id); ok {
			o.start[id] = tr
		}
	}
	return nil
}

// DragTo moves every dragged entity to its start position plus offset and
// rotates it by rotation. Parented entities get a matching local transform so
// the hierarchy system keeps them where they were dropped.
func (o *ObjectEditor) DragTo(offset mgl32.Vec3, rotation mgl32.Quat) error {
	if !o.Dragging() {
		return ErrNotDragging
	}
	state := o.editor.Opened()
	if state == nil {
		return ErrNoPrefabOpen
	}

	for _, id := range sortedUuidKeys(o.start) {
		start := o.start[id]
		world := TransformComponent{
			Position: start.Position.Add(offset),
			Rotation: rotation.Mul(start.Rotation).Normalize(),
			Scale:    start.Scale,
		}
		if err := o.drag.SetComponent(id, world); err != nil {
			return err
		}

		parent, ok := TransactionComponent[Parent](o.drag, id)
		if !ok {
			continue
		}
		parentWorld, ok := o.parentTransform(state, parent.Entity)
		if !ok {
			o.editor.logger.Warnf("object editor: parent %s of %s has no transform", parent.Entity, id)
			continue
		}
		if err := o.drag.SetComponent(id, localFromWorld(parentWorld, world)); err != nil {
			return err
		}
	}
	return o.editor.UpdateTransaction(o.drag, KeepSelection)
}

// EndDrag commits the drag as one undo step.
func (o *ObjectEditor) EndDrag() error {
	if !o.Dragging() {
		return ErrNotDragging
	}
	tx := o.drag
	o.drag, o.start = nil, nil
	return o.editor.CommitTransaction(tx, SelectTouched)
}

// CancelDrag puts everything back where the drag found it.
func (o *ObjectEditor) CancelDrag() error {
	if !o.Dragging() {
		return ErrNotDragging
	}
	tx := o.drag
	o.drag, o.start = nil, nil
	return o.editor.CancelTransaction(tx)
}

// parentTransform prefers the scratch copy when the parent is dragged too.
func (o *ObjectEditor) parentTransform(state *OpenedPrefabState, parent EntityUuid) (TransformComponent, bool) {
	if tr, ok := TransactionComponent[TransformComponent](o.drag, parent); ok {
		return tr, true
	}
	h, ok := state.Cooked.Entities[parent]
	if !ok {
		return TransformComponent{}, false
	}
	v, ok := state.Cooked.World.getComponentValue(h, transformType)
	if !ok {
		return TransformComponent{}, false
	}
	return v.(TransformComponent), true
}

// SetParent links child under parent inside tx, keeping the child's world
// transform.
func SetParent(tx *Transaction, child, parent EntityUuid) error {
	childWorld, ok := TransactionComponent[TransformComponent](tx, child)
	if !ok {
		return fmt.Errorf("set parent: child %s has no transform", child)
	}
	parentWorld, ok := TransactionComponent[TransformComponent](tx, parent)
	if !ok {
		return fmt.Errorf("set parent: parent %s has no transform", parent)
	}
	if err := tx.SetComponent(child, Parent{Entity: parent}); err != nil {
		return err
	}
	return tx.SetComponent(child, localFromWorld(parentWorld, childWorld))
}

func localFromWorld(parentWorld, world TransformComponent) LocalTransformComponent {
	diff := world.Position.Sub(parentWorld.Position)
	localPos := parentWorld.Rotation.Conjugate().Rotate(diff)
	return LocalTransformComponent{
		Position: divVec3(localPos, parentWorld.Scale),
		Rotation: parentWorld.Rotation.Conjugate().Mul(world.Rotation).Normalize(),
		Scale:    divVec3(world.Scale, parentWorld.Scale),
	}
}

// divVec3 divides component-wise; a zero divisor yields zero.
func divVec3(a, b mgl32.Vec3) mgl32.Vec3 {
	var res mgl32.Vec3
	for i := range res {
		if b[i] != 0 {
			res[i] = a[i] / b[i]
		}
	}
	return res
}

// ClickSelect handles a click on live entity h. Clicking a selected entity,
// or a descendant of one, keeps the selection; anything else replaces it with
// h. Like every Commands edit it lands on the next flush.
func ClickSelect(cmd *Commands, editor *EditorState, h EntityId) {
	if _, ok := findSelectedAncestor(cmd, editor.Opened(), h); ok {
		return
	}
	ClearSelection(cmd)
	cmd.AddComponents(h, EditorSelectedComponent{})
}

// ClearSelection is a click on empty space.
func ClearSelection(cmd *Commands) {
	MakeQuery1[EditorSelectedComponent](cmd).Map(func(eid EntityId, _ *EditorSelectedComponent) bool {
		cmd.RemoveComponents(eid, EditorSelectedComponent{})
		return true
	})
}

// findSelectedAncestor walks up the parent chain of a live entity and returns
// the first selected one, h itself included. Without an opened prefab only
// h is checked.
func findSelectedAncestor(cmd *Commands, state *OpenedPrefabState, h EntityId) (EntityId, bool) {
	world := cmd.app.ecs
	seen := make(set[EntityId])
	for {
		if _, loop := seen[h]; loop {
			return 0, false
		}
		seen[h] = struct{}{}

		if _, ok := world.getComponentValue(h, reflectTypeOf[EditorSelectedComponent]()); ok {
			return h, true
		}
		if state == nil {
			return 0, false
		}
		v, ok := world.getComponentValue(h, parentType)
		if !ok {
			return 0, false
		}
		if h, ok = state.LiveHandle(v.(Parent).Entity); !ok {
			return 0, false
		}
	}
}
