package gekko

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hierarchyScene struct {
	prefab        *Prefab
	parent, child EntityUuid
}

func newHierarchyScene() hierarchyScene {
	s := hierarchyScene{prefab: NewPrefab(NewPrefabUuid()), parent: NewEntityUuid(), child: NewEntityUuid()}
	s.prefab.AddEntity(s.parent, TransformComponent{Position: mgl32.Vec3{10, 0, 0}, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}})
	s.prefab.AddEntity(s.child,
		TransformComponent{Position: mgl32.Vec3{10, 0, 5}, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}},
		LocalTransformComponent{Position: mgl32.Vec3{0, 0, 5}, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{1, 1, 1}},
		Parent{Entity: s.parent},
	)
	return s
}

func liveComponent[T any](t *testing.T, h *editorHarness, id EntityUuid) T {
	t.Helper()
	return componentOf[T](t, h.app.World(), h.live(t, id))
}

func TestObjectEditor_DragParentedEntity(t *testing.T) {
	scene := newHierarchyScene()
	h := newEditorHarness(t, nil, scene.prefab)
	h.open(t, scene.prefab.Id)

	ClickSelect(h.cmd, h.editor, h.live(t, scene.child))
	h.frame()
	require.Equal(t, []EntityUuid{scene.child}, h.selected(t))

	oe := NewObjectEditor(h.editor)
	require.NoError(t, oe.BeginDrag(h.cmd))
	assert.True(t, oe.Dragging())
	require.NoError(t, oe.DragTo(mgl32.Vec3{1, 0, 0}, mgl32.QuatIdent()))
	h.frame()

	assert.Equal(t, mgl32.Vec3{11, 0, 5}, liveComponent[TransformComponent](t, h, scene.child).Position)
	assert.Equal(t, mgl32.Vec3{1, 0, 5}, liveComponent[LocalTransformComponent](t, h, scene.child).Position)
	assert.Equal(t, 0, h.editor.UndoChain().Len())

	// Offsets are relative to where the drag started, not cumulative.
	require.NoError(t, oe.DragTo(mgl32.Vec3{2, 0, 0}, mgl32.QuatIdent()))
	require.NoError(t, oe.EndDrag())
	h.frame()
	assert.False(t, oe.Dragging())
	assert.Equal(t, mgl32.Vec3{12, 0, 5}, liveComponent[TransformComponent](t, h, scene.child).Position)
	assert.Equal(t, 1, h.editor.UndoChain().Len())
	assert.Equal(t, []EntityUuid{scene.child}, h.selected(t))

	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, mgl32.Vec3{10, 0, 5}, liveComponent[TransformComponent](t, h, scene.child).Position)
	assert.Equal(t, mgl32.Vec3{0, 0, 5}, liveComponent[LocalTransformComponent](t, h, scene.child).Position)
}

func TestObjectEditor_CancelDrag(t *testing.T) {
	scene := newHierarchyScene()
	h := newEditorHarness(t, nil, scene.prefab)
	h.open(t, scene.prefab.Id)
	ClickSelect(h.cmd, h.editor, h.live(t, scene.parent))
	h.frame()

	oe := NewObjectEditor(h.editor)
	assert.ErrorIs(t, oe.EndDrag(), ErrNotDragging)
	assert.ErrorIs(t, oe.DragTo(mgl32.Vec3{}, mgl32.QuatIdent()), ErrNotDragging)

	require.NoError(t, oe.BeginDrag(h.cmd))
	require.NoError(t, oe.DragTo(mgl32.Vec3{0, 3, 0}, mgl32.QuatIdent()))
	h.frame()
	assert.Equal(t, mgl32.Vec3{10, 3, 0}, liveComponent[TransformComponent](t, h, scene.parent).Position)

	require.NoError(t, oe.CancelDrag())
	h.frame()
	assert.Equal(t, mgl32.Vec3{10, 0, 0}, liveComponent[TransformComponent](t, h, scene.parent).Position)
	assert.Equal(t, 0, h.editor.UndoChain().Len())
	assert.ErrorIs(t, oe.CancelDrag(), ErrNotDragging)
}

func TestClickSelect(t *testing.T) {
	scene := newHierarchyScene()
	h := newEditorHarness(t, nil, scene.prefab)
	h.open(t, scene.prefab.Id)

	ClickSelect(h.cmd, h.editor, h.live(t, scene.parent))
	h.frame()
	assert.Equal(t, []EntityUuid{scene.parent}, h.selected(t))

	// Clicking a child of the selection keeps the selection.
	ClickSelect(h.cmd, h.editor, h.live(t, scene.child))
	h.frame()
	assert.Equal(t, []EntityUuid{scene.parent}, h.selected(t))

	ClearSelection(h.cmd)
	h.frame()
	assert.Empty(t, h.selected(t))

	ClickSelect(h.cmd, h.editor, h.live(t, scene.child))
	h.frame()
	assert.Equal(t, []EntityUuid{scene.child}, h.selected(t))

	ClickSelect(h.cmd, h.editor, h.live(t, scene.parent))
	h.frame()
	assert.Equal(t, []EntityUuid{scene.parent}, h.selected(t))
}

func TestSetParent(t *testing.T) {
	scene := newHierarchyScene()
	loose := NewEntityUuid()
	scene.prefab.AddEntity(loose, TransformComponent{Position: mgl32.Vec3{14, 0, 0}, Rotation: mgl32.QuatIdent(), Scale: mgl32.Vec3{2, 2, 2}})

	h := newEditorHarness(t, nil, scene.prefab)
	h.open(t, scene.prefab.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: loose}, {Uuid: scene.child}})
	require.NoError(t, err)
	require.NoError(t, SetParent(tx, loose, scene.child))
	require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
	h.frame()

	assert.Equal(t, Parent{Entity: scene.child}, liveComponent[Parent](t, h, loose))
	local := liveComponent[LocalTransformComponent](t, h, loose)
	assert.Equal(t, mgl32.Vec3{4, 0, -5}, local.Position)
	assert.Equal(t, mgl32.Vec3{2, 2, 2}, local.Scale)

	tx, err = h.editor.BeginTransaction([]TransactionEntity{{Uuid: loose}})
	require.NoError(t, err)
	assert.Error(t, SetParent(tx, loose, scene.parent))
}

func TestObjectEditorModule(t *testing.T) {
	app := NewApp()
	assert.Panics(t, func() { app.UseModules(ObjectEditorModule{}) })

	app = NewApp()
	editor := NewEditorState(NewAssetLoader(NewMemoryStorage(), newTestRegistry(), nil), newTestRegistry(), nil, nil, nil)
	app.UseModules(TimeModule{}, EditorModule{Editor: editor}, ObjectEditorModule{})
	oe := Resource[ObjectEditor](app.Commands())
	require.NotNil(t, oe)
	assert.False(t, oe.Dragging())
}
