package gekko

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransaction_BeginResolvesEntities(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{
		{Handle: h.live(t, scene.other)},
		{Uuid: scene.own},
		{Uuid: scene.own},
		{Uuid: NewEntityUuid()},
		{Handle: EntityId(9999)},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []EntityUuid{scene.own, scene.other}, tx.Entities())

	pos, ok := TransactionComponent[testPosition](tx, scene.own)
	require.True(t, ok)
	assert.Equal(t, testPosition{X: 1}, pos)
	_, ok = TransactionComponent[testPosition](tx, scene.other)
	assert.False(t, ok)

	// Scratch handles are private: editing them leaves the live world alone.
	sh, ok := tx.Handle(scene.own)
	require.True(t, ok)
	assert.True(t, tx.World().HasEntity(sh))
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 2}))
	assert.Equal(t, testPosition{X: 1}, livePosition(t, h, scene.own))
}

func TestTransaction_SetComponentErrors(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	assert.ErrorIs(t, tx.SetComponent(scene.other, testPosition{}), ErrNotInTransaction)
	assert.ErrorIs(t, tx.SetComponent(scene.own, struct{ Unregistered bool }{}), ErrUnknownComponentType)
}

func TestTransaction_FromSelected(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	h.app.World().setComponent(h.live(t, scene.inherited), EditorSelectedComponent{})
	tx, err := h.editor.CreateTransactionFromSelected(h.cmd)
	require.NoError(t, err)
	assert.Equal(t, []EntityUuid{scene.inherited}, tx.Entities())
}

func TestTransaction_UpdateIsIncrementalAndUnrecorded(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)

	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 2}))
	require.NoError(t, h.editor.UpdateTransaction(tx, KeepSelection))
	h.frame()
	assert.Equal(t, testPosition{X: 2}, livePosition(t, h, scene.own))
	assert.Equal(t, 0, h.editor.UndoChain().Len())

	// Nothing changed since the last update, so nothing is queued.
	require.NoError(t, h.editor.UpdateTransaction(tx, KeepSelection))
	assert.Equal(t, 0, h.editor.PendingOperations())

	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 3}))
	require.NoError(t, h.editor.UpdateTransaction(tx, KeepSelection))
	h.frame()
	assert.Equal(t, testPosition{X: 3}, livePosition(t, h, scene.own))
	assert.Empty(t, h.selected(t))

	// Commit has nothing left to apply but still records the whole edit and
	// selects what it touched.
	require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
	h.frame()
	assert.Equal(t, 1, h.editor.UndoChain().Len())
	assert.Equal(t, []EntityUuid{scene.own}, h.selected(t))

	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, testPosition{X: 1}, livePosition(t, h, scene.own))
}

func TestTransaction_CancelRestores(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)
	h.app.World().setComponent(h.live(t, scene.other), EditorSelectedComponent{})

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}, {Uuid: scene.other}})
	require.NoError(t, err)
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 9}))
	tx.RemoveEntity(scene.other)
	require.NoError(t, h.editor.UpdateTransaction(tx, KeepSelection))
	h.frame()
	assert.Equal(t, testPosition{X: 9}, livePosition(t, h, scene.own))
	_, spawned := h.editor.Opened().LiveHandle(scene.other)
	assert.False(t, spawned)

	// Edits after the last update never reached the editor and are dropped.
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 10}))
	require.NoError(t, h.editor.CancelTransaction(tx))
	h.frame()

	assert.Equal(t, testPosition{X: 1}, livePosition(t, h, scene.own))
	assert.Equal(t, 5, componentOf[testHealth](t, h.app.World(), h.live(t, scene.other)).Value)
	assert.Equal(t, 0, h.editor.UndoChain().Len())
	assert.True(t, tx.Done())

	assert.ErrorIs(t, h.editor.CancelTransaction(tx), ErrTransactionDone)
	assert.ErrorIs(t, h.editor.CommitTransaction(tx, SelectTouched), ErrTransactionDone)
	assert.ErrorIs(t, h.editor.UpdateTransaction(tx, SelectTouched), ErrTransactionDone)
}

func TestTransaction_CancelWithoutUpdateIsNoop(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 9}))
	require.NoError(t, h.editor.CancelTransaction(tx))
	assert.Equal(t, 0, h.editor.PendingOperations())
}

func TestTransaction_OwnershipTransferCommitsPrevious(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	first, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.NoError(t, first.SetComponent(scene.own, testPosition{X: 5}))

	second, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.other}})
	require.NoError(t, err)
	assert.True(t, first.Done())
	assert.False(t, second.Done())

	require.NoError(t, second.SetComponent(scene.other, testHealth{Value: 6}))
	require.NoError(t, h.editor.CommitTransaction(second, KeepSelection))
	h.frame()

	assert.Equal(t, testPosition{X: 5}, livePosition(t, h, scene.own))
	assert.Equal(t, 6, componentOf[testHealth](t, h.app.World(), h.live(t, scene.other)).Value)
	assert.Equal(t, 2, h.editor.UndoChain().Len())
	assert.ErrorIs(t, h.editor.CommitTransaction(first, SelectTouched), ErrTransactionDone)

	// Each transaction is its own undo step.
	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, 5, componentOf[testHealth](t, h.app.World(), h.live(t, scene.other)).Value)
	assert.Equal(t, testPosition{X: 5}, livePosition(t, h, scene.own))
}

func TestTransaction_HandoverOnSameEntityKeepsFirstEdit(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	first, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.NoError(t, first.SetComponent(scene.own, testPosition{X: 5}))
	require.NoError(t, h.editor.UpdateTransaction(first, KeepSelection))

	// No frame ran yet: the second transaction must still see X=5.
	second, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.True(t, first.Done())
	pos, ok := TransactionComponent[testPosition](second, scene.own)
	require.True(t, ok)
	assert.Equal(t, testPosition{X: 5}, pos)

	pos.Y = 3
	require.NoError(t, second.SetComponent(scene.own, pos))
	require.NoError(t, h.editor.CommitTransaction(second, KeepSelection))
	h.frame()
	assert.Equal(t, testPosition{X: 5, Y: 3}, livePosition(t, h, scene.own))
	assert.Equal(t, 2, h.editor.UndoChain().Len())

	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, testPosition{X: 5}, livePosition(t, h, scene.own))

	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, testPosition{X: 1}, livePosition(t, h, scene.own))
}

func TestTransaction_BeginSeesQueuedUndo(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 5}))
	require.NoError(t, h.editor.CommitTransaction(tx, KeepSelection))
	h.editor.EnqueueUndo()

	next, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	pos, ok := TransactionComponent[testPosition](next, scene.own)
	require.True(t, ok)
	assert.Equal(t, testPosition{X: 1}, pos)
}

func TestTransaction_UpdateTakesOwnership(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	first, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	second, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.other}})
	require.NoError(t, err)
	require.True(t, first.Done())

	// first committed nothing, so it leaves no undo step.
	require.NoError(t, second.SetComponent(scene.other, testHealth{Value: 1}))
	require.NoError(t, h.editor.UpdateTransaction(second, KeepSelection))
	h.frame()
	assert.Equal(t, 0, h.editor.UndoChain().Len())
}

func TestTransaction_AddEntityThroughEmptyTransaction(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.CreateEmptyTransaction()
	require.NoError(t, err)
	assert.Empty(t, tx.Entities())

	spawned := tx.AddEntity(testPosition{X: 3}, NameComponent{Name: "spawned"})
	require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
	h.frame()

	assert.Equal(t, testPosition{X: 3}, livePosition(t, h, spawned))
	assert.Equal(t, []EntityUuid{spawned}, h.selected(t))
	uncooked := h.editor.Opened().Uncooked
	assert.Contains(t, uncooked.Entities, spawned)
	assert.Equal(t, 4, h.app.World().EntityCount())

	h.editor.EnqueueUndo()
	h.frame()
	_, ok := h.editor.Opened().LiveHandle(spawned)
	assert.False(t, ok)
	assert.NotContains(t, h.editor.Opened().Uncooked.Entities, spawned)
	assert.Equal(t, 3, h.app.World().EntityCount())
}

func TestTransaction_RemoveComponent(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	assert.True(t, RemoveTransactionComponent[NameComponent](tx, scene.own))
	assert.False(t, RemoveTransactionComponent[NameComponent](tx, scene.own))
	require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
	h.frame()

	_, named := h.app.World().getComponentValue(h.live(t, scene.own), reflectTypeOf[NameComponent]())
	assert.False(t, named)
}

func TestTransaction_UndoIsInverse(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	original := h.open(t, scene.root.Id).Cooked

	steps := []func(tx *Transaction){
		func(tx *Transaction) { require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 2})) },
		func(tx *Transaction) { tx.RemoveEntity(scene.other) },
		func(tx *Transaction) { tx.AddEntity(testHealth{Value: 1}) },
		func(tx *Transaction) { require.NoError(t, tx.SetComponent(scene.inherited, testPosition{Y: -1})) },
		func(tx *Transaction) { require.NoError(t, tx.SetComponent(scene.own, testHealth{Value: 4})) },
	}
	for _, step := range steps {
		tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}, {Uuid: scene.other}, {Uuid: scene.inherited}})
		require.NoError(t, err)
		step(tx)
		require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
		h.frame()
	}
	require.Equal(t, len(steps), h.editor.UndoChain().Len())
	edited := h.editor.Opened().Cooked

	for range steps {
		h.editor.EnqueueUndo()
	}
	h.frame()
	diff, err := DiffWorlds(h.registry, original.World, original.Entities, h.editor.Opened().Cooked.World, h.editor.Opened().Cooked.Entities)
	require.NoError(t, err)
	assert.True(t, diff.IsEmpty(), "undo left changes behind: %+v", diff)
	assert.Equal(t, 3, h.app.World().EntityCount())

	for range steps {
		h.editor.EnqueueRedo()
	}
	h.frame()
	diff, err = DiffWorlds(h.registry, edited.World, edited.Entities, h.editor.Opened().Cooked.World, h.editor.Opened().Cooked.Entities)
	require.NoError(t, err)
	assert.True(t, diff.IsEmpty(), "redo did not reach the edited state: %+v", diff)
}

func TestTransaction_CommitAfterUndoTruncatesRedo(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	commit := func(x float32) {
		tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
		require.NoError(t, err)
		require.NoError(t, tx.SetComponent(scene.own, testPosition{X: x}))
		require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
		h.frame()
	}
	commit(2)
	commit(3)
	h.editor.EnqueueUndo()
	h.frame()
	commit(4)

	assert.Equal(t, 2, h.editor.UndoChain().Len())
	assert.Equal(t, 2, h.editor.UndoChain().Position())
	h.editor.EnqueueRedo()
	h.frame()
	assert.Equal(t, testPosition{X: 4}, livePosition(t, h, scene.own))

	h.editor.EnqueueUndo()
	h.frame()
	assert.Equal(t, testPosition{X: 2}, livePosition(t, h, scene.own))
}
