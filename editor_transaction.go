package gekko

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrTransactionDone  = errors.New("transaction already committed or cancelled")
	ErrNotInTransaction = errors.New("entity is not part of the transaction")
)

// TransactionEntity names an entity to edit. Either field may be left zero:
// the uuid is resolved from the live handle when missing.
type TransactionEntity struct {
	Handle EntityId
	Uuid   EntityUuid
}

// Transaction is an isolated edit scope over a subset of the opened prefab.
// Callers mutate its scratch world; the editor only ever sees the diffs.
//
// Three snapshots are kept: before (as the transaction began), applied (what
// the persistent state currently reflects) and after (the scratch world).
// Update sends applied->after, commit records before->after, cancel sends
// applied->before.
type Transaction struct {
	id     TransactionId
	editor *EditorState

	before    *Ecs
	beforeIds map[EntityUuid]EntityId

	applied    *Ecs
	appliedIds map[EntityUuid]EntityId

	after    *Ecs
	afterIds map[EntityUuid]EntityId

	policy SelectionPolicy
	done   bool
}

func (tx *Transaction) Id() TransactionId { return tx.id }
func (tx *Transaction) Done() bool        { return tx.done }

// Entities lists the uuids currently in the scratch world.
func (tx *Transaction) Entities() []EntityUuid {
	return sortedUuidKeys(tx.afterIds)
}

// World exposes the scratch world for queries. Handles in it are private to
// the transaction.
func (tx *Transaction) World() *Ecs {
	return tx.after
}

func (tx *Transaction) Handle(id EntityUuid) (EntityId, bool) {
	h, ok := tx.afterIds[id]
	return h, ok
}

// AddEntity creates an entity with a fresh uuid in the scratch world.
func (tx *Transaction) AddEntity(components ...any) EntityUuid {
	id := NewEntityUuid()
	tx.afterIds[id] = tx.after.addEntity(components...)
	return id
}

func (tx *Transaction) RemoveEntity(id EntityUuid) {
	if h, ok := tx.afterIds[id]; ok {
		tx.after.DeleteEntities(h)
		delete(tx.afterIds, id)
	}
}

// SetComponent adds or overwrites a registered component on an entity of the
// transaction.
func (tx *Transaction) SetComponent(id EntityUuid, value any) error {
	h, ok := tx.afterIds[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotInTransaction, id)
	}
	if _, ok := tx.editor.registry.TypeOf(value); !ok {
		return fmt.Errorf("%w: %T", ErrUnknownComponentType, value)
	}
	tx.after.setComponent(h, value)
	return nil
}

// TransactionComponent returns a copy of the T component of an entity in the
// scratch world.
func TransactionComponent[T any](tx *Transaction, id EntityUuid) (T, bool) {
	var zero T
	h, ok := tx.afterIds[id]
	if !ok {
		return zero, false
	}
	v, ok := tx.after.getComponentValue(h, reflect.TypeOf(zero))
	if !ok {
		return zero, false
	}
	return v.(T), true
}

func RemoveTransactionComponent[T any](tx *Transaction, id EntityUuid) bool {
	h, ok := tx.afterIds[id]
	if !ok {
		return false
	}
	var zero T
	return tx.after.removeComponentType(h, reflect.TypeOf(zero))
}

// BeginTransaction snapshots the requested entities of the opened cooked
// prefab. Entities that cannot be resolved are skipped with a warning.
//
// A different live transaction is committed first, and the snapshot includes
// every diff still waiting in the queue, so the new transaction starts from
// what the editor will show once the queue drains.
func (e *EditorState) BeginTransaction(entities []TransactionEntity) (*Transaction, error) {
	state := e.opened.Load()
	if state == nil {
		return nil, ErrNoPrefabOpen
	}

	tx := &Transaction{id: newTransactionId(), editor: e}
	if e.live != nil {
		tx.policy = e.live.policy
	}
	if err := e.claimTransaction(tx, tx.policy); err != nil {
		return nil, err
	}
	cooked, err := e.pendingCooked(state)
	if err != nil {
		e.live = nil
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	var ids []EntityUuid
	seen := make(set[EntityUuid])
	for _, te := range entities {
		id := te.Uuid
		if id == (EntityUuid{}) {
			var ok bool
			if id, ok = state.LiveUuid(te.Handle); !ok {
				e.logger.Warnf("transaction: live entity %d does not belong to prefab %s", te.Handle, state.Uuid)
				continue
			}
		}
		if _, ok := cooked.Entities[id]; !ok {
			e.logger.Warnf("transaction: entity %s is not in prefab %s", id, state.Uuid)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	tx.before, tx.beforeIds = e.snapshot(cooked, ids)
	tx.applied, tx.appliedIds = e.snapshot(cooked, ids)
	tx.after, tx.afterIds = e.snapshot(cooked, ids)
	e.logger.Debugf("transaction %s began with %d entities", tx.id, len(ids))
	return tx, nil
}

// pendingCooked replays the queued diffs, undos and redos over a copy of the
// opened cooked prefab. Opens, resets and hot reloads are not predicted.
func (e *EditorState) pendingCooked(state *OpenedPrefabState) (*CookedPrefab, error) {
	cooked := state.Cooked
	chain := e.undo.clone()
	apply := func(diff WorldDiff) error {
		next, err := ApplyToCooked(e.registry, cooked, diff)
		if err != nil {
			return err
		}
		cooked = next
		return nil
	}
	for _, op := range e.ops {
		var err error
		switch op.kind {
		case opDiff:
			if !op.diffs.IsEmpty() {
				err = apply(op.diffs.Apply)
			}
			if !op.record.IsEmpty() {
				chain.Push(op.record)
			}
		case opUndo:
			if d := chain.StepBack(); d != nil {
				err = apply(d.Revert)
			}
		case opRedo:
			if d := chain.StepForward(); d != nil {
				err = apply(d.Apply)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return cooked, nil
}

// CreateTransactionFromSelected begins a transaction over every selected live
// entity of the opened prefab.
func (e *EditorState) CreateTransactionFromSelected(cmd *Commands) (*Transaction, error) {
	state := e.opened.Load()
	if state == nil {
		return nil, ErrNoPrefabOpen
	}
	var entities []TransactionEntity
	for _, h := range MakeQuery1[EditorSelectedComponent](cmd).Collect() {
		if id, ok := state.LiveUuid(h); ok {
			entities = append(entities, TransactionEntity{Handle: h, Uuid: id})
		}
	}
	return e.BeginTransaction(entities)
}

// CreateEmptyTransaction begins a transaction that starts with no entities,
// typically to spawn new ones.
func (e *EditorState) CreateEmptyTransaction() (*Transaction, error) {
	return e.BeginTransaction(nil)
}

func (e *EditorState) snapshot(cooked *CookedPrefab, ids []EntityUuid) (*Ecs, map[EntityUuid]EntityId) {
	world := NewEcs()
	handles := make([]EntityId, 0, len(ids))
	for _, id := range ids {
		handles = append(handles, cooked.Entities[id])
	}
	remap := cooked.World.CloneEntitiesInto(world, handles, e.registry, nil)

	res := make(map[EntityUuid]EntityId, len(ids))
	for _, id := range ids {
		res[id] = remap[cooked.Entities[id]]
	}
	return world, res
}

// claimTransaction makes tx the live transaction. A different live
// transaction is committed first with policy.
func (e *EditorState) claimTransaction(tx *Transaction, policy SelectionPolicy) error {
	if tx.done {
		return ErrTransactionDone
	}
	if e.live != nil && e.live.id != tx.id {
		prev := e.live
		e.logger.Debugf("transaction %s takes over from %s", tx.id, prev.id)
		if err := e.finishCommit(prev, policy); err != nil {
			return err
		}
	}
	e.live = tx
	return nil
}

// UpdateTransaction pushes the changes made since the last update to the
// editor without recording an undo step.
func (e *EditorState) UpdateTransaction(tx *Transaction, policy SelectionPolicy) error {
	if err := e.claimTransaction(tx, policy); err != nil {
		return err
	}
	tx.policy = policy

	pending, err := NewTransactionDiffs(e.registry, tx.applied, tx.appliedIds, tx.after, tx.afterIds)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.id, err)
	}
	if pending.IsEmpty() {
		return nil
	}
	e.enqueue(editorOp{kind: opDiff, diffs: pending, policy: policy})
	tx.applied, tx.appliedIds = e.cloneScratch(tx.after, tx.afterIds)
	return nil
}

// CommitTransaction applies whatever the last update left out and records the
// whole transaction as one undo step.
func (e *EditorState) CommitTransaction(tx *Transaction, policy SelectionPolicy) error {
	if err := e.claimTransaction(tx, policy); err != nil {
		return err
	}
	return e.finishCommit(tx, policy)
}

func (e *EditorState) finishCommit(tx *Transaction, policy SelectionPolicy) error {
	pending, err := NewTransactionDiffs(e.registry, tx.applied, tx.appliedIds, tx.after, tx.afterIds)
	if err != nil {
		return fmt.Errorf("commit transaction %s: %w", tx.id, err)
	}
	full, err := NewTransactionDiffs(e.registry, tx.before, tx.beforeIds, tx.after, tx.afterIds)
	if err != nil {
		return fmt.Errorf("commit transaction %s: %w", tx.id, err)
	}

	tx.done = true
	if e.live == tx {
		e.live = nil
	}
	if full.IsEmpty() && pending.IsEmpty() {
		return nil
	}

	op := editorOp{kind: opDiff, policy: policy}
	if !pending.IsEmpty() {
		op.diffs = pending
	}
	if !full.IsEmpty() {
		op.record = full
	}
	e.enqueue(op)
	e.logger.Debugf("transaction %s committed (%d entities changed)", tx.id, len(full.Apply.Entities))
	return nil
}

// CancelTransaction returns the persistent state to where it was when tx
// began. Nothing is recorded in the undo chain.
func (e *EditorState) CancelTransaction(tx *Transaction) error {
	if tx.done {
		return ErrTransactionDone
	}
	revert, err := NewTransactionDiffs(e.registry, tx.before, tx.beforeIds, tx.applied, tx.appliedIds)
	if err != nil {
		return fmt.Errorf("cancel transaction %s: %w", tx.id, err)
	}

	tx.done = true
	if e.live == tx {
		e.live = nil
	}
	if revert.IsEmpty() {
		return nil
	}
	e.enqueue(editorOp{kind: opDiff, diffs: revert.Reverse(), policy: KeepSelection})
	return nil
}

func (e *EditorState) cloneScratch(world *Ecs, ids map[EntityUuid]EntityId) (*Ecs, map[EntityUuid]EntityId) {
	dst := NewEcs()
	handles := make([]EntityId, 0, len(ids))
	for _, id := range sortedUuidKeys(ids) {
		handles = append(handles, ids[id])
	}
	remap := world.CloneEntitiesInto(dst, handles, e.registry, nil)

	res := make(map[EntityUuid]EntityId, len(ids))
	for id, h := range ids {
		res[id] = remap[h]
	}
	return dst, res
}
