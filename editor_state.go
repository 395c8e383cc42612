package gekko

import (
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

var ErrNoPrefabOpen = errors.New("no prefab is open")

// ResetPolicy decides which live handles a respawn hands out.
type ResetPolicy int

const (
	// ResetPreserveHandles gives every respawned entity the live handle its
	// uuid had before the reset, when that handle is free.
	ResetPreserveHandles ResetPolicy = iota
	ResetReassignHandles
)

// SelectionPolicy decides what is selected after a diff is applied.
type SelectionPolicy int

const (
	SelectTouched SelectionPolicy = iota
	KeepSelection
)

func (p SelectionPolicy) String() string {
	switch p {
	case SelectTouched:
		return "select-touched"
	case KeepSelection:
		return "keep-selection"
	}
	return fmt.Sprintf("SelectionPolicy(%d)", int(p))
}

// OpenedPrefabState is an immutable snapshot of the prefab being edited and
// of its live instantiation. It is replaced wholesale, never mutated, so a
// reader holding an older snapshot keeps a consistent view.
type OpenedPrefabState struct {
	Uuid     PrefabUuid
	Version  uint32
	Uncooked *Prefab
	Cooked   *CookedPrefab
	// RefOwners maps inherited entities to the root's direct reference.
	RefOwners map[EntityUuid]PrefabUuid
	// Base is the cook without the root's overrides; edits to inherited
	// entities are stored relative to it.
	Base *CookedPrefab
	// PrefabToWorld maps cooked-world handles to live-world handles and
	// WorldToPrefab is its inverse.
	PrefabToWorld map[EntityId]EntityId
	WorldToPrefab map[EntityId]EntityId

	cookedUuids map[EntityId]EntityUuid
}

// LiveHandle resolves the live handle currently spawned for an entity uuid.
func (s *OpenedPrefabState) LiveHandle(id EntityUuid) (EntityId, bool) {
	ch, ok := s.Cooked.Entities[id]
	if !ok {
		return 0, false
	}
	h, ok := s.PrefabToWorld[ch]
	return h, ok
}

// LiveUuid resolves the entity uuid behind a live handle.
func (s *OpenedPrefabState) LiveUuid(h EntityId) (EntityUuid, bool) {
	ch, ok := s.WorldToPrefab[h]
	if !ok {
		return EntityUuid{}, false
	}
	id, ok := s.cookedUuids[ch]
	return id, ok
}

// successor copies the prefab data of s into a state that is not spawned yet.
func (s *OpenedPrefabState) successor(uncooked *Prefab, cooked *CookedPrefab) *OpenedPrefabState {
	return &OpenedPrefabState{
		Uuid:      s.Uuid,
		Version:   s.Version,
		Uncooked:  uncooked,
		Cooked:    cooked,
		RefOwners: s.RefOwners,
		Base:      s.Base,
	}
}

// EditorState owns the opened prefab, the undo chain, the pending operation
// queue and the live transaction slot. It is not safe for concurrent use; all
// mutations happen from ProcessOperations or from systems of the same frame.
type EditorState struct {
	transport AssetTransport
	registry  *ComponentRegistry
	cooker    *PrefabCooker
	logger    Logger
	metrics   *EditorMetrics

	ResetPolicy ResetPolicy

	opened     atomic.Pointer[OpenedPrefabState]
	rootHandle LoadHandle
	hasRoot    bool

	undo *UndoChain
	ops  []editorOp
	live *Transaction
}

func NewEditorState(transport AssetTransport, registry *ComponentRegistry, logger Logger, metrics *EditorMetrics, cfg *EditorConfig) *EditorState {
	if logger == nil {
		logger = NewNopLogger()
	}
	if cfg == nil {
		cfg = DefaultEditorConfig()
	}
	cooker := NewPrefabCooker(transport, registry, logger, metrics)
	cooker.Verify = cfg.Cook.Verify

	return &EditorState{
		transport:   transport,
		registry:    registry,
		cooker:      cooker,
		logger:      logger,
		metrics:     metrics,
		ResetPolicy: cfg.Editor.ResetPolicy(),
		undo:        NewUndoChain(cfg.Editor.UndoLimit),
	}
}

// Opened returns the current snapshot, or nil when nothing is open.
func (e *EditorState) Opened() *OpenedPrefabState {
	return e.opened.Load()
}

func (e *EditorState) UndoChain() *UndoChain {
	return e.undo
}

// Open cooks the prefab, takes a private copy of its source and respawns the
// live world from the cooked result. Opening a different prefab clears the
// undo history; re-opening the same one keeps it.
func (e *EditorState) Open(cmd *Commands, id PrefabUuid) error {
	res, err := e.cooker.Cook(id)
	if err != nil {
		e.logger.Errorf("open prefab %s: %v", id, err)
		return fmt.Errorf("open prefab %s: %w", id, err)
	}

	// Applying the empty diff is what gives the editor its own copy of the
	// source tree, independent of the instance the transport holds.
	uncooked, err := ApplyToPrefab(e.registry, e.logger, res.Root, WorldDiff{}, res.RefOwners, res.Base)
	if err != nil {
		e.transport.Release(res.RootHandle)
		return fmt.Errorf("open prefab %s: %w", id, err)
	}

	prev := e.opened.Load()
	if prev == nil || prev.Uuid != id {
		e.undo.Clear()
		e.live = nil
		e.metrics.observeUndo(e.undo)
	}
	if e.hasRoot {
		e.transport.Release(e.rootHandle)
	}
	e.rootHandle, e.hasRoot = res.RootHandle, true

	next := &OpenedPrefabState{
		Uuid:      id,
		Version:   e.transport.AssetVersion(res.RootHandle),
		Uncooked:  uncooked,
		Cooked:    res.Cooked,
		RefOwners: res.RefOwners,
		Base:      res.Base,
	}
	e.respawn(cmd, prev, next)
	e.logger.Infof("opened prefab %s (version %d, %d entities)", id, next.Version, len(next.Cooked.Entities))
	return nil
}

// Reset respawns the live world from the current cooked prefab.
func (e *EditorState) Reset(cmd *Commands) {
	prev := e.opened.Load()
	if prev == nil {
		return
	}
	e.respawn(cmd, prev, prev.successor(prev.Uncooked, prev.Cooked))
}

// respawn pauses simulation, removes prev's live entities, clones next's
// cooked world into the live world and installs next.
func (e *EditorState) respawn(cmd *Commands, prev, next *OpenedPrefabState) {
	if t := Resource[Time](cmd); t != nil {
		t.Paused = true
	}

	world := cmd.app.ecs
	if prev != nil {
		for _, ch := range sortedHandles(prev.PrefabToWorld) {
			world.DeleteEntities(prev.PrefabToWorld[ch])
		}
	}

	cookedUuids := next.Cooked.handleUuids()
	var assign func(EntityId) (EntityId, bool)
	if e.ResetPolicy == ResetPreserveHandles && prev != nil {
		assign = func(src EntityId) (EntityId, bool) {
			id, ok := cookedUuids[src]
			if !ok {
				return 0, false
			}
			return prev.LiveHandle(id)
		}
	}

	remap := next.Cooked.World.CloneEntitiesInto(world, next.Cooked.World.EntityIds(), e.registry, assign)
	for _, id := range sortedUuidKeys(next.Cooked.Entities) {
		if _, ok := remap[next.Cooked.Entities[id]]; !ok {
			panic(fmt.Sprintf("cooked prefab %s maps entity %s to handle %d which is not in its world", next.Uuid, id, next.Cooked.Entities[id]))
		}
	}

	next.PrefabToWorld = remap
	next.WorldToPrefab = make(map[EntityId]EntityId, len(remap))
	for ch, lh := range remap {
		next.WorldToPrefab[lh] = ch
	}
	next.cookedUuids = cookedUuids
	e.opened.Store(next)
}

// applyDiff runs one diff through both prefab representations and respawns.
func (e *EditorState) applyDiff(cmd *Commands, diff WorldDiff, policy SelectionPolicy, origin string) error {
	state := e.opened.Load()
	if state == nil {
		return nil
	}
	world := cmd.app.ecs
	selected := e.selectedUuids(world, state)

	cooked, err := ApplyToCooked(e.registry, state.Cooked, diff)
	if err != nil {
		return fmt.Errorf("apply %s diff to cooked prefab %s: %w", origin, state.Uuid, err)
	}
	uncooked, err := ApplyToPrefab(e.registry, e.logger, state.Uncooked, diff, state.RefOwners, state.Base)
	if err != nil {
		return fmt.Errorf("apply %s diff to prefab %s: %w", origin, state.Uuid, err)
	}

	e.respawn(cmd, state, state.successor(uncooked, cooked))
	e.metrics.diffApplied(origin)

	switch policy {
	case SelectTouched:
		e.restoreSelection(world, diff.Touched())
	case KeepSelection:
		e.restoreSelection(world, selected)
	}
	return nil
}

// selectedUuids lists the uuids of selected live entities of the opened prefab.
func (e *EditorState) selectedUuids(world *Ecs, state *OpenedPrefabState) []EntityUuid {
	var res []EntityUuid
	for _, h := range WorldQuery1[EditorSelectedComponent](world).Collect() {
		if id, ok := state.LiveUuid(h); ok {
			res = append(res, id)
		}
	}
	return res
}

// restoreSelection tags the live entities of ids. Uuids that are no longer
// spawned are ignored.
func (e *EditorState) restoreSelection(world *Ecs, ids []EntityUuid) {
	state := e.opened.Load()
	if state == nil {
		return
	}
	for _, id := range ids {
		if h, ok := state.LiveHandle(id); ok && world.HasEntity(h) {
			world.setComponent(h, EditorSelectedComponent{})
		}
	}
}

// Save writes the uncooked prefab through the transport. The stored version
// becomes the opened version so the write is not mistaken for an external
// change by HotReloadIfChanged.
func (e *EditorState) Save() error {
	state := e.opened.Load()
	if state == nil {
		return ErrNoPrefabOpen
	}
	data, err := MarshalPrefab(e.registry, state.Uncooked)
	if err != nil {
		return fmt.Errorf("save prefab %s: %w", state.Uuid, err)
	}
	version, err := e.transport.Store(state.Uuid, data)
	if err != nil {
		return err
	}

	next := *state
	next.Version = version
	e.opened.Store(&next)
	e.logger.Infof("saved prefab %s (version %d)", state.Uuid, version)
	return nil
}

// HotReloadIfChanged re-opens the prefab when the transport reports a version
// other than the one the opened state was built from. Selection survives by
// uuid.
func (e *EditorState) HotReloadIfChanged(cmd *Commands) (bool, error) {
	state := e.opened.Load()
	if state == nil || !e.hasRoot {
		return false, nil
	}

	e.transport.Update()
	if e.transport.LoadStatus(e.rootHandle) != LoadStatusLoaded {
		return false, nil
	}
	version := e.transport.AssetVersion(e.rootHandle)
	if version == state.Version {
		return false, nil
	}

	e.logger.Infof("prefab %s changed (version %d -> %d), reloading", state.Uuid, state.Version, version)
	world := cmd.app.ecs
	selected := e.selectedUuids(world, state)
	if err := e.Open(cmd, state.Uuid); err != nil {
		return false, err
	}
	e.restoreSelection(world, selected)
	return true, nil
}

func (e *EditorState) IsPlaying(cmd *Commands) bool {
	t := Resource[Time](cmd)
	return t != nil && !t.Paused
}

func (e *EditorState) setPlaying(cmd *Commands, playing bool) {
	if t := Resource[Time](cmd); t != nil {
		t.Paused = !playing
	}
}

func sortedHandles(m map[EntityId]EntityId) []EntityId {
	res := make([]EntityId, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	slices.Sort(res)
	return res
}
