package gekko

import (
	"bytes"
	"errors"
	"fmt"
	"time"
)

var ErrCookNotDeterministic = errors.New("cooked prefab does not serialize deterministically")

// CookResult is everything the editor needs to keep from one cook.
type CookResult struct {
	Cooked *CookedPrefab
	// Root is the uncooked root prefab as the transport loaded it. It is
	// shared with the transport and must not be mutated.
	Root       *Prefab
	RootHandle LoadHandle
	// Order lists prefabs dependencies first.
	Order []PrefabUuid
	// RefOwners maps every entity the root inherits to the root's direct
	// reference through which it is reached.
	RefOwners map[EntityUuid]PrefabUuid
	// Base is the cook without the root's own overrides. Inherited entities in
	// it hold the values the root's overrides are authored against.
	Base *CookedPrefab
}

type PrefabCooker struct {
	transport AssetTransport
	registry  *ComponentRegistry
	logger    Logger
	metrics   *EditorMetrics

	// Verify round-trips the cooked output through serialization and fails
	// the cook when the two encodings differ.
	Verify bool
}

func NewPrefabCooker(transport AssetTransport, registry *ComponentRegistry, logger Logger, metrics *EditorMetrics) *PrefabCooker {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &PrefabCooker{
		transport: transport,
		registry:  registry,
		logger:    logger,
		metrics:   metrics,
	}
}

// Cook blocking-loads the dependency graph of root and flattens it. The
// returned RootHandle stays referenced; the caller releases it.
func (c *PrefabCooker) Cook(root PrefabUuid) (res *CookResult, err error) {
	start := time.Now()
	defer func() { c.metrics.observeCook(start, err) }()

	prefabs := make(map[PrefabUuid]*Prefab)
	handles := make(map[PrefabUuid]LoadHandle)
	visiting := make(set[PrefabUuid])
	var order []PrefabUuid

	defer func() {
		for id, h := range handles {
			if err != nil || id != root {
				c.transport.Release(h)
			}
		}
	}()

	var visit func(id PrefabUuid) error
	visit = func(id PrefabUuid) error {
		if _, done := prefabs[id]; done {
			return nil
		}
		if _, onPath := visiting[id]; onPath {
			c.logger.Warnf("cyclic prefab reference to %s; treating it as already resolved", id)
			return nil
		}
		visiting[id] = struct{}{}
		defer delete(visiting, id)

		h, p, err := c.blockingLoad(id)
		handles[id] = h
		if err != nil {
			return err
		}
		for _, dep := range sortedUuidKeys(p.PrefabRefs) {
			if err := visit(dep); err != nil {
				return err
			}
		}
		prefabs[id] = p
		order = append(order, id)
		return nil
	}
	if err := visit(root); err != nil {
		return nil, err
	}

	cooked := &CookedPrefab{World: NewEcs(), Entities: make(map[EntityUuid]EntityId)}
	var base *CookedPrefab
	origins := make(map[EntityUuid]PrefabUuid)

	// Pass 1: merge every entity of every prefab into one world.
	for _, id := range order {
		p := prefabs[id]
		ids := sortedUuidKeys(p.Entities)
		srcHandles := make([]EntityId, 0, len(ids))
		for _, entity := range ids {
			srcHandles = append(srcHandles, p.Entities[entity])
		}
		remap := p.World.CloneEntitiesInto(cooked.World, srcHandles, c.registry, nil)
		for _, entity := range ids {
			if prev, dup := origins[entity]; dup {
				c.logger.Warnf("entity %s is defined by both %s and %s; keeping the one from %s", entity, prev, id, id)
				cooked.World.DeleteEntities(cooked.Entities[entity])
			}
			nh, ok := remap[p.Entities[entity]]
			if !ok {
				panic(fmt.Sprintf("prefab %s maps entity %s to missing handle %d", id, entity, p.Entities[entity]))
			}
			cooked.Entities[entity] = nh
			origins[entity] = id
		}
	}

	// Pass 2: overrides, dependencies first so that a dependent's override
	// lands on top of whatever its dependencies produced. The root comes last.
	for _, id := range order {
		p := prefabs[id]
		if id == root {
			base = cooked.Clone(c.registry)
		}
		for _, dep := range sortedUuidKeys(p.PrefabRefs) {
			ref := p.PrefabRefs[dep]
			for _, entity := range sortedUuidKeys(ref.Overrides) {
				h, ok := cooked.Entities[entity]
				if !ok {
					c.logger.Errorf("prefab %s overrides unknown entity %s of %s; skipping", id, entity, dep)
					c.metrics.overrideFailed()
					continue
				}
				for _, override := range ref.Overrides[entity] {
					if err := c.applyOverride(cooked.World, h, override); err != nil {
						c.logger.Errorf("prefab %s: override of entity %s skipped: %v", id, entity, err)
						c.metrics.overrideFailed()
					}
				}
			}
		}
	}

	if c.Verify {
		if err := c.verify(cooked); err != nil {
			return nil, err
		}
	}

	c.logger.Debugf("cooked prefab %s: %d prefabs, %d entities in %s", root, len(order), len(cooked.Entities), time.Since(start))
	return &CookResult{
		Cooked:     cooked,
		Root:       prefabs[root],
		RootHandle: handles[root],
		Order:      order,
		RefOwners:  refOwners(root, prefabs, origins),
		Base:       base,
	}, nil
}

// blockingLoad spins the transport until the prefab is loaded or failed.
func (c *PrefabCooker) blockingLoad(id PrefabUuid) (LoadHandle, *Prefab, error) {
	h := c.transport.AddRef(id)
	for {
		switch c.transport.LoadStatus(h) {
		case LoadStatusLoading:
			c.transport.Update()
		case LoadStatusLoaded:
			return h, c.transport.Asset(h), nil
		default:
			return h, nil, fmt.Errorf("%w: %s", ErrPrefabLoadFailed, id)
		}
	}
}

func (c *PrefabCooker) applyOverride(world *Ecs, h EntityId, override ComponentOverride) error {
	ct, err := c.registry.Lookup(override.ComponentType)
	if err != nil {
		return err
	}
	current, ok := world.getComponentValue(h, ct.Type())
	if !ok {
		current = ct.Default()
	}
	value, err := ct.ApplyDiff(current, override.Data)
	if err != nil {
		return err
	}
	world.setComponent(h, value)
	return nil
}

func (c *PrefabCooker) verify(cooked *CookedPrefab) error {
	first, err := MarshalCookedPrefab(c.registry, cooked)
	if err != nil {
		return err
	}
	decoded, err := UnmarshalCookedPrefab(c.registry, first)
	if err != nil {
		return err
	}
	second, err := MarshalCookedPrefab(c.registry, decoded)
	if err != nil {
		return err
	}
	if !bytes.Equal(first, second) {
		return ErrCookNotDeterministic
	}
	return nil
}

// refOwners assigns every inherited entity to the first (in uuid order) direct
// reference of root whose dependency closure defines it.
func refOwners(root PrefabUuid, prefabs map[PrefabUuid]*Prefab, origins map[EntityUuid]PrefabUuid) map[EntityUuid]PrefabUuid {
	res := make(map[EntityUuid]PrefabUuid)
	rootPrefab, ok := prefabs[root]
	if !ok {
		return res
	}

	for _, dep := range sortedUuidKeys(rootPrefab.PrefabRefs) {
		closure := make(set[PrefabUuid])
		var walk func(id PrefabUuid)
		walk = func(id PrefabUuid) {
			if _, seen := closure[id]; seen || id == root {
				return
			}
			closure[id] = struct{}{}
			if p, ok := prefabs[id]; ok {
				for next := range p.PrefabRefs {
					walk(next)
				}
			}
		}
		walk(dep)

		for entity, origin := range origins {
			if origin == root {
				continue
			}
			if _, taken := res[entity]; taken {
				continue
			}
			if _, ok := closure[origin]; ok {
				res[entity] = dep
			}
		}
	}
	return res
}
