package gekko

import (
	"fmt"
	"slices"
)

// ComponentOverride is an opaque serialized diff for one component of one
// entity that lives in a referenced prefab.
type ComponentOverride struct {
	ComponentType ComponentTypeUuid
	Data          []byte
}

type PrefabRef struct {
	Overrides map[EntityUuid][]ComponentOverride
}

// Prefab is the uncooked, authored form: its own entities plus override
// layers on top of the prefabs it references. Instances are treated as
// immutable once built; edits produce a new Prefab.
type Prefab struct {
	Id         PrefabUuid
	World      *Ecs
	Entities   map[EntityUuid]EntityId
	PrefabRefs map[PrefabUuid]PrefabRef
}

// CookedPrefab is a prefab flattened together with all of its transitive
// dependencies and every override applied.
type CookedPrefab struct {
	World    *Ecs
	Entities map[EntityUuid]EntityId
}

func NewPrefab(id PrefabUuid) *Prefab {
	return &Prefab{
		Id:         id,
		World:      NewEcs(),
		Entities:   make(map[EntityUuid]EntityId),
		PrefabRefs: make(map[PrefabUuid]PrefabRef),
	}
}

// AddEntity spawns a new entity in the prefab's own world under a stable id.
func (p *Prefab) AddEntity(id EntityUuid, components ...any) EntityId {
	h := p.World.addEntity(components...)
	p.Entities[id] = h
	return h
}

// AddOverride appends an override for an entity of the referenced prefab dep.
func (p *Prefab) AddOverride(dep PrefabUuid, entity EntityUuid, override ComponentOverride) {
	ref, ok := p.PrefabRefs[dep]
	if !ok || ref.Overrides == nil {
		ref = PrefabRef{Overrides: make(map[EntityUuid][]ComponentOverride)}
	}
	ref.Overrides[entity] = append(ref.Overrides[entity], override)
	p.PrefabRefs[dep] = ref
}

func (p *Prefab) Validate() error {
	return validateEntityMap(p.World, p.Entities)
}

func (p *Prefab) Clone(registry *ComponentRegistry) *Prefab {
	world, entities := cloneEntityWorld(p.World, p.Entities, registry)

	refs := make(map[PrefabUuid]PrefabRef, len(p.PrefabRefs))
	for dep, ref := range p.PrefabRefs {
		overrides := make(map[EntityUuid][]ComponentOverride, len(ref.Overrides))
		for entity, list := range ref.Overrides {
			cloned := make([]ComponentOverride, len(list))
			for i, o := range list {
				cloned[i] = ComponentOverride{ComponentType: o.ComponentType, Data: slices.Clone(o.Data)}
			}
			overrides[entity] = cloned
		}
		refs[dep] = PrefabRef{Overrides: overrides}
	}

	return &Prefab{Id: p.Id, World: world, Entities: entities, PrefabRefs: refs}
}

func (c *CookedPrefab) Validate() error {
	return validateEntityMap(c.World, c.Entities)
}

func (c *CookedPrefab) Clone(registry *ComponentRegistry) *CookedPrefab {
	world, entities := cloneEntityWorld(c.World, c.Entities, registry)
	return &CookedPrefab{World: world, Entities: entities}
}

// UuidOf finds the stable id of a cooked-world handle.
func (c *CookedPrefab) UuidOf(h EntityId) (EntityUuid, bool) {
	for id, handle := range c.Entities {
		if handle == h {
			return id, true
		}
	}
	return EntityUuid{}, false
}

func (c *CookedPrefab) handleUuids() map[EntityId]EntityUuid {
	res := make(map[EntityId]EntityUuid, len(c.Entities))
	for id, h := range c.Entities {
		res[h] = id
	}
	return res
}

func validateEntityMap(world *Ecs, entities map[EntityUuid]EntityId) error {
	for _, id := range sortedUuidKeys(entities) {
		if !world.HasEntity(entities[id]) {
			return fmt.Errorf("entity %s maps to handle %d which is not in the world", id, entities[id])
		}
	}
	return nil
}

// cloneEntityWorld copies every entity of world (not only the mapped ones)
// and remaps the uuid table onto the new handles.
func cloneEntityWorld(world *Ecs, entities map[EntityUuid]EntityId, registry *ComponentRegistry) (*Ecs, map[EntityUuid]EntityId) {
	dst := NewEcs()
	remap := world.CloneEntitiesInto(dst, world.EntityIds(), registry, nil)

	res := make(map[EntityUuid]EntityId, len(entities))
	for id, h := range entities {
		if nh, ok := remap[h]; ok {
			res[id] = nh
		}
	}
	return dst, res
}
