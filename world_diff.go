package gekko

import (
	"fmt"
	"slices"
)

type ComponentDiffOp int

const (
	ComponentAdded ComponentDiffOp = iota
	ComponentRemoved
	ComponentChanged
)

func (op ComponentDiffOp) String() string {
	switch op {
	case ComponentAdded:
		return "added"
	case ComponentRemoved:
		return "removed"
	case ComponentChanged:
		return "changed"
	}
	return fmt.Sprintf("ComponentDiffOp(%d)", int(op))
}

type EntityDiffOp int

const (
	EntityChanged EntityDiffOp = iota
	EntityAdded
	EntityRemoved
)

// ComponentDiff carries the full serialized value for added and changed
// components, so applying a diff twice is the same as applying it once.
type ComponentDiff struct {
	Op            ComponentDiffOp
	ComponentType ComponentTypeUuid
	Data          []byte
}

type EntityDiff struct {
	Entity     EntityUuid
	Op         EntityDiffOp
	Components []ComponentDiff
}

// WorldDiff is keyed by entity uuid only; handles never appear in it.
type WorldDiff struct {
	Entities []EntityDiff
}

func (d WorldDiff) IsEmpty() bool {
	return len(d.Entities) == 0
}

// Touched lists every entity the diff adds or modifies.
func (d WorldDiff) Touched() []EntityUuid {
	var res []EntityUuid
	for _, e := range d.Entities {
		if e.Op != EntityRemoved {
			res = append(res, e.Entity)
		}
	}
	return res
}

// TransactionDiffs holds both directions of one edit so that undo and redo
// never need to invert anything on the fly.
type TransactionDiffs struct {
	Apply  WorldDiff
	Revert WorldDiff
}

func (d *TransactionDiffs) IsEmpty() bool {
	return d == nil || (d.Apply.IsEmpty() && d.Revert.IsEmpty())
}

func (d *TransactionDiffs) Reverse() *TransactionDiffs {
	return &TransactionDiffs{Apply: d.Revert, Revert: d.Apply}
}

// NewTransactionDiffs diffs before against after in both directions.
func NewTransactionDiffs(registry *ComponentRegistry, before *Ecs, beforeIds map[EntityUuid]EntityId, after *Ecs, afterIds map[EntityUuid]EntityId) (*TransactionDiffs, error) {
	apply, err := DiffWorlds(registry, before, beforeIds, after, afterIds)
	if err != nil {
		return nil, err
	}
	revert, err := DiffWorlds(registry, after, afterIds, before, beforeIds)
	if err != nil {
		return nil, err
	}
	return &TransactionDiffs{Apply: apply, Revert: revert}, nil
}

// DiffWorlds computes the diff that turns the before entities into the after
// entities, matching entities by uuid.
func DiffWorlds(registry *ComponentRegistry, before *Ecs, beforeIds map[EntityUuid]EntityId, after *Ecs, afterIds map[EntityUuid]EntityId) (WorldDiff, error) {
	all := make(map[EntityUuid]struct{}, len(beforeIds)+len(afterIds))
	for id := range beforeIds {
		all[id] = struct{}{}
	}
	for id := range afterIds {
		all[id] = struct{}{}
	}

	var diff WorldDiff
	for _, id := range sortedUuidKeys(all) {
		bh, inBefore := beforeIds[id]
		ah, inAfter := afterIds[id]
		inBefore = inBefore && before.HasEntity(bh)
		inAfter = inAfter && after.HasEntity(ah)

		var beforeComps, afterComps map[ComponentTypeUuid]any
		var err error
		if inBefore {
			if beforeComps, err = entityComponents(registry, before, bh); err != nil {
				return WorldDiff{}, fmt.Errorf("diff entity %s: %w", id, err)
			}
		}
		if inAfter {
			if afterComps, err = entityComponents(registry, after, ah); err != nil {
				return WorldDiff{}, fmt.Errorf("diff entity %s: %w", id, err)
			}
		}

		switch {
		case inBefore && !inAfter:
			diff.Entities = append(diff.Entities, EntityDiff{Entity: id, Op: EntityRemoved})
		case !inBefore && inAfter:
			comps, err := diffComponents(registry, nil, afterComps)
			if err != nil {
				return WorldDiff{}, fmt.Errorf("diff entity %s: %w", id, err)
			}
			diff.Entities = append(diff.Entities, EntityDiff{Entity: id, Op: EntityAdded, Components: comps})
		case inBefore && inAfter:
			comps, err := diffComponents(registry, beforeComps, afterComps)
			if err != nil {
				return WorldDiff{}, fmt.Errorf("diff entity %s: %w", id, err)
			}
			if len(comps) > 0 {
				diff.Entities = append(diff.Entities, EntityDiff{Entity: id, Op: EntityChanged, Components: comps})
			}
		}
	}
	return diff, nil
}

func diffComponents(registry *ComponentRegistry, before, after map[ComponentTypeUuid]any) ([]ComponentDiff, error) {
	all := make(map[ComponentTypeUuid]struct{}, len(before)+len(after))
	for id := range before {
		all[id] = struct{}{}
	}
	for id := range after {
		all[id] = struct{}{}
	}

	var res []ComponentDiff
	for _, typeId := range sortedUuidKeys(all) {
		ct, err := registry.Lookup(typeId)
		if err != nil {
			return nil, err
		}
		b, inBefore := before[typeId]
		a, inAfter := after[typeId]

		switch {
		case inBefore && !inAfter:
			res = append(res, ComponentDiff{Op: ComponentRemoved, ComponentType: typeId})
		case inAfter && (!inBefore || !ct.Equal(b, a)):
			data, err := ct.Marshal(a)
			if err != nil {
				return nil, err
			}
			op := ComponentChanged
			if !inBefore {
				op = ComponentAdded
			}
			res = append(res, ComponentDiff{Op: op, ComponentType: typeId, Data: data})
		}
	}
	return res, nil
}

// applyWorldDiff mutates world/ids in place. Callers own both.
func applyWorldDiff(registry *ComponentRegistry, world *Ecs, ids map[EntityUuid]EntityId, diff WorldDiff) error {
	for _, ed := range diff.Entities {
		if err := applyEntityDiff(registry, world, ids, ed); err != nil {
			return err
		}
	}
	return nil
}

func applyEntityDiff(registry *ComponentRegistry, world *Ecs, ids map[EntityUuid]EntityId, ed EntityDiff) error {
	h, exists := ids[ed.Entity]
	exists = exists && world.HasEntity(h)

	if ed.Op == EntityRemoved {
		if exists {
			world.DeleteEntities(h)
		}
		delete(ids, ed.Entity)
		return nil
	}

	if !exists {
		h = world.addEntity()
		ids[ed.Entity] = h
	}
	for _, cd := range ed.Components {
		ct, err := registry.Lookup(cd.ComponentType)
		if err != nil {
			return fmt.Errorf("apply diff to entity %s: %w", ed.Entity, err)
		}
		if cd.Op == ComponentRemoved {
			world.removeComponentType(h, ct.Type())
			continue
		}
		current, ok := world.getComponentValue(h, ct.Type())
		if !ok {
			current = ct.Default()
		}
		value, err := ct.ApplyDiff(current, cd.Data)
		if err != nil {
			return fmt.Errorf("apply diff to entity %s: %w", ed.Entity, err)
		}
		world.setComponent(h, value)
	}
	return nil
}

// ApplyToCooked returns a new cooked prefab with diff applied.
func ApplyToCooked(registry *ComponentRegistry, cooked *CookedPrefab, diff WorldDiff) (*CookedPrefab, error) {
	next := cooked.Clone(registry)
	if err := applyWorldDiff(registry, next.World, next.Entities, diff); err != nil {
		return nil, err
	}
	return next, nil
}

// ApplyToPrefab returns a new uncooked prefab with diff applied. Entities the
// prefab defines itself are edited in place. Entities that come from a
// dependency (refOwners maps them to the direct reference that reaches them)
// receive the change as an override on that reference instead. With base set,
// such an override holds only the fields that differ from base, and none at
// all when the value matches base.
func ApplyToPrefab(registry *ComponentRegistry, logger Logger, prefab *Prefab, diff WorldDiff, refOwners map[EntityUuid]PrefabUuid, base *CookedPrefab) (*Prefab, error) {
	next := prefab.Clone(registry)
	for _, ed := range diff.Entities {
		_, own := next.Entities[ed.Entity]
		owner, inherited := refOwners[ed.Entity]
		if own || !inherited {
			if err := applyEntityDiff(registry, next.World, next.Entities, ed); err != nil {
				return nil, err
			}
			continue
		}

		if ed.Op == EntityRemoved {
			logger.Warnf("entity %s is inherited from prefab %s and cannot be removed from %s", ed.Entity, owner, next.Id)
			continue
		}
		for _, cd := range ed.Components {
			if cd.Op == ComponentRemoved {
				logger.Warnf("component %s of inherited entity %s cannot be removed through an override", cd.ComponentType, ed.Entity)
				continue
			}
			data, err := inheritedOverride(registry, base, ed.Entity, cd)
			if err != nil {
				return nil, fmt.Errorf("override of entity %s: %w", ed.Entity, err)
			}
			next.setOverride(owner, ed.Entity, cd.ComponentType, data)
		}
	}
	return next, nil
}

// inheritedOverride turns a full component value into the override payload
// relative to the value the entity has in base. A nil result means the value
// is the inherited one.
func inheritedOverride(registry *ComponentRegistry, base *CookedPrefab, entity EntityUuid, cd ComponentDiff) ([]byte, error) {
	if base == nil {
		return slices.Clone(cd.Data), nil
	}
	h, ok := base.Entities[entity]
	if !ok {
		return slices.Clone(cd.Data), nil
	}
	ct, err := registry.Lookup(cd.ComponentType)
	if err != nil {
		return nil, err
	}
	inherited, ok := base.World.getComponentValue(h, ct.Type())
	if !ok {
		return slices.Clone(cd.Data), nil
	}
	inheritedData, err := ct.Marshal(inherited)
	if err != nil {
		return nil, err
	}
	return fieldPatch(inheritedData, cd.Data)
}

// setOverride makes data the only override of componentType on the entity,
// across every reference of p. An existing override on dep keeps its place
// in the list; nil data removes them all.
func (p *Prefab) setOverride(dep PrefabUuid, entity EntityUuid, componentType ComponentTypeUuid, data []byte) {
	placed := data == nil
	for _, refId := range sortedUuidKeys(p.PrefabRefs) {
		ref := p.PrefabRefs[refId]
		list, ok := ref.Overrides[entity]
		if !ok {
			continue
		}
		kept := make([]ComponentOverride, 0, len(list))
		for _, o := range list {
			if o.ComponentType != componentType {
				kept = append(kept, o)
				continue
			}
			if refId == dep && !placed {
				kept = append(kept, ComponentOverride{ComponentType: componentType, Data: data})
				placed = true
			}
		}
		if len(kept) == 0 {
			delete(ref.Overrides, entity)
		} else {
			ref.Overrides[entity] = kept
		}
	}
	if !placed {
		p.AddOverride(dep, entity, ComponentOverride{ComponentType: componentType, Data: data})
	}
}
