package gekko

import (
	"reflect"
	"slices"
)

// NewEcs returns an empty heap-allocated world.
func NewEcs() *Ecs {
	ecs := MakeEcs()
	return &ecs
}

func (ecs *Ecs) HasEntity(entityId EntityId) bool {
	_, ok := ecs.entityIndex[entityId]
	return ok
}

func (ecs *Ecs) EntityCount() int {
	return len(ecs.entityIndex)
}

// EntityIds returns every live entity handle in ascending order.
func (ecs *Ecs) EntityIds() []EntityId {
	ids := make([]EntityId, 0, len(ecs.entityIndex))
	for id := range ecs.entityIndex {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// componentValues returns copies of every component on the entity, ordered by
// the world-local component id.
func (ecs *Ecs) componentValues(entityId EntityId) []any {
	archId, ok := ecs.entityIndex[entityId]
	if !ok {
		return nil
	}
	arch := ecs.archetypes[archId]
	row := arch.entities[entityId]

	res := make([]any, 0, len(arch.key))
	for _, componentId := range arch.key {
		res = append(res, reflectSliceGet(arch.componentData[componentId], int(row)).Interface())
	}
	return res
}

func (ecs *Ecs) lookupComponentId(componentType reflect.Type) (componentId, bool) {
	ecs.componentIdCounterLock.Lock()
	defer ecs.componentIdCounterLock.Unlock()

	id, ok := ecs.componentTypeIdMap[componentType]
	return id, ok
}

func (ecs *Ecs) getComponentValue(entityId EntityId, componentType reflect.Type) (any, bool) {
	archId, ok := ecs.entityIndex[entityId]
	if !ok {
		return nil, false
	}
	compId, ok := ecs.lookupComponentId(componentType)
	if !ok {
		return nil, false
	}
	arch := ecs.archetypes[archId]
	data, ok := arch.componentData[compId]
	if !ok {
		return nil, false
	}
	return reflectSliceGet(data, int(arch.entities[entityId])).Interface(), true
}

// setComponent overwrites the component in place when the entity already has
// one of that type, otherwise moves the entity to the wider archetype.
func (ecs *Ecs) setComponent(entityId EntityId, component any) {
	value := reflect.ValueOf(component)
	if value.Kind() == reflect.Pointer {
		value = value.Elem()
	}

	archId := ecs.entityIndex[entityId]
	arch := ecs.archetypes[archId]
	compId := ecs.getComponentId(value.Type())
	if data, ok := arch.componentData[compId]; ok {
		reflectSliceSet(data, int(arch.entities[entityId]), value)
		return
	}
	ecs.addComponents(entityId, value.Interface())
}

func (ecs *Ecs) removeComponentType(entityId EntityId, componentType reflect.Type) bool {
	if _, ok := ecs.getComponentValue(entityId, componentType); !ok {
		return false
	}
	ecs.removeComponents(entityId, reflect.Zero(componentType).Interface())
	return true
}

// DeleteEntities removes every listed entity that is still alive.
func (ecs *Ecs) DeleteEntities(ids ...EntityId) {
	for _, id := range ids {
		if ecs.HasEntity(id) {
			ecs.removeEntity(id)
		}
	}
}

// CloneEntitiesInto deep-copies the listed entities into dst and returns the
// src handle -> dst handle mapping. assign may hand back a handle to reuse for
// a given source entity; it is honored only when that handle is free in dst.
func (ecs *Ecs) CloneEntitiesInto(dst *Ecs, ids []EntityId, registry *ComponentRegistry, assign func(EntityId) (EntityId, bool)) map[EntityId]EntityId {
	res := make(map[EntityId]EntityId, len(ids))
	for _, srcId := range ids {
		if !ecs.HasEntity(srcId) {
			continue
		}

		components := ecs.componentValues(srcId)
		for i, c := range components {
			components[i] = registry.CloneValue(c)
		}

		dstId, ok := EntityId(0), false
		if assign != nil {
			dstId, ok = assign(srcId)
			if ok && dst.HasEntity(dstId) {
				ok = false
			}
		}
		if ok {
			dst.reserveEntityId(dstId)
		} else {
			dstId = dst.nextEntityId()
		}

		dst.insertEntity(dstId, components...)
		res[srcId] = dstId
	}
	return res
}

// reserveEntityId keeps the id counter ahead of a handle inserted explicitly.
func (ecs *Ecs) reserveEntityId(id EntityId) {
	ecs.idGeneratorLock.Lock()
	defer ecs.idGeneratorLock.Unlock()

	if id >= ecs.entityIdCounter {
		ecs.entityIdCounter = id + 1
	}
}
