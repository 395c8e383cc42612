package gekko

import (
	"bytes"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// On-disk layout. Everything is keyed by uuids and written in sorted order so
// that encoding the same logical prefab always yields the same bytes.

type prefabFile struct {
	Id       string          `yaml:"id"`
	Entities []entityFile    `yaml:"entities"`
	Refs     []prefabRefFile `yaml:"prefab_refs,omitempty"`
}

type cookedPrefabFile struct {
	Entities []entityFile `yaml:"entities"`
}

type entityFile struct {
	Id         string          `yaml:"id"`
	Components []componentFile `yaml:"components"`
}

type componentFile struct {
	Type string    `yaml:"type"`
	Name string    `yaml:"name,omitempty"`
	Data yaml.Node `yaml:"data"`
}

type prefabRefFile struct {
	Prefab    string               `yaml:"prefab"`
	Overrides []entityOverrideFile `yaml:"overrides,omitempty"`
}

type entityOverrideFile struct {
	Entity     string          `yaml:"entity"`
	Components []componentFile `yaml:"components"`
}

func MarshalPrefab(registry *ComponentRegistry, p *Prefab) ([]byte, error) {
	entities, err := encodeEntities(registry, p.World, p.Entities)
	if err != nil {
		return nil, fmt.Errorf("encode prefab %s: %w", p.Id, err)
	}
	file := prefabFile{Id: p.Id.String(), Entities: entities}

	for _, dep := range sortedUuidKeys(p.PrefabRefs) {
		ref := p.PrefabRefs[dep]
		refFile := prefabRefFile{Prefab: dep.String()}
		for _, entity := range sortedUuidKeys(ref.Overrides) {
			overrideFile := entityOverrideFile{Entity: entity.String()}
			for _, o := range ref.Overrides[entity] {
				node, err := nodeFromBytes(o.Data)
				if err != nil {
					return nil, fmt.Errorf("encode override %s/%s: %w", entity, o.ComponentType, err)
				}
				cf := componentFile{Type: o.ComponentType.String(), Data: node}
				if ct, err := registry.Lookup(o.ComponentType); err == nil {
					cf.Name = ct.Name()
				}
				overrideFile.Components = append(overrideFile.Components, cf)
			}
			refFile.Overrides = append(refFile.Overrides, overrideFile)
		}
		file.Refs = append(file.Refs, refFile)
	}

	return encodeYaml(file)
}

// UnmarshalPrefab decodes a prefab file into a fresh world. Override payloads
// are kept opaque: an unknown component type inside an override is a cook
// time problem, not a load time one.
func UnmarshalPrefab(registry *ComponentRegistry, data []byte) (*Prefab, error) {
	var file prefabFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode prefab: %w", err)
	}
	id, err := ParsePrefabUuid(file.Id)
	if err != nil {
		return nil, err
	}

	p := NewPrefab(id)
	if err := decodeEntities(registry, file.Entities, p.World, p.Entities); err != nil {
		return nil, fmt.Errorf("decode prefab %s: %w", id, err)
	}

	for _, refFile := range file.Refs {
		dep, err := ParsePrefabUuid(refFile.Prefab)
		if err != nil {
			return nil, err
		}
		ref := PrefabRef{Overrides: make(map[EntityUuid][]ComponentOverride)}
		for _, overrideFile := range refFile.Overrides {
			entity, err := ParseEntityUuid(overrideFile.Entity)
			if err != nil {
				return nil, err
			}
			for _, cf := range overrideFile.Components {
				typeId, err := ParseComponentTypeUuid(cf.Type)
				if err != nil {
					return nil, err
				}
				payload, err := yaml.Marshal(&cf.Data)
				if err != nil {
					return nil, fmt.Errorf("override %s/%s: %w", entity, typeId, err)
				}
				ref.Overrides[entity] = append(ref.Overrides[entity], ComponentOverride{ComponentType: typeId, Data: payload})
			}
		}
		p.PrefabRefs[dep] = ref
	}
	return p, nil
}

func MarshalCookedPrefab(registry *ComponentRegistry, c *CookedPrefab) ([]byte, error) {
	entities, err := encodeEntities(registry, c.World, c.Entities)
	if err != nil {
		return nil, fmt.Errorf("encode cooked prefab: %w", err)
	}
	return encodeYaml(cookedPrefabFile{Entities: entities})
}

func UnmarshalCookedPrefab(registry *ComponentRegistry, data []byte) (*CookedPrefab, error) {
	var file cookedPrefabFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode cooked prefab: %w", err)
	}
	c := &CookedPrefab{World: NewEcs(), Entities: make(map[EntityUuid]EntityId)}
	if err := decodeEntities(registry, file.Entities, c.World, c.Entities); err != nil {
		return nil, fmt.Errorf("decode cooked prefab: %w", err)
	}
	return c, nil
}

func encodeEntities(registry *ComponentRegistry, world *Ecs, entities map[EntityUuid]EntityId) ([]entityFile, error) {
	res := make([]entityFile, 0, len(entities))
	for _, id := range sortedUuidKeys(entities) {
		components, err := entityComponents(registry, world, entities[id])
		if err != nil {
			return nil, fmt.Errorf("entity %s: %w", id, err)
		}

		ef := entityFile{Id: id.String(), Components: make([]componentFile, 0, len(components))}
		for _, typeId := range sortedUuidKeys(components) {
			ct, _ := registry.Lookup(typeId)
			data, err := ct.Marshal(components[typeId])
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", id, err)
			}
			node, err := nodeFromBytes(data)
			if err != nil {
				return nil, fmt.Errorf("entity %s: %w", id, err)
			}
			ef.Components = append(ef.Components, componentFile{Type: typeId.String(), Name: ct.Name(), Data: node})
		}
		res = append(res, ef)
	}
	return res, nil
}

func decodeEntities(registry *ComponentRegistry, files []entityFile, world *Ecs, entities map[EntityUuid]EntityId) error {
	for _, ef := range files {
		id, err := ParseEntityUuid(ef.Id)
		if err != nil {
			return err
		}
		if _, dup := entities[id]; dup {
			return fmt.Errorf("duplicate entity %s", id)
		}

		components := make([]any, 0, len(ef.Components))
		for _, cf := range ef.Components {
			typeId, err := ParseComponentTypeUuid(cf.Type)
			if err != nil {
				return err
			}
			ct, err := registry.Lookup(typeId)
			if err != nil {
				return fmt.Errorf("entity %s: %w", id, err)
			}
			payload, err := yaml.Marshal(&cf.Data)
			if err != nil {
				return fmt.Errorf("entity %s: %w", id, err)
			}
			value, err := ct.Unmarshal(payload)
			if err != nil {
				return fmt.Errorf("entity %s: %w", id, err)
			}
			components = append(components, value)
		}
		entities[id] = world.addEntity(components...)
	}
	return nil
}

// entityComponents returns the registered components of an entity keyed by
// component type. Any unregistered component is an error since it could not
// be serialized or diffed.
func entityComponents(registry *ComponentRegistry, world *Ecs, h EntityId) (map[ComponentTypeUuid]any, error) {
	values := world.componentValues(h)
	res := make(map[ComponentTypeUuid]any, len(values))
	for _, v := range values {
		ct, ok := registry.TypeOf(v)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrUnknownComponentType, v)
		}
		res[ct.Uuid()] = v
	}
	return res, nil
}

func nodeFromBytes(data []byte) (yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return yaml.Node{}, err
	}
	n := unwrapDocument(&doc)
	if n == nil {
		return yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}, nil
	}
	return *n, nil
}

func encodeYaml(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return slices.Clip(buf.Bytes()), nil
}
