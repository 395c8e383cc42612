package gekko

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
)

var ErrUnknownComponentType = errors.New("unknown component type")

// ComponentType is the runtime-dispatched description of one registered
// component type. Cooking, diffing and transactions only ever see components
// through this interface.
type ComponentType interface {
	Uuid() ComponentTypeUuid
	Name() string
	Type() reflect.Type
	Default() any
	Marshal(value any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
	// ApplyDiff overlays payload (a YAML mapping of top-level fields) onto
	// value. Fields present in the payload replace the current field wholesale.
	ApplyDiff(value any, payload []byte) (any, error)
	Clone(value any) any
	Equal(a, b any) bool
}

type ComponentRegistry struct {
	byUuid map[ComponentTypeUuid]ComponentType
	byType map[reflect.Type]ComponentType
}

func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		byUuid: make(map[ComponentTypeUuid]ComponentType),
		byType: make(map[reflect.Type]ComponentType),
	}
}

// RegisterComponent registers T under id. Registering the same uuid or the
// same Go type twice panics.
func RegisterComponent[T any](registry *ComponentRegistry, id ComponentTypeUuid, name string) ComponentType {
	ct := &componentType[T]{id: id, name: name}
	if ct.Type().Kind() != reflect.Struct {
		panic(fmt.Sprintf("component %s must be a struct, got %s", name, ct.Type().Kind()))
	}
	registry.Register(ct)
	return ct
}

func (r *ComponentRegistry) Register(ct ComponentType) {
	if existing, ok := r.byUuid[ct.Uuid()]; ok {
		panic(fmt.Sprintf("component type %s is already registered as %s", ct.Uuid(), existing.Name()))
	}
	if existing, ok := r.byType[ct.Type()]; ok {
		panic(fmt.Sprintf("%s is already registered as %s", ct.Type(), existing.Uuid()))
	}
	r.byUuid[ct.Uuid()] = ct
	r.byType[ct.Type()] = ct
}

func (r *ComponentRegistry) Lookup(id ComponentTypeUuid) (ComponentType, error) {
	if ct, ok := r.byUuid[id]; ok {
		return ct, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownComponentType, id)
}

// TypeOf resolves the registered type of a component value (or pointer to one).
func (r *ComponentRegistry) TypeOf(value any) (ComponentType, bool) {
	t := reflect.TypeOf(value)
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	ct, ok := r.byType[t]
	return ct, ok
}

// CloneValue deep-copies a registered component. Unregistered values are
// copied shallowly, which is what the live world's editor tags need.
func (r *ComponentRegistry) CloneValue(value any) any {
	if r != nil {
		if ct, ok := r.TypeOf(value); ok {
			return ct.Clone(value)
		}
	}
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v.Interface()
}

type componentType[T any] struct {
	id   ComponentTypeUuid
	name string
}

func (c *componentType[T]) Uuid() ComponentTypeUuid { return c.id }
func (c *componentType[T]) Name() string            { return c.name }
func (c *componentType[T]) Type() reflect.Type      { return reflect.TypeOf((*T)(nil)).Elem() }

func (c *componentType[T]) Default() any {
	var zero T
	return zero
}

func (c *componentType[T]) cast(value any) (T, error) {
	switch v := value.(type) {
	case T:
		return v, nil
	case *T:
		return *v, nil
	}
	var zero T
	return zero, fmt.Errorf("component %s: unexpected value of type %T", c.name, value)
}

func (c *componentType[T]) Marshal(value any) ([]byte, error) {
	v, err := c.cast(value)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(v)
}

func (c *componentType[T]) Unmarshal(data []byte) (any, error) {
	var v T
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode component %s: %w", c.name, err)
	}
	return v, nil
}

func (c *componentType[T]) ApplyDiff(value any, payload []byte) (any, error) {
	current, err := c.cast(value)
	if err != nil {
		return nil, err
	}

	var patchDoc yaml.Node
	if err := yaml.Unmarshal(payload, &patchDoc); err != nil {
		return nil, fmt.Errorf("decode %s diff: %w", c.name, err)
	}
	patch := unwrapDocument(&patchDoc)
	if patch == nil || patch.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s diff must be a mapping", c.name)
	}

	var base yaml.Node
	if err := base.Encode(current); err != nil {
		return nil, fmt.Errorf("encode %s: %w", c.name, err)
	}
	if base.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s does not encode as a mapping", c.name)
	}
	mergeMappingNodes(&base, patch)

	var out T
	if err := base.Decode(&out); err != nil {
		return nil, fmt.Errorf("apply %s diff: %w", c.name, err)
	}
	return out, nil
}

func (c *componentType[T]) Clone(value any) any {
	data, err := c.Marshal(value)
	if err != nil {
		panic(err)
	}
	v, err := c.Unmarshal(data)
	if err != nil {
		panic(err)
	}
	return v
}

func (c *componentType[T]) Equal(a, b any) bool {
	x, errA := c.cast(a)
	y, errB := c.cast(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(x, y)
}

func unwrapDocument(n *yaml.Node) *yaml.Node {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return nil
		}
		return n.Content[0]
	}
	return n
}

// mergeMappingNodes replaces (or appends) every key of patch in base.
func mergeMappingNodes(base, patch *yaml.Node) {
	for i := 0; i+1 < len(patch.Content); i += 2 {
		key, value := patch.Content[i], patch.Content[i+1]
		replaced := false
		for j := 0; j+1 < len(base.Content); j += 2 {
			if base.Content[j].Value == key.Value {
				base.Content[j+1] = value
				replaced = true
				break
			}
		}
		if !replaced {
			base.Content = append(base.Content, key, value)
		}
	}
}

// fieldPatch returns the top-level fields of value that differ from base, as
// a mapping ApplyDiff accepts. Fields base has and value lacks are patched
// with null, which decodes to the zero value. It returns nil when nothing
// differs, and value itself when either side is not a mapping.
func fieldPatch(base, value []byte) ([]byte, error) {
	var baseDoc, valueDoc yaml.Node
	if err := yaml.Unmarshal(base, &baseDoc); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(value, &valueDoc); err != nil {
		return nil, err
	}
	b, v := unwrapDocument(&baseDoc), unwrapDocument(&valueDoc)
	if b == nil || v == nil || b.Kind != yaml.MappingNode || v.Kind != yaml.MappingNode {
		if bytes.Equal(base, value) {
			return nil, nil
		}
		return bytes.Clone(value), nil
	}

	patch := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(v.Content); i += 2 {
		key, val := v.Content[i], v.Content[i+1]
		if prev := mappingValue(b, key.Value); prev == nil || !nodesEqual(prev, val) {
			patch.Content = append(patch.Content, key, val)
		}
	}
	for i := 0; i+1 < len(b.Content); i += 2 {
		key := b.Content[i]
		if mappingValue(v, key.Value) == nil {
			patch.Content = append(patch.Content, key, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"})
		}
	}
	if len(patch.Content) == 0 {
		return nil, nil
	}
	return yaml.Marshal(patch)
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func nodesEqual(a, b *yaml.Node) bool {
	if a.Kind != b.Kind || a.ShortTag() != b.ShortTag() || a.Value != b.Value || len(a.Content) != len(b.Content) {
		return false
	}
	for i := range a.Content {
		if !nodesEqual(a.Content[i], b.Content[i]) {
			return false
		}
	}
	return true
}
