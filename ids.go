package gekko

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// PrefabUuid identifies a prefab asset across sessions.
type PrefabUuid uuid.UUID

// EntityUuid is the authored, serializable identity of a prefab entity.
// Runtime handles (EntityId) are never stable across a cook or a respawn; this is.
type EntityUuid uuid.UUID

// ComponentTypeUuid identifies a registered component type.
type ComponentTypeUuid uuid.UUID

// TransactionId identifies one edit gesture.
type TransactionId uuid.UUID

func (id PrefabUuid) String() string        { return uuid.UUID(id).String() }
func (id EntityUuid) String() string        { return uuid.UUID(id).String() }
func (id ComponentTypeUuid) String() string { return uuid.UUID(id).String() }
func (id TransactionId) String() string     { return uuid.UUID(id).String() }

func NewPrefabUuid() PrefabUuid       { return PrefabUuid(uuid.New()) }
func NewEntityUuid() EntityUuid       { return EntityUuid(uuid.New()) }
func newTransactionId() TransactionId { return TransactionId(uuid.New()) }

func NewComponentTypeUuid() ComponentTypeUuid { return ComponentTypeUuid(uuid.New()) }

func ParsePrefabUuid(s string) (PrefabUuid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return PrefabUuid{}, fmt.Errorf("parse prefab uuid %q: %w", s, err)
	}
	return PrefabUuid(id), nil
}

func ParseEntityUuid(s string) (EntityUuid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return EntityUuid{}, fmt.Errorf("parse entity uuid %q: %w", s, err)
	}
	return EntityUuid(id), nil
}

func ParseComponentTypeUuid(s string) (ComponentTypeUuid, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ComponentTypeUuid{}, fmt.Errorf("parse component type uuid %q: %w", s, err)
	}
	return ComponentTypeUuid(id), nil
}

func MustPrefabUuid(s string) PrefabUuid               { return PrefabUuid(uuid.MustParse(s)) }
func MustEntityUuid(s string) EntityUuid               { return EntityUuid(uuid.MustParse(s)) }
func MustComponentTypeUuid(s string) ComponentTypeUuid { return ComponentTypeUuid(uuid.MustParse(s)) }

type anyUuid interface {
	~[16]byte
}

func compareUuid[T anyUuid](a, b T) int {
	x, y := [16]byte(a), [16]byte(b)
	return bytes.Compare(x[:], y[:])
}

// sortedUuidKeys returns the keys of m in byte order. Every serialized or
// diffed walk over a uuid-keyed map goes through here so that output order
// never depends on map iteration.
func sortedUuidKeys[K anyUuid, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareUuid[K])
	return keys
}

// Text encoding lets uuids appear as plain strings inside component data.

func (id EntityUuid) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id PrefabUuid) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *EntityUuid) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}

func (id *PrefabUuid) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(data)
}
