package gekko

import (
	"github.com/go-gl/mathgl/mgl32"
)

// TransformComponent is the world-space transform of an entity.
type TransformComponent struct {
	Position mgl32.Vec3 `yaml:"position"`
	Rotation mgl32.Quat `yaml:"rotation"`
	Scale    mgl32.Vec3 `yaml:"scale"`
}

// LocalTransformComponent is relative to the entity's Parent.
type LocalTransformComponent struct {
	Position mgl32.Vec3 `yaml:"position"`
	Rotation mgl32.Quat `yaml:"rotation"`
	Scale    mgl32.Vec3 `yaml:"scale"`
}

// Parent links an entity to another entity of the same prefab graph. It
// stores the stable uuid so the link survives cooking and respawns.
type Parent struct {
	Entity EntityUuid `yaml:"entity"`
}

type NameComponent struct {
	Name string `yaml:"name"`
}

var (
	transformType = reflectTypeOf[TransformComponent]()
	parentType    = reflectTypeOf[Parent]()
)

func IdentityTransform() TransformComponent {
	return TransformComponent{
		Rotation: mgl32.QuatIdent(),
		Scale:    mgl32.Vec3{1, 1, 1},
	}
}

var (
	TransformComponentUuid      = MustComponentTypeUuid("5d0f8a63-2f0e-4a53-9d7e-0b6a3c1f2e01")
	LocalTransformComponentUuid = MustComponentTypeUuid("5d0f8a63-2f0e-4a53-9d7e-0b6a3c1f2e02")
	ParentComponentUuid         = MustComponentTypeUuid("5d0f8a63-2f0e-4a53-9d7e-0b6a3c1f2e03")
	NameComponentUuid           = MustComponentTypeUuid("5d0f8a63-2f0e-4a53-9d7e-0b6a3c1f2e04")
	LifetimeComponentUuid       = MustComponentTypeUuid("5d0f8a63-2f0e-4a53-9d7e-0b6a3c1f2e05")
)

// RegisterBuiltinComponents registers the components every prefab may use.
func RegisterBuiltinComponents(registry *ComponentRegistry) {
	RegisterComponent[TransformComponent](registry, TransformComponentUuid, "transform")
	RegisterComponent[LocalTransformComponent](registry, LocalTransformComponentUuid, "local_transform")
	RegisterComponent[Parent](registry, ParentComponentUuid, "parent")
	RegisterComponent[NameComponent](registry, NameComponentUuid, "name")
	RegisterComponent[LifetimeComponent](registry, LifetimeComponentUuid, "lifetime")
}
