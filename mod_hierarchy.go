package gekko

import (
	"github.com/go-gl/mathgl/mgl32"
)

// HierarchyModule keeps the world transform of parented live entities in
// sync with their local transform. Parent links are stored as entity uuids,
// so they are resolved through the opened prefab on every run.
type HierarchyModule struct{}

func (HierarchyModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(TransformHierarchySystem).
			InStage(PostUpdate).
			RunAlways(),
	)
}

func TransformHierarchySystem(cmd *Commands, editor *EditorState) {
	state := editor.Opened()
	if state == nil {
		return
	}
	PropagateTransforms(cmd.app.ecs, state.LiveHandle)
}

// PropagateTransforms updates TransformComponent of every entity that has a
// Parent and a LocalTransformComponent. resolve maps a parent uuid to its
// handle in world.
func PropagateTransforms(world *Ecs, resolve func(EntityUuid) (EntityId, bool)) {
	// Roots: a LocalTransformComponent without a Parent mirrors the world transform.
	WorldQuery2[LocalTransformComponent, TransformComponent](world).Map(func(eid EntityId, local *LocalTransformComponent, tr *TransformComponent) bool {
		if _, parented := world.getComponentValue(eid, parentType); parented {
			return true
		}
		local.Position = tr.Position
		local.Rotation = tr.Rotation
		local.Scale = tr.Scale
		return true
	})

	// Children: iterate a few passes so deeper hierarchies settle.
	type childUpdate struct {
		eid EntityId
		tr  TransformComponent
	}
PassLoop:
	for pass := 0; pass < 8; pass++ {
		var updates []childUpdate
		WorldQuery2[LocalTransformComponent, Parent](world).Map(func(eid EntityId, local *LocalTransformComponent, parent *Parent) bool {
			ph, ok := resolve(parent.Entity)
			if !ok {
				return true
			}
			pv, ok := world.getComponentValue(ph, transformType)
			if !ok {
				return true
			}
			parentWorld := pv.(TransformComponent)

			// WorldPos = ParentPos + ParentRot * (ParentScale * LocalPos)
			scaledLocalPos := mgl32.Vec3{
				local.Position.X() * parentWorld.Scale.X(),
				local.Position.Y() * parentWorld.Scale.Y(),
				local.Position.Z() * parentWorld.Scale.Z(),
			}
			next := TransformComponent{
				Position: parentWorld.Position.Add(parentWorld.Rotation.Rotate(scaledLocalPos)),
				Rotation: parentWorld.Rotation.Mul(local.Rotation).Normalize(),
				Scale: mgl32.Vec3{
					parentWorld.Scale.X() * local.Scale.X(),
					parentWorld.Scale.Y() * local.Scale.Y(),
					parentWorld.Scale.Z() * local.Scale.Z(),
				},
			}

			cur, ok := world.getComponentValue(eid, transformType)
			if !ok || cur.(TransformComponent) != next {
				updates = append(updates, childUpdate{eid: eid, tr: next})
			}
			return true
		})
		if len(updates) == 0 {
			break PassLoop
		}
		// Applied after the walk: setComponent may move the entity to another archetype.
		for _, u := range updates {
			world.setComponent(u.eid, u.tr)
		}
	}
}
