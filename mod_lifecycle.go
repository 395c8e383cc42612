package gekko

// LifetimeComponent removes a live entity once TimeLeft seconds of simulated
// time have passed. Time does not advance while the editor is paused, and a
// reset brings expired prefab entities back.
type LifetimeComponent struct {
	TimeLeft float32 `yaml:"time_left"`
}

type LifecycleModule struct{}

func (mod LifecycleModule) Install(app *App, cmd *Commands) {
	app.UseSystem(
		System(lifetimeSystem).
			InStage(PostUpdate).
			RunAlways(),
	)
}

func lifetimeSystem(time *Time, cmd *Commands) {
	dt := float32(time.Dt.Seconds())
	if dt <= 0 {
		return
	}
	MakeQuery1[LifetimeComponent](cmd).Map(func(eid EntityId, lt *LifetimeComponent) bool {
		lt.TimeLeft -= dt
		if lt.TimeLeft <= 0 {
			cmd.Logger().Debugf("lifecycle: removing expired entity %v", eid)
			cmd.RemoveEntity(eid)
		}
		return true
	})
}
