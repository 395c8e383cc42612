package gekko

import (
	"time"
)

// Time is the simulation clock. While Paused, Dt stays zero so simulation
// systems freeze without being unscheduled.
type Time struct {
	Time   time.Time
	Dt     time.Duration
	Paused bool
}

type TimeModule struct {
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Time: time.Now(),
		Dt:   0,
	})
	app.UseSystem(System(timeSystem).InStage(Prelude).RunAlways())
}

func timeSystem(timeResource *Time) {
	now := time.Now()

	if timeResource.Paused {
		timeResource.Dt = 0
	} else {
		timeResource.Dt = now.Sub(timeResource.Time)
	}
	timeResource.Time = now
}
