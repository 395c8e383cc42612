package gekko

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MockResource1 struct {
	name string
}
type MockResource2 struct {
	name string
}

func NewMockResource1(name string) *MockResource1 {
	return &MockResource1{name: name}
}
func NewMockResource2(name string) *MockResource2 {
	return &MockResource2{name: name}
}

func TestApp_changeState(t *testing.T) {
	app := &App{
		stateful:     true,
		initialState: 1,
		state:        1,
		finalState:   2,
	}

	// Test changing state
	app.changeState(2)
	if app.nextState != State(2) {
		t.Errorf("The nextState should be set correctly.")
	}
	if !app.stateTransitioning {
		t.Errorf("The stateTransitioning flag should be true.")
	}

	// Test executing state change
	app.executeChangeState(2)
	if app.state != State(2) {
		t.Errorf("The app state should change correctly.")
	}
}

func TestApp_addResources(t *testing.T) {
	// Test setup
	app := &App{
		resources: make(map[reflect.Type]any),
	}

	// Add a resource
	resource1 := NewMockResource1("Resource1")
	app.addResources(resource1)

	// Check that the resource was added
	assert.Contains(t, app.resources, reflect.TypeOf(resource1).Elem(), "Resource1 should be in resources map.")

	// Expect panic when trying to add the same type of resource again
	require.PanicsWithValue(t, fmt.Sprintf("%s is already in resources", reflect.TypeOf(resource1)), func() {
		app.addResources(resource1) // Try adding resource1 again, should panic
	})

	// Add a resource
	resource2 := NewMockResource2("Resource2")
	app.addResources(resource2)

	// Check that the resource was added
	assert.Contains(t, app.resources, reflect.TypeOf(resource2).Elem(), "Resource2 should be in resources map.")
}

type counterResource struct {
	calls int
}

func TestApp_StepRunsSystemsAndFlushes(t *testing.T) {
	type Marker struct{ n int }

	app := NewApp()
	counter := &counterResource{}
	app.addResources(counter)

	var spawned EntityId
	app.UseSystem(System(func(cmd *Commands, c *counterResource) {
		c.calls += 1
		if c.calls == 1 {
			spawned = cmd.AddEntity(Marker{n: 3})
		}
	}).InStage(Update))

	assert.False(t, app.Step())
	assert.Equal(t, 1, counter.calls)
	require.True(t, app.World().HasEntity(spawned))

	cmd := app.Commands()
	assert.Equal(t, []any{Marker{n: 3}}, cmd.GetAllComponents(spawned))

	cmd.RemoveComponents(spawned, Marker{})
	app.FlushCommands()
	assert.Empty(t, cmd.GetAllComponents(spawned))

	cmd.RemoveEntity(spawned)
	app.FlushCommands()
	assert.False(t, app.World().HasEntity(spawned))
}

func TestApp_StatefulRunReachesFinalState(t *testing.T) {
	app := NewAppBuilder().UseStates(0, 2).Build()

	var entered []State
	for s := State(0); s <= 2; s++ {
		state := s
		app.UseSystem(System(func(cmd *Commands) {
			entered = append(entered, state)
			if state < 2 {
				cmd.ChangeState(state + 1)
			}
		}).InState(OnEnter(state)))
	}
	app.UseSystem(System(func(cmd *Commands) {}).InState(OnExecute(1)))

	app.Run()
	assert.Equal(t, []State{0, 1, 2}, entered)
}

func TestApp_UnresolvedDependencyPanics(t *testing.T) {
	app := NewApp()
	app.UseSystem(System(func(r *MockResource1) {}))

	assert.Panics(t, func() { app.Step() })
}

func TestResource(t *testing.T) {
	app := NewApp()
	cmd := app.Commands()
	assert.Nil(t, Resource[Time](cmd))

	app.UseModules(TimeModule{})
	tm := Resource[Time](cmd)
	require.NotNil(t, tm)

	tm.Paused = true
	app.Step()
	assert.Zero(t, tm.Dt)
}
