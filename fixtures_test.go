package gekko

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testPosition struct {
	X float32 `yaml:"x"`
	Y float32 `yaml:"y"`
}

type testHealth struct {
	Value int    `yaml:"value"`
	Tag   string `yaml:"tag,omitempty"`
}

var (
	testPositionUuid = MustComponentTypeUuid("9a1c0c52-7b1e-4d7e-8f61-000000000001")
	testHealthUuid   = MustComponentTypeUuid("9a1c0c52-7b1e-4d7e-8f61-000000000002")
)

func newTestRegistry() *ComponentRegistry {
	registry := NewComponentRegistry()
	RegisterBuiltinComponents(registry)
	RegisterComponent[testPosition](registry, testPositionUuid, "position")
	RegisterComponent[testHealth](registry, testHealthUuid, "health")
	return registry
}

func yamlPayload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := yaml.Marshal(v)
	require.NoError(t, err)
	return data
}

func storePrefab(t *testing.T, storage AssetStorage, registry *ComponentRegistry, p *Prefab) {
	t.Helper()
	data, err := MarshalPrefab(registry, p)
	require.NoError(t, err)
	_, err = storage.Write(p.Id, data)
	require.NoError(t, err)
}

func componentOf[T any](t *testing.T, world *Ecs, h EntityId) T {
	t.Helper()
	v, ok := world.getComponentValue(h, reflectTypeOf[T]())
	require.True(t, ok, "entity %d has no %s", h, reflectTypeOf[T]())
	return v.(T)
}

// editorHarness is an app with the time and editor modules over an in-memory
// asset store.
type editorHarness struct {
	app      *App
	cmd      *Commands
	storage  *MemoryStorage
	registry *ComponentRegistry
	loader   *AssetLoader
	editor   *EditorState
}

func newEditorHarness(t *testing.T, cfg *EditorConfig, prefabs ...*Prefab) *editorHarness {
	t.Helper()
	registry := newTestRegistry()
	storage := NewMemoryStorage()
	for _, p := range prefabs {
		storePrefab(t, storage, registry, p)
	}
	loader := NewAssetLoader(storage, registry, nil)
	editor := NewEditorState(loader, registry, nil, NewEditorMetrics(prometheus.NewRegistry()), cfg)

	app := NewApp()
	app.UseModules(TimeModule{}, EditorModule{Editor: editor})
	return &editorHarness{
		app:      app,
		cmd:      app.Commands(),
		storage:  storage,
		registry: registry,
		loader:   loader,
		editor:   editor,
	}
}

func (h *editorHarness) frame() {
	h.app.Step()
}

func (h *editorHarness) open(t *testing.T, id PrefabUuid) *OpenedPrefabState {
	t.Helper()
	h.editor.EnqueueOpen(id)
	h.frame()
	state := h.editor.Opened()
	require.NotNil(t, state)
	require.Equal(t, id, state.Uuid)
	return state
}

func (h *editorHarness) live(t *testing.T, id EntityUuid) EntityId {
	t.Helper()
	lh, ok := h.editor.Opened().LiveHandle(id)
	require.True(t, ok, "entity %s is not spawned", id)
	require.True(t, h.app.World().HasEntity(lh))
	return lh
}

func livePosition(t *testing.T, h *editorHarness, id EntityUuid) testPosition {
	t.Helper()
	return componentOf[testPosition](t, h.app.World(), h.live(t, id))
}

func (h *editorHarness) selected(t *testing.T) []EntityUuid {
	t.Helper()
	return h.editor.selectedUuids(h.app.World(), h.editor.Opened())
}
