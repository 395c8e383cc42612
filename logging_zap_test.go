package gekko

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_Levels(t *testing.T) {
	logger, err := NewZapLogger(LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)
	assert.False(t, logger.DebugEnabled())

	logger.SetDebug(true)
	assert.True(t, logger.DebugEnabled())
	logger.SetDebug(false)
	assert.False(t, logger.DebugEnabled())

	// Unknown levels fall back to info.
	logger, err = NewZapLogger(LoggingConfig{Level: "chatty"})
	require.NoError(t, err)
	assert.False(t, logger.DebugEnabled())
}

func TestZapLogger_Wrap(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := WrapZapLogger(zap.New(core))

	logger.Debugf("hidden %d", 1)
	logger.Infof("opened %s", "p")
	logger.Warnf("cycle at %s", "q")
	logger.Errorf("failed: %v", "r")

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "opened p", entries[0].Message)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, "failed: r", entries[2].Message)
	assert.False(t, logger.DebugEnabled())
}

func TestLoggingModule_InstallsResource(t *testing.T) {
	app := NewApp()
	app.UseModules(LoggingModule{Level: "debug", Format: "json"})
	assert.True(t, app.Logger().DebugEnabled())
}

func TestEditor_LogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := WrapZapLogger(zap.New(core))

	scene := newEditorScene(t)
	registry := newTestRegistry()
	storage := NewMemoryStorage()
	storePrefab(t, storage, registry, scene.base)
	storePrefab(t, storage, registry, scene.root)
	editor := NewEditorState(NewAssetLoader(storage, registry, logger), registry, logger, nil, nil)

	app := NewApp()
	app.UseModules(TimeModule{}, EditorModule{Editor: editor})
	editor.EnqueueOpen(scene.root.Id)
	app.Step()

	assert.Equal(t, 1, logs.FilterMessageSnippet("opened prefab").Len())
}
