package gekko

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditorMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEditorMetrics(reg)

	m.observeCook(time.Now(), nil)
	m.observeCook(time.Now(), errors.New("boom"))
	m.overrideFailed()
	m.diffApplied("commit")
	m.diffApplied("commit")
	m.diffApplied("undo")

	chain := NewUndoChain(0)
	chain.Push(undoEntry(1))
	chain.Push(undoEntry(1))
	chain.StepBack()
	m.observeUndo(chain)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cooks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cooks.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.overrideFailures))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.diffsApplied.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffsApplied.WithLabelValues("undo")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.undoLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.undoPosition))

	n, err := testutil.GatherAndCount(reg, "gekko_prefab_cook_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEditorMetrics_Nil(t *testing.T) {
	var m *EditorMetrics
	assert.NotPanics(t, func() {
		m.observeCook(time.Now(), nil)
		m.overrideFailed()
		m.diffApplied("update")
		m.observeUndo(NewUndoChain(0))
	})
}

func TestEditorMetrics_EditorActivity(t *testing.T) {
	scene := newEditorScene(t)
	h := newEditorHarness(t, nil, scene.base, scene.root)
	h.open(t, scene.root.Id)

	tx, err := h.editor.BeginTransaction([]TransactionEntity{{Uuid: scene.own}})
	require.NoError(t, err)
	require.NoError(t, tx.SetComponent(scene.own, testPosition{X: 2}))
	require.NoError(t, h.editor.CommitTransaction(tx, SelectTouched))
	h.editor.EnqueueUndo()
	h.frame()

	m := h.editor.metrics
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cooks.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffsApplied.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.diffsApplied.WithLabelValues("undo")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.undoLength))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.undoPosition))
}
