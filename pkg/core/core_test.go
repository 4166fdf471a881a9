package core

import (
	"context"
	"testing"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/config"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCore(t *testing.T) *Core {
	t.Helper()
	cfg := &config.Config{}
	c, err := New(cfg, logging.NewDiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, c.Close()) })
	return c
}

func TestNew_WiresLocalSequenceToolsThroughDispatcher(t *testing.T) {
	c := newTestCore(t)

	result, err := c.Dispatcher.Dispatch(context.Background(), "compute_gc", map[string]any{"sequence": "GCGCAT"}, dispatcher.Origin{})
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestNew_WiresEvo2AsUnconfiguredLongRunningTool(t *testing.T) {
	c := newTestCore(t)

	id, err := c.Tasks.Submit(context.Background(), "evo2_generate_sequence", map[string]any{"prompt": "ACGT"}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	record, ok := c.Health.Record("evo2")
	require.True(t, ok)
	assert.Equal(t, health.StatusNotConfigured, record.Status)
}

func TestNew_BuildsNonEmptyToolCatalogue(t *testing.T) {
	c := newTestCore(t)

	all := c.Registry.All()
	assert.True(t, len(all) > 40)
}

func TestNew_UnknownToolIsToolNotFound(t *testing.T) {
	c := newTestCore(t)

	_, err := c.Dispatcher.Dispatch(context.Background(), "no_such_tool", nil, dispatcher.Origin{})
	require.Error(t, err)
	assert.Equal(t, broker.ToolNotFound, broker.KindOf(err))
}

func TestNew_SelectorRanksToolsAgainstRegistry(t *testing.T) {
	c := newTestCore(t)

	matches := c.Selector.Select("search uniprot for insulin", nil, 5)
	assert.NotEmpty(t, matches)
}
