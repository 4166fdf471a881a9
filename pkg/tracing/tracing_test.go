package tracing

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoEndpointReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	os.Unsetenv("OTEL_EXPORTER_OTLP_ENDPOINT")

	shutdown, err := Setup(context.Background(), "test")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestStartDispatch_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartDispatch(context.Background(), "search_ncbi")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()
}

func TestStartTaskRun_ReturnsUsableSpan(t *testing.T) {
	ctx, span := StartTaskRun(context.Background(), "run_blast", "task-1")
	require.NotNil(t, span)
	require.NotNil(t, ctx)
	span.End()
}

func TestEnd_RecordsErrorWithoutPanicking(t *testing.T) {
	_, span := StartDispatch(context.Background(), "search_ncbi")
	assert.NotPanics(t, func() { End(span, errors.New("boom")) })
}

func TestEnd_NilErrorEndsCleanly(t *testing.T) {
	_, span := StartDispatch(context.Background(), "search_ncbi")
	assert.NotPanics(t, func() { End(span, nil) })
}
