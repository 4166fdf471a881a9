package evo2

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/registry"
	"github.com/genobridge/genobridge/pkg/taskmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scoreVariantYAML = `
name: evo2_score_variant
description: Score the predicted fitness effect of a sequence variant using EVO2.
category: ai_gen
execution_side: server
priority: 40
schema:
  properties:
    reference: { type: string }
    variant: { type: string }
  required: [reference, variant]
`

func setup(t *testing.T, endpoint, apiKey string) (*dispatcher.Dispatcher, map[string]taskmanager.HandlerFunc, *health.Monitor) {
	t.Helper()
	reg := registry.New()
	fsys := fstest.MapFS{"tools/score_variant.yaml": &fstest.MapFile{Data: []byte(scoreVariantYAML)}}
	require.NoError(t, reg.Load(fsys, "tools", ""))

	d := dispatcher.New(reg, nil, nil, nil)
	mon := health.New(nil)
	longRunning := map[string]taskmanager.HandlerFunc{}

	Register(d, longRunning, httpclient.New(httpclient.Config{}), mon, endpoint, apiKey)
	return d, longRunning, mon
}

func TestScoreVariant_UnconfiguredUsesDeterministicSimulator(t *testing.T) {
	d, _, _ := setup(t, "", "")

	r1, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"reference": "ACGT", "variant": "ACGA"}, dispatcher.Origin{})
	require.NoError(t, err)
	r2, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"reference": "ACGT", "variant": "ACGA"}, dispatcher.Origin{})
	require.NoError(t, err)

	out1 := r1.(map[string]any)
	out2 := r2.(map[string]any)
	assert.True(t, out1["simulated"].(bool))
	assert.Equal(t, out1["score"], out2["score"])
}

func TestScoreVariant_DifferentInputsYieldDifferentSimulatedScores(t *testing.T) {
	d, _, _ := setup(t, "", "")

	r1, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"reference": "ACGT", "variant": "ACGA"}, dispatcher.Origin{})
	require.NoError(t, err)
	r2, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"reference": "ACGT", "variant": "TTTT"}, dispatcher.Origin{})
	require.NoError(t, err)

	assert.NotEqual(t, r1.(map[string]any)["score"], r2.(map[string]any)["score"])
}

func TestScoreVariant_MissingReferenceIsInvalidArguments(t *testing.T) {
	d, _, _ := setup(t, "", "")

	_, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"variant": "ACGA"}, dispatcher.Origin{})
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestScoreVariant_ConfiguredCallsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/score-variant", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{"score": 0.42})
	}))
	defer srv.Close()

	d, _, _ := setup(t, srv.URL, "secret")
	result, err := d.Dispatch(context.Background(), "evo2_score_variant", map[string]any{"reference": "ACGT", "variant": "ACGA"}, dispatcher.Origin{})
	require.NoError(t, err)

	out := result.(map[string]any)
	assert.False(t, out["simulated"].(bool))
	assert.Equal(t, 0.42, out["score"])
}

func TestGenerateSequence_UnconfiguredPrependsPromptDeterministically(t *testing.T) {
	_, longRunning, _ := setup(t, "", "")
	handler := longRunning["evo2_generate_sequence"]

	r1, err := handler(context.Background(), map[string]any{"prompt": "ACGT", "length": float64(20)}, func(int, string) bool { return true })
	require.NoError(t, err)
	r2, err := handler(context.Background(), map[string]any{"prompt": "ACGT", "length": float64(20)}, func(int, string) bool { return true })
	require.NoError(t, err)

	seq1 := r1.(map[string]any)["sequence"].(string)
	seq2 := r2.(map[string]any)["sequence"].(string)
	assert.Equal(t, seq1, seq2)
	assert.Len(t, seq1, len("ACGT")+20)
	assert.Contains(t, seq1, "ACGT")
}

func TestGenerateSequence_MissingPromptIsInvalidArguments(t *testing.T) {
	_, longRunning, _ := setup(t, "", "")
	handler := longRunning["evo2_generate_sequence"]

	_, err := handler(context.Background(), map[string]any{}, func(int, string) bool { return true })
	require.Error(t, err)
	assert.Equal(t, broker.InvalidArguments, broker.KindOf(err))
}

func TestPredictExpression_UnconfiguredYieldsBoundedDeterministicLevel(t *testing.T) {
	_, longRunning, _ := setup(t, "", "")
	handler := longRunning["evo2_predict_expression"]

	r1, err := handler(context.Background(), map[string]any{"sequence": "ACGTACGT"}, func(int, string) bool { return true })
	require.NoError(t, err)
	level := r1.(map[string]any)["expressionLevel"].(float64)
	assert.GreaterOrEqual(t, level, 0.0)
	assert.LessOrEqual(t, level, 1.0)
}

func TestRegister_UnconfiguredRecordsNotConfiguredHealth(t *testing.T) {
	_, _, mon := setup(t, "", "")

	record, ok := mon.Record(familyName)
	require.True(t, ok)
	assert.Equal(t, health.StatusNotConfigured, record.Status)
}

func TestRegister_ConfiguredRegistersPollableHealthFamily(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, _, mon := setup(t, srv.URL, "secret")
	_, ok := mon.Record(familyName)
	assert.True(t, ok)
}
