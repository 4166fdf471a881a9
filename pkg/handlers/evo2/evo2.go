// Package evo2 wires the EVO2 genomic language model into the broker.
// evo2_generate_sequence and evo2_predict_expression are long-running
// (EVO2 inference runs as an asynchronous job upstream); evo2_score_variant
// is fast enough to answer synchronously. When no endpoint/API key is
// configured, all three tools still answer — deterministically, from a
// seeded local simulator — rather than failing every call outright; the
// family's Health Monitor entry is recorded as not_configured and never
// polled, but tool calls themselves stay usable for local development
// and tests.
package evo2

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"math/rand"
	"net/http"

	"github.com/genobridge/genobridge/pkg/broker"
	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/httpclient"
	"github.com/genobridge/genobridge/pkg/taskmanager"
)

const familyName = "evo2"

const bases = "ACGT"

// Register wires all three EVO2 tools. endpoint and apiKey come from
// configuration; when either is empty the family runs entirely on the
// local simulator and the Health Monitor records it as not_configured.
func Register(d *dispatcher.Dispatcher, longRunning map[string]taskmanager.HandlerFunc, client *httpclient.Client, monitor *health.Monitor, endpoint, apiKey string) {
	configured := endpoint != "" && apiKey != ""

	d.Register("evo2_score_variant", scoreVariantHandler(client, endpoint, apiKey, configured))
	longRunning["evo2_generate_sequence"] = generateSequenceHandler(client, endpoint, apiKey, configured)
	longRunning["evo2_predict_expression"] = predictExpressionHandler(client, endpoint, apiKey, configured)

	if configured {
		monitor.Register(familyName, &pingable{client: client, endpoint: endpoint, apiKey: apiKey}, nil)
	} else {
		monitor.RegisterNotConfigured(familyName)
	}
}

func scoreVariantHandler(client *httpclient.Client, endpoint, apiKey string, configured bool) dispatcher.HandlerFunc {
	return func(ctx context.Context, args map[string]any, _ dispatcher.Origin) (any, error) {
		reference, ok := args["reference"].(string)
		if !ok || reference == "" {
			return nil, broker.New(broker.InvalidArguments, "reference must be a non-empty string")
		}
		variant, ok := args["variant"].(string)
		if !ok || variant == "" {
			return nil, broker.New(broker.InvalidArguments, "variant must be a non-empty string")
		}

		if !configured {
			score := simulatedScore(reference, variant)
			return map[string]any{"success": true, "simulated": true, "score": score}, nil
		}

		var out struct {
			Score float64 `json:"score"`
		}
		if err := postJSON(ctx, client, endpoint+"/v1/score-variant", apiKey,
			map[string]any{"reference": reference, "variant": variant}, &out, "evo2_score_variant"); err != nil {
			return nil, err
		}
		return map[string]any{"success": true, "simulated": false, "score": out.Score}, nil
	}
}

func generateSequenceHandler(client *httpclient.Client, endpoint, apiKey string, configured bool) taskmanager.HandlerFunc {
	return func(ctx context.Context, args map[string]any, report taskmanager.ProgressFunc) (any, error) {
		prompt, ok := args["prompt"].(string)
		if !ok || prompt == "" {
			return nil, broker.New(broker.InvalidArguments, "prompt must be a non-empty string")
		}
		length := 200
		if v, ok := args["length"]; ok {
			length = asInt(v, length)
		}

		if !configured {
			report(50, "generating with local simulator")
			seq := simulatedSequence(prompt, length)
			report(100, "done")
			return map[string]any{"success": true, "simulated": true, "sequence": seq}, nil
		}

		report(10, "submitting generation request")
		var out struct {
			Sequence string `json:"sequence"`
		}
		if err := postJSON(ctx, client, endpoint+"/v1/generate", apiKey,
			map[string]any{"prompt": prompt, "length": length}, &out, "evo2_generate_sequence"); err != nil {
			return nil, err
		}
		report(100, "done")
		return map[string]any{"success": true, "simulated": false, "sequence": out.Sequence}, nil
	}
}

func predictExpressionHandler(client *httpclient.Client, endpoint, apiKey string, configured bool) taskmanager.HandlerFunc {
	return func(ctx context.Context, args map[string]any, report taskmanager.ProgressFunc) (any, error) {
		sequence, ok := args["sequence"].(string)
		if !ok || sequence == "" {
			return nil, broker.New(broker.InvalidArguments, "sequence must be a non-empty string")
		}

		if !configured {
			report(50, "scoring with local simulator")
			level := simulatedExpression(sequence)
			report(100, "done")
			return map[string]any{"success": true, "simulated": true, "expressionLevel": level}, nil
		}

		report(10, "submitting prediction request")
		var out struct {
			ExpressionLevel float64 `json:"expression_level"`
		}
		if err := postJSON(ctx, client, endpoint+"/v1/predict-expression", apiKey,
			map[string]any{"sequence": sequence}, &out, "evo2_predict_expression"); err != nil {
			return nil, err
		}
		report(100, "done")
		return map[string]any{"success": true, "simulated": false, "expressionLevel": out.ExpressionLevel}, nil
	}
}

func postJSON(ctx context.Context, client *httpclient.Client, url, apiKey string, body any, out any, toolName string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return broker.New(broker.Internal, "%s: encoding request: %v", toolName, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return broker.New(broker.Internal, "%s: building request: %v", toolName, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		if resp == nil {
			return broker.New(broker.UpstreamError, "%s: %v", toolName, err)
		}
		defer resp.Body.Close()
		return broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", toolName, resp.StatusCode)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return broker.New(httpclient.ClassifyStatus(resp.StatusCode), "%s: upstream status %d", toolName, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return broker.New(broker.UpstreamError, "%s: decoding response: %v", toolName, err)
	}
	return nil
}

// simulatedSequence deterministically extends prompt with pseudo-random
// bases seeded from the prompt's contents, so identical calls always
// produce identical output.
func simulatedSequence(prompt string, length int) string {
	r := rand.New(rand.NewSource(int64(seedOf(prompt))))
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = bases[r.Intn(len(bases))]
	}
	return prompt + string(buf)
}

// simulatedScore maps a (reference, variant) pair onto a fixed [-1, 1]
// fitness-effect score, deterministic in both inputs.
func simulatedScore(reference, variant string) float64 {
	r := rand.New(rand.NewSource(int64(seedOf(reference + "|" + variant))))
	return r.Float64()*2 - 1
}

// simulatedExpression maps a sequence onto a deterministic [0, 1]
// relative-expression level.
func simulatedExpression(sequence string) float64 {
	r := rand.New(rand.NewSource(int64(seedOf(sequence))))
	return r.Float64()
}

func seedOf(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}

func asInt(v any, fallback int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return fallback
}

type pingable struct {
	client   *httpclient.Client
	endpoint string
	apiKey   string
}

func (p *pingable) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/v1/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
