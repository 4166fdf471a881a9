package transport

import (
	"encoding/json"
	"net/http"

	"github.com/genobridge/genobridge/pkg/dispatcher"
	"github.com/genobridge/genobridge/pkg/health"
	"github.com/genobridge/genobridge/pkg/registry"
)

// ClientRoster is the subset of the Client Bridge the HTTP surface needs
// to report connection counts.
type ClientRoster interface {
	ConnectedClientIDs() []string
}

// HealthSource supplies per-family liveness records for GET /health.
type HealthSource interface {
	Records() []health.Record
}

// NewHTTPHandler builds the downstream HTTP surface: GET /health, GET
// /tools and POST /invoke, mirroring the stdio transport's tools/list and
// tools/call over plain HTTP for diagnostics and non-MCP integrations.
func NewHTTPHandler(reg *registry.Registry, disp Dispatcher, monitor HealthSource, roster ClientRoster) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"clients":  len(roster.ConnectedClientIDs()),
			"handlers": monitor.Records(),
		})
	})

	mux.HandleFunc("GET /tools", func(w http.ResponseWriter, r *http.Request) {
		descriptors := reg.All()
		tools := make([]Tool, 0, len(descriptors))
		for _, d := range descriptors {
			tools = append(tools, Tool{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: d.MCPInputSchema(),
			})
		}
		writeJSON(w, http.StatusOK, toolsListResult{Tools: tools})
	})

	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
			ClientID  string         `json:"clientId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
			return
		}

		result, err := disp.Dispatch(r.Context(), body.Name, body.Arguments, dispatcher.Origin{ClientID: body.ClientID})
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, result)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
