/*
scenarios.go - Demo scenario endpoints

USAGE VIA API:

	GET  /api/scenarios
	GET  /api/scenarios/current
	POST /api/scenarios/load
	{"scenario_id": "sales-sprint"}

Scenarios upsert their own tenant; other tenants are untouched. Only use in
development/demo environments.

SEE ALSO:
  - seed/seed.go: scenario loader
  - seed/scenarios.yaml: scenario definitions
*/
package api

import (
	"net/http"

	"github.com/warp/creator-rewards/loyalty"
	"github.com/warp/creator-rewards/seed"
)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	list, err := seed.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read scenarios", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GetCurrentScenario returns the last loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	s, err := seed.Find(current)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, seed.Summary{ID: s.ID, Name: s.Name, Description: s.Description, ClientID: s.Client.ID})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decode(r, &req); err != nil || req.ScenarioID == "" {
		writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "scenario_id is required", err)
		return
	}

	s, err := h.Seed.Load(r.Context(), req.ScenarioID)
	if err != nil {
		if loyalty.IsNotFound(err) {
			writeCodedError(w, http.StatusBadRequest, loyalty.CodeInvalidRequest, "Unknown scenario", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = s.ID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": s.ID, "clientId": string(s.Client.ID)})
}
