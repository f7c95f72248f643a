package engine

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/sproutlabs/subsync/pkg/billing"
)

// Handler returns the HTTP surface: webhook intake and the access
// evaluation endpoint.
func (e *Engine) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/webhooks/billing", e.handleWebhook)
	r.Get("/access/{user_id}", e.handleAccess)

	return r
}

// handleWebhook accepts one verified billing event. 202 acknowledges
// the event (applied, duplicate, or permanently dropped); 503 withholds
// acknowledgment so the upstream redelivers.
func (e *Engine) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var envelope billing.EventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	if err := e.router.Handle(r.Context(), envelope); err != nil {
		// Transient failure: signal the provider to redeliver.
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "temporarily unavailable"})
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (e *Engine) handleAccess(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user_id"})
		return
	}

	writeJSON(w, http.StatusOK, e.evaluator.Evaluate(r.Context(), userID))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
