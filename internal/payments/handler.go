package payments

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/equicare/equicare-platform/internal/apperr"
	"github.com/equicare/equicare-platform/internal/identity"
	"github.com/equicare/equicare-platform/pkg/logging"
)

// IntentHandler exposes payment-intent creation over HTTP.
type IntentHandler struct {
	orchestrator *Orchestrator
	logger       *logging.Logger
}

// NewIntentHandler creates the intent HTTP handler.
func NewIntentHandler(orchestrator *Orchestrator, logger *logging.Logger) *IntentHandler {
	if orchestrator == nil {
		panic("payments: orchestrator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &IntentHandler{orchestrator: orchestrator, logger: logger}
}

// CreateIntent handles POST /appointments/{appointmentID}/payment-intent.
func (h *IntentHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.KindForbidden, "authentication required"))
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "appointmentID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "invalid appointment id"))
		return
	}

	res, err := h.orchestrator.CreateIntent(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"kind": string(apperr.KindOf(err)), "message": msg},
	})
}
