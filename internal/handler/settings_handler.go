package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
	"github.com/shiva/ridedispatch/internal/service"
)

// SettingsHandler exposes operator dispatch settings.
type SettingsHandler struct {
	policy *service.DispatchPolicy
	log    *zap.Logger
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(policy *service.DispatchPolicy, log *zap.Logger) *SettingsHandler {
	return &SettingsHandler{policy: policy, log: log.Named("settings_handler")}
}

// Get handles GET /api/v1/operators/{id}/dispatch-settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.policy.Effective(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Put handles PUT /api/v1/operators/{id}/dispatch-settings
//
// Only operators and admins may change the mode.
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrFail(w, r)
	if !ok {
		return
	}
	if actor.Role != model.RoleOperator && actor.Role != model.RoleAdmin {
		writeError(w, h.log, model.ErrForbidden)
		return
	}

	var req struct {
		DispatchMode model.DispatchMode `json:"dispatchMode" validate:"required,oneof=auto manual"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	s, err := h.policy.SetMode(r.Context(), mux.Vars(r)["id"], req.DispatchMode)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	h.log.Info("dispatch mode changed",
		zap.String("operator_id", s.OperatorID),
		zap.String("mode", string(s.DispatchMode)),
		zap.String("by", actor.ID))
	writeJSON(w, http.StatusOK, s)
}
