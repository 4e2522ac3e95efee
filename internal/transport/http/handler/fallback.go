package handler

import (
	"encoding/json"
	"net/http"

	"github.com/dashboard-api/internal/application/fallback"
	"github.com/dashboard-api/internal/domain"
	"github.com/dashboard-api/internal/pkg/validate"
	"github.com/go-chi/chi/v5"
)

// FallbackHandler exposes registration, verification-code, and
// reconciliation endpoints backed by the fallback identity service.
type FallbackHandler struct {
	svc fallback.Service
}

func NewFallbackHandler(svc fallback.Service) *FallbackHandler {
	return &FallbackHandler{svc: svc}
}

func (h *FallbackHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	result, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CodeAction handles /verification-codes/{action} with action request|verify.
func (h *FallbackHandler) CodeAction(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "request":
		var req fallback.IssueCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if _, err := h.svc.IssueCode(r.Context(), req.Email, req.Purpose); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code sent"})
	case "verify":
		var req fallback.VerifyCodeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err := h.svc.VerifyCode(r.Context(), req.Email, req.Purpose, req.Code); err != nil {
			httpError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "code verified"})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

func (h *FallbackHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req fallback.ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}

func (h *FallbackHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CheckStatus(r.Context()))
}

func (h *FallbackHandler) PendingUsers(w http.ResponseWriter, r *http.Request) {
	users := h.svc.ListPendingUsers(r.Context())
	writeJSON(w, http.StatusOK, PendingUsersEnvelope{Count: len(users), Data: users})
}

func (h *FallbackHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.TriggerSync(r.Context())
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
