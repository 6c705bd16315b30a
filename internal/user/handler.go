package user

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/httpjson"
)

// Handler exposes HTTP endpoints for account operations.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterInput
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, u)
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, ErrBadCredentials) {
		h.logger.Debugw("login failed", "email", req.Email)
		httpjson.Write(w, http.StatusUnauthorized, httpjson.ErrorBody{Error: "unauthenticated", Message: err.Error()})
		return
	}
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.Me(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var req ProfileInput
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), actor, req)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, u)
}

func (h *Handler) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var req AdminInput
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	u, err := h.svc.CreateAdmin(r.Context(), actor, req)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, u)
}
