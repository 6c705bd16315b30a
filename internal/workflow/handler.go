package workflow

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	ientity "github.com/ovaphlow/pitchfork/service-civic-go/internal/issue/entity"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/httpjson"
)

// Handler exposes the lifecycle triggers under /issues/{id}/...
type Handler struct {
	engine *Engine
	logger *zap.SugaredLogger
}

func NewHandler(engine *Engine, logger *zap.SugaredLogger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

type AssignRequest struct {
	ContractorID string `json:"contractorId"`
}

type FundRequest struct {
	Amount *float64 `json:"amount"`
}

type StatusRequest struct {
	Status ientity.Status `json:"status"`
}

// action runs one trigger for the issue named by the {id} path value.
type action func(ctx context.Context, actor auth.Actor, issueID string, r *http.Request) (*ientity.Issue, error)

func (h *Handler) serve(run action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := auth.RequireActor(r)
		if err != nil {
			httpjson.WriteError(w, h.logger, err)
			return
		}
		is, err := run(r.Context(), actor, r.PathValue("id"), r)
		if err != nil {
			httpjson.WriteError(w, h.logger, err)
			return
		}
		httpjson.Write(w, http.StatusOK, is)
	}
}

// Assign handles POST /issues/{id}/assign.
func (h *Handler) Assign() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, r *http.Request) (*ientity.Issue, error) {
		var req AssignRequest
		if err := httpjson.Decode(r, &req); err != nil {
			return nil, err
		}
		return h.engine.Assign(ctx, actor, id, req.ContractorID)
	})
}

func (h *Handler) StartSurvey() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, _ *http.Request) (*ientity.Issue, error) {
		return h.engine.StartSurvey(ctx, actor, id)
	})
}

func (h *Handler) RequestFunds() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, r *http.Request) (*ientity.Issue, error) {
		var req FundRequest
		if err := httpjson.Decode(r, &req); err != nil {
			return nil, err
		}
		if req.Amount == nil {
			return nil, apperror.Validation("amount is required")
		}
		return h.engine.RequestFunds(ctx, actor, id, *req.Amount)
	})
}

func (h *Handler) ApproveFunds() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, _ *http.Request) (*ientity.Issue, error) {
		return h.engine.ApproveFunds(ctx, actor, id)
	})
}

func (h *Handler) Complete() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, _ *http.Request) (*ientity.Issue, error) {
		return h.engine.Complete(ctx, actor, id)
	})
}

// UpdateStatus handles the administrative override.
func (h *Handler) UpdateStatus() http.HandlerFunc {
	return h.serve(func(ctx context.Context, actor auth.Actor, id string, r *http.Request) (*ientity.Issue, error) {
		var req StatusRequest
		if err := httpjson.Decode(r, &req); err != nil {
			return nil, err
		}
		return h.engine.UpdateStatus(ctx, actor, id, req.Status)
	})
}
