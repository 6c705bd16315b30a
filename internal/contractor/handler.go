package contractor

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/httpjson"
)

type Handler struct {
	svc    *ContractorService
	logger *zap.SugaredLogger
}

func NewHandler(svc *ContractorService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /contractors?sortBy=rating|completedTasks|efficiency|costPerTask|companyName.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.List(r.Context(), r.URL.Query().Get("sortBy"))
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	c, err := h.svc.Profile(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, c)
}

func (h *Handler) Tasks(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	out, err := h.svc.AssignedTasks(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}
