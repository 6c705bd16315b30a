package issue

import (
	"errors"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/httpjson"
)

type Handler struct {
	svc    *IssueService
	logger *zap.SugaredLogger
}

func NewHandler(svc *IssueService, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// createRequest is the JSON form of a report without an image.
type createRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Address     string  `json:"address"`
}

// Create accepts multipart/form-data with an optional "image" file, or a
// plain JSON body.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	in, cleanup, err := parseCreate(w, r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	defer cleanup()
	is, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusCreated, is)
}

func parseCreate(w http.ResponseWriter, r *http.Request) (CreateInput, func(), error) {
	noop := func() {}
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "multipart/form-data" {
		var req createRequest
		if err := httpjson.Decode(r, &req); err != nil {
			return CreateInput{}, noop, err
		}
		return CreateInput{
			Title: req.Title, Description: req.Description, Category: req.Category,
			Lat: req.Lat, Lng: req.Lng, Address: req.Address,
		}, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxSize+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		return CreateInput{}, noop, apperror.Validation("invalid multipart form: %v", err)
	}
	cleanup := func() { _ = r.MultipartForm.RemoveAll() }
	lat, err := strconv.ParseFloat(r.FormValue("lat"), 64)
	if err != nil {
		return CreateInput{}, cleanup, apperror.Validation("lat must be a number")
	}
	lng, err := strconv.ParseFloat(r.FormValue("lng"), 64)
	if err != nil {
		return CreateInput{}, cleanup, apperror.Validation("lng must be a number")
	}
	in := CreateInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Lat:         lat,
		Lng:         lng,
		Address:     r.FormValue("address"),
	}
	f, fh, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
	case err != nil:
		return CreateInput{}, cleanup, apperror.Validation("invalid image: %v", err)
	default:
		in.Image = f
		in.ImageName = fh.Filename
		return in, func() { f.Close(); cleanup() }, nil
	}
	return in, cleanup, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	out, err := h.svc.List(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	out, err := h.svc.Mine(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	is, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, is)
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.History(r.Context(), r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}

func (h *Handler) Upvote(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	is, err := h.svc.Upvote(r.Context(), actor, r.PathValue("id"))
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, is)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	st, err := h.svc.Stats(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

func (h *Handler) CitizenStats(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	st, err := h.svc.CitizenStats(r.Context(), actor)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, st)
}

// RecentIssues reads an optional ?limit= query parameter.
func (h *Handler) RecentIssues(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireActor(r)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 1 {
			httpjson.WriteError(w, h.logger, apperror.Validation("limit must be a positive integer"))
			return
		}
	}
	out, err := h.svc.RecentIssues(r.Context(), actor, limit)
	if err != nil {
		httpjson.WriteError(w, h.logger, err)
		return
	}
	httpjson.Write(w, http.StatusOK, out)
}
