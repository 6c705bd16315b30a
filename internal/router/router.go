package router

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/contractor"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/issue"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-civic-go/internal/workflow"
)

const prefix = "/civic-api"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps carries everything RegisterRoutes mounts. Hub, UploadDir, Metrics,
// Limiter and DB are optional.
type Deps struct {
	Logger      *zap.SugaredLogger
	Tokens      *auth.TokenIssuer
	Users       *user.Handler
	Issues      *issue.Handler
	Contractors *contractor.Handler
	Workflow    *workflow.Handler
	Hub         http.Handler
	UploadDir   string
	Metrics     *metrics.Metrics
	Limiter     *RateLimiter
	DB          Pinger
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()
	authed := auth.Authenticate(d.Tokens, d.Logger)
	protect := func(h http.HandlerFunc) http.Handler { return authed(h) }

	mux.HandleFunc("GET "+prefix+"/health", func(w http.ResponseWriter, r *http.Request) {
		if d.DB != nil {
			if err := d.DB.PingContext(r.Context()); err != nil {
				d.Logger.Warnw("health check failed", "err", err)
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics.Handler())
	}
	if d.Hub != nil {
		mux.Handle("GET "+prefix+"/ws", d.Hub)
	}
	if d.UploadDir != "" {
		mux.Handle("GET "+media.URLPrefix, http.StripPrefix(media.URLPrefix, http.FileServer(http.Dir(d.UploadDir))))
	}

	// accounts
	mux.HandleFunc("POST "+prefix+"/auth/register", d.Users.Register)
	mux.HandleFunc("POST "+prefix+"/auth/login", d.Users.Login)
	mux.Handle("GET "+prefix+"/auth/me", protect(d.Users.Me))
	mux.Handle("PUT "+prefix+"/auth/update-profile", protect(d.Users.UpdateProfile))
	mux.Handle("POST "+prefix+"/auth/admins", protect(d.Users.CreateAdmin))

	// issues
	mux.Handle("POST "+prefix+"/issues", protect(d.Issues.Create))
	mux.Handle("GET "+prefix+"/issues", protect(d.Issues.List))
	mux.Handle("GET "+prefix+"/issues/mine", protect(d.Issues.Mine))
	mux.Handle("GET "+prefix+"/issues/{id}", protect(d.Issues.Get))
	mux.Handle("GET "+prefix+"/issues/{id}/history", protect(d.Issues.History))
	mux.Handle("POST "+prefix+"/issues/{id}/upvote", protect(d.Issues.Upvote))
	mux.Handle("GET "+prefix+"/admin/stats", protect(d.Issues.Stats))
	mux.Handle("GET "+prefix+"/dashboard/stats", protect(d.Issues.CitizenStats))
	mux.Handle("GET "+prefix+"/dashboard/my-issues", protect(d.Issues.RecentIssues))

	// lifecycle
	mux.Handle("POST "+prefix+"/issues/{id}/assign", protect(d.Workflow.Assign()))
	mux.Handle("POST "+prefix+"/issues/{id}/survey", protect(d.Workflow.StartSurvey()))
	mux.Handle("POST "+prefix+"/issues/{id}/funds/request", protect(d.Workflow.RequestFunds()))
	mux.Handle("POST "+prefix+"/issues/{id}/funds/approve", protect(d.Workflow.ApproveFunds()))
	mux.Handle("POST "+prefix+"/issues/{id}/complete", protect(d.Workflow.Complete()))
	mux.Handle("POST "+prefix+"/issues/{id}/status", protect(d.Workflow.UpdateStatus()))

	// contractors
	mux.Handle("GET "+prefix+"/contractors", protect(d.Contractors.List))
	mux.Handle("GET "+prefix+"/contractors/me", protect(d.Contractors.Me))
	mux.Handle("GET "+prefix+"/contractors/{id}/tasks", protect(d.Contractors.Tasks))

	// metrics must sit directly on the mux: it reads r.Pattern, which the
	// mux sets on the request value it is handed.
	var handler http.Handler = d.Metrics.Middleware(mux)
	if d.Limiter != nil {
		handler = d.Limiter.Handler(handler)
	}
	handler = SecurityHeadersMiddleware()(handler)
	handler = LoggingMiddleware(d.Logger)(handler)
	return RequestIDMiddleware()(handler)
}
