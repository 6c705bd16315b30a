package auth

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
	"github.com/ovaphlow/pitchfork/service-civic-go/pkg/httpjson"
)

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" || !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("bearer "):])
}

// Authenticate rejects requests without a valid bearer token and stores the
// actor in the request context.
func Authenticate(t *TokenIssuer, logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				httpjson.Write(w, http.StatusUnauthorized, httpjson.ErrorBody{Error: "unauthenticated", Message: "missing bearer token"})
				return
			}
			actor, err := t.Parse(token)
			if err != nil {
				logger.Debugw("token rejected", "err", err)
				httpjson.Write(w, http.StatusUnauthorized, httpjson.ErrorBody{Error: "unauthenticated", Message: "invalid token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// RequireActor returns the actor of an authenticated request.
func RequireActor(r *http.Request) (Actor, error) {
	a, ok := ActorFrom(r.Context())
	if !ok {
		return Actor{}, apperror.Unauthorized("no authenticated actor")
	}
	return a, nil
}
