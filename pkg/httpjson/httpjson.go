package httpjson

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-go/internal/apperror"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func Write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err through apperror and hides internal details from the
// client. Internal errors are logged at error level, domain errors at debug.
func WriteError(w http.ResponseWriter, logger *zap.SugaredLogger, err error) {
	status := apperror.HTTPStatus(err)
	kind := apperror.Kind(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorw("request failed", "err", err)
		msg = "internal error"
	} else {
		logger.Debugw("request rejected", "kind", kind, "err", err)
	}
	Write(w, status, ErrorBody{Error: kind, Message: msg})
}

// Decode reads a JSON body into v. Any decoding failure is a validation error.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperror.Validation("invalid payload: %v", err)
	}
	return nil
}
