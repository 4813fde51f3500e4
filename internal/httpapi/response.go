package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/logger"
)

// ErrorResponse: тело любого ответа с ошибкой.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code"`
	Fields map[string]string `json:"fields,omitempty"`
}

const codeRateLimited = "RATE_LIMIT_EXCEEDED"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// writeError: типизированная ошибка ядра → HTTP-код и публичный текст.
// Сырые ошибки хранилища клиенту не показываются.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := apperror.From(err)
	status := apperror.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, ErrorResponse{
		Error:  apperror.PublicMessage(err),
		Code:   string(ae.Code),
		Fields: ae.Fields,
	})
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string, fields map[string]string) {
	writeError(w, r, apperror.Validation(msg, fields))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		badRequest(w, r, "invalid json body", map[string]string{"body": err.Error()})
		return false
	}
	return true
}
