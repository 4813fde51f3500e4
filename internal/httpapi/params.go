package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// optionalUUID: пусто: nil; мусор: ошибка поля.
func optionalUUID(raw, field string, fields map[string]string) *uuid.UUID {
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fields[field] = "must be a uuid"
		return nil
	}
	return &id
}

func intQuery(r *http.Request, name string, def int, fields map[string]string) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fields[name] = "must be an integer"
		return def
	}
	return v
}

func timeQuery(r *http.Request, name string, fields map[string]string) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		fields[name] = "must be RFC3339"
		return time.Time{}
	}
	return t
}
