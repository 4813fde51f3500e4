package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/Leganyst/appointment-booking/internal/apperror"
	"github.com/Leganyst/appointment-booking/internal/auth"
	"github.com/Leganyst/appointment-booking/internal/logger"
)

// RequestID берёт X-Request-ID или генерирует новый и кладёт его в контекст логгера.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func Logging(next http.Handler) http.Handler {
	return middleware.RequestLogger(&structuredLogger{})(next)
}

type structuredLogger struct{}

func (l *structuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{request: r}
}

type logEntry struct {
	request *http.Request
}

func (l *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ interface{}) {
	logger.InfoContext(l.request.Context(), "http request",
		"method", l.request.Method,
		"path", l.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"remote_addr", l.request.RemoteAddr,
	)
}

func (l *logEntry) Panic(v interface{}, stack []byte) {
	logger.ErrorContext(l.request.Context(), "http request panic",
		"panic", v,
		"stack", string(stack),
		"method", l.request.Method,
		"path", l.request.URL.Path,
	)
}

// Authenticate разбирает Bearer-токен владельца, если он есть.
// Кривой токен: 401 сразу; его отсутствие не ошибка.
func Authenticate(tokens *auth.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(authz, "Bearer ")
			if !ok || tokens == nil {
				writeError(w, r, apperror.ErrUnauthorized)
				return
			}
			ac, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				writeError(w, r, apperror.ErrUnauthorized)
				return
			}
			ctx := auth.WithContext(r.Context(), ac)
			ctx = logger.WithUserID(ctx, ac.UserID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth пропускает только запросы с валидным токеном владельца.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.FromContext(r.Context()); !ok {
			writeError(w, r, apperror.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
