package httpx

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/page"
)

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// OK writes {"ok": true}.
func OK(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Error maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported as 500 without leaking the cause.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", zap.Error(err))
		}
		msg = "internal error"
	}
	WriteJSON(w, status, map[string]any{"error": msg})
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads the request body into v.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", apperr.ErrInvalid)
	}
	return nil
}

// PathID parses a numeric path value such as {id}.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("bad %s: %w", name, apperr.ErrInvalid)
	}
	return id, nil
}

// QueryInt returns the integer query parameter or def when absent or bad.
func QueryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}

// QueryTime parses an RFC3339 query parameter. Absent or bad values give
// the zero time.
func QueryTime(r *http.Request, name string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.URL.Query().Get(name))
	if err != nil {
		return time.Time{}
	}
	return t
}

// QueryCursor reads a keyset cursor from ?before=<RFC3339>&before_id=<id>,
// normally the created_at and id of the last row of the previous page.
func QueryCursor(r *http.Request) page.Cursor {
	c := page.Cursor{Time: QueryTime(r, "before")}
	if c.IsZero() {
		return page.Cursor{}
	}
	if id, err := strconv.ParseInt(r.URL.Query().Get("before_id"), 10, 64); err == nil && id > 0 {
		c.ID = id
	}
	return c
}

// ParseMultipart caps the body at maxBody bytes before parsing the form, so
// oversized uploads fail while being read. Parts beyond maxMemory spill to
// temporary files.
func ParseMultipart(w http.ResponseWriter, r *http.Request, maxMemory, maxBody int64) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return fmt.Errorf("request body larger than %d bytes: %w", tooBig.Limit, apperr.ErrInvalid)
		}
		return fmt.Errorf("bad multipart form: %w", apperr.ErrInvalid)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is required by the chat websocket upgrade.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Logging logs one line per request.
func Logging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
