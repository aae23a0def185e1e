package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

type CtxKey string

const (
	ctxUserIDKey CtxKey = "analytics_user_id"
)

// Envelope is what we store with every event.
type Envelope struct {
	UserID       int64
	SessionID    string
	Platform     string
	AppVersion   string
	DeviceLocale string
	IPCountry    string
}

// Event is one stored analytics row as handed to the sink.
type Event struct {
	Name           string
	Time           time.Time
	Envelope       Envelope
	SourceEventKey string
	Properties     json.RawMessage
}

// Sink persists events.
type Sink interface {
	Insert(ctx context.Context, ev Event) error
}

// FromRequest extracts event envelope fields from request.
// Backend-trustable fields only.
func FromRequest(r *http.Request) Envelope {
	platform := strings.ToLower(strings.TrimSpace(r.Header.Get("X-Platform")))
	switch platform {
	case "ios", "android", "web":
	default:
		platform = "unknown"
	}

	locale := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if locale == "" {
		locale = strings.TrimSpace(r.Header.Get("X-Device-Locale"))
	}

	return Envelope{
		SessionID:    strings.TrimSpace(r.Header.Get("X-Session-Id")),
		Platform:     platform,
		AppVersion:   strings.TrimSpace(r.Header.Get("X-App-Version")),
		DeviceLocale: locale,
	}
}

func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, ctxUserIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (int64, bool) {
	uid, ok := ctx.Value(ctxUserIDKey).(int64)
	return uid, ok
}

// SourceEventKeyFromRequest returns the client idempotency key, if any.
// Duplicate keys are ignored on insert.
func SourceEventKeyFromRequest(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("Idempotency-Key")); k != "" {
		return k
	}
	return strings.TrimSpace(r.Header.Get("X-Source-Event-Key"))
}

// Recorder records product events. A nil Recorder or one without a sink
// records nothing.
type Recorder struct {
	sink Sink
	log  *zap.Logger
	now  func() time.Time
}

func NewRecorder(sink Sink, log *zap.Logger) *Recorder {
	return &Recorder{sink: sink, log: log, now: time.Now}
}

// Track records eventName for the request's user. Props must already be
// sanitized: ids, counts and lengths only, never raw user text.
// Failures are logged and never break the calling flow.
func (rec *Recorder) Track(r *http.Request, eventName string, props map[string]any) {
	if rec == nil || rec.sink == nil || eventName == "" {
		return
	}

	env := FromRequest(r)
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		return
	}
	env.UserID = uid

	if props == nil {
		props = map[string]any{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		rec.log.Warn("analytics props marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}

	ev := Event{
		Name:           eventName,
		Time:           rec.now().UTC(),
		Envelope:       env,
		SourceEventKey: SourceEventKeyFromRequest(r),
		Properties:     b,
	}
	if err := rec.sink.Insert(r.Context(), ev); err != nil {
		rec.log.Warn("analytics insert failed", zap.String("event", eventName), zap.Error(err))
	}
}

// SQLSink writes to analytics_events.
type SQLSink struct {
	db *sqlx.DB
}

func NewSQLSink(db *sqlx.DB) *SQLSink {
	return &SQLSink{db: db}
}

func (s *SQLSink) Insert(ctx context.Context, ev Event) error {
	env := ev.Envelope
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (
			event_name, event_time,
			user_id, session_id,
			platform, app_version, device_locale, ip_country,
			source_event_key,
			properties
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb)
		ON CONFLICT (source_event_key) DO NOTHING
	`, ev.Name, ev.Time,
		env.UserID, nullIfEmpty(env.SessionID),
		env.Platform, env.AppVersion, nullIfEmpty(env.DeviceLocale), nullIfEmpty(env.IPCountry),
		nullIfEmpty(ev.SourceEventKey),
		string(ev.Properties),
	)
	return err
}

func nullIfEmpty(s string) sql.NullString {
	if strings.TrimSpace(s) == "" {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: s, Valid: true}
}

// TextLen is the trimmed rune length of user text, the only thing we log
// about it.
func TextLen(parts ...string) int {
	n := 0
	for _, p := range parts {
		n += len([]rune(strings.TrimSpace(p)))
	}
	return n
}

// AppOpenedHandler records that the client app was opened.
func AppOpenedHandler(rec *Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserIDFromContext(r.Context()); !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var body struct {
			ColdStart bool   `json:"cold_start"`
			From      string `json:"from"` // push/deeplink/icon/unknown
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		rec.Track(r, "app_opened", map[string]any{
			"cold_start": body.ColdStart,
			"from":       body.From,
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
