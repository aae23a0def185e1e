package posts

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/apperr"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/httpx"
)

// maxPostForm is the room left for form fields on top of the media limit.
const maxPostForm = 1 << 20

type Handler struct {
	svc      *Service
	maxMedia int64
	events   *analytics.Recorder
	log      *zap.Logger
}

// NewHandler caps create requests at maxMedia bytes of upload plus form
// overhead.
func NewHandler(svc *Service, maxMedia int64, events *analytics.Recorder, log *zap.Logger) *Handler {
	return &Handler{svc: svc, maxMedia: maxMedia, events: events, log: log}
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request, withID bool) (uid, id int64, ok bool) {
	uid, ok = auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}
	if !withID {
		return uid, 0, true
	}
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, h.log, err)
		return 0, 0, false
	}
	return uid, id, true
}

// Create accepts either JSON {content, community_id, ephemeral} or a
// multipart form with the same fields plus an optional "file".
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}

	in, closeFile, err := parseNewPost(w, r, h.maxMedia+maxPostForm)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	defer closeFile()

	p, err := h.svc.Create(r.Context(), uid, in)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "post_created", map[string]any{
		"post_id":      p.ID,
		"text_len":     analytics.TextLen(p.Content),
		"has_media":    p.MediaKey != "",
		"ephemeral":    p.ExpiresAt != nil,
		"in_community": p.CommunityID != nil,
	})

	httpx.WriteJSON(w, http.StatusCreated, p)
}

func parseNewPost(w http.ResponseWriter, r *http.Request, maxBody int64) (NewPost, func(), error) {
	noop := func() {}
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mt != "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, maxPostForm)
		var body struct {
			Content     string `json:"content"`
			CommunityID *int64 `json:"community_id"`
			Ephemeral   bool   `json:"ephemeral"`
		}
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return NewPost{}, noop, err
		}
		return NewPost{Content: body.Content, CommunityID: body.CommunityID, Ephemeral: body.Ephemeral}, noop, nil
	}

	if err := httpx.ParseMultipart(w, r, maxPostForm, maxBody); err != nil {
		return NewPost{}, noop, err
	}

	in := NewPost{Content: r.FormValue("content")}
	if v := r.FormValue("community_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return NewPost{}, noop, fmt.Errorf("bad community_id: %w", apperr.ErrInvalid)
		}
		in.CommunityID = &id
	}
	if v := r.FormValue("ephemeral"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewPost{}, noop, fmt.Errorf("bad ephemeral flag: %w", apperr.ErrInvalid)
		}
		in.Ephemeral = b
	}

	file, _, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return in, noop, nil
	case err != nil:
		return NewPost{}, noop, fmt.Errorf("bad file: %w", apperr.ErrInvalid)
	}
	in.Media = file
	return in, func() { _ = file.Close() }, nil
}

func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}
	h.writeFeed(w, r, uid, nil)
}

func (h *Handler) CommunityFeed(w http.ResponseWriter, r *http.Request) {
	uid, communityID, ok := h.caller(w, r, true)
	if !ok {
		return
	}
	h.writeFeed(w, r, uid, &communityID)
}

func (h *Handler) writeFeed(w http.ResponseWriter, r *http.Request, uid int64, communityID *int64) {
	list, err := h.svc.Feed(r.Context(), uid, communityID, httpx.QueryCursor(r), httpx.QueryInt(r, "limit", 0))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), uid, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), uid, id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) Like(w http.ResponseWriter, r *http.Request) {
	h.setLiked(w, r, true)
}

func (h *Handler) Unlike(w http.ResponseWriter, r *http.Request) {
	h.setLiked(w, r, false)
}

func (h *Handler) setLiked(w http.ResponseWriter, r *http.Request, liked bool) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	p, err := h.svc.SetLiked(r.Context(), uid, id, liked)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &body); err != nil {
			httpx.Error(w, h.log, err)
			return
		}
	}

	res, err := h.svc.Report(r.Context(), uid, id, body.Reason)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "post_reported", map[string]any{
		"post_id":      id,
		"report_count": res.ReportCount,
		"reason_len":   analytics.TextLen(body.Reason),
	})
	if res.Removed {
		h.log.Info("post removed after reports", zap.Int64("post_id", id), zap.Int("reports", res.ReportCount))
		h.events.Track(r, "post_removed", map[string]any{
			"post_id": id,
			"cause":   "reports",
		})
	}

	httpx.WriteJSON(w, http.StatusOK, res)
}
