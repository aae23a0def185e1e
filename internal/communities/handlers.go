package communities

import (
	"net/http"

	"go.uber.org/zap"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/httpx"
)

type Handler struct {
	svc    *Service
	events *analytics.Recorder
	log    *zap.Logger
}

func NewHandler(svc *Service, events *analytics.Recorder, log *zap.Logger) *Handler {
	return &Handler{svc: svc, events: events, log: log}
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

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}

	var body Input
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	c, err := h.svc.Create(r.Context(), uid, body)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "community_created", map[string]any{
		"community_id": c.ID,
		"name_len":     analytics.TextLen(c.Name),
	})

	httpx.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}

	list, err := h.svc.List(r.Context(), uid)
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

	c, err := h.svc.Get(r.Context(), uid, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	c, err := h.svc.Join(r.Context(), uid, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "community_joined", map[string]any{
		"community_id": c.ID,
		"member_count": c.MemberCount,
	})

	httpx.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	if err := h.svc.Leave(r.Context(), uid, id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) Members(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	members, err := h.svc.Members(r.Context(), uid, id)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, members)
}
