package chat

import (
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/httpx"
)

type Handler struct {
	svc    *Service
	hub    *Hub
	events *analytics.Recorder
	log    *zap.Logger
}

func NewHandler(svc *Service, hub *Hub, events *analytics.Recorder, log *zap.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, events: events, log: log}
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

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}

	var body struct {
		MemberIDs []int64 `json:"member_ids"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	c, err := h.svc.Start(r.Context(), uid, body.MemberIDs)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, c)
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

func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}
	msgs, err := h.svc.Messages(r.Context(), uid, id, httpx.QueryCursor(r), httpx.QueryInt(r, "limit", 0))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, msgs)
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}

	var body struct {
		Body string `json:"body"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	m, err := h.svc.Send(r.Context(), uid, id, body.Body)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "message_sent", map[string]any{
		"conversation_id": id,
		"text_len":        analytics.TextLen(m.Body),
	})

	httpx.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	uid, id, ok := h.caller(w, r, true)
	if !ok {
		return
	}
	if err := h.svc.MarkRead(r.Context(), uid, id); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) Unread(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}
	u, err := h.svc.Unread(r.Context(), uid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

// Stream upgrades to a websocket and pushes chat events for the caller until
// either side goes away. Incoming frames are read only to notice the close.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	uid, _, ok := h.caller(w, r, false)
	if !ok {
		return
	}

	srv := websocket.Server{
		// auth already ran on the handshake request; native clients send no Origin
		Handshake: func(*websocket.Config, *http.Request) error { return nil },
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()

			sub := h.hub.Subscribe(uid)
			defer sub.Close()

			gone := make(chan struct{})
			go func() {
				defer close(gone)
				_, _ = io.Copy(io.Discard, ws)
			}()

			h.log.Debug("chat stream opened", zap.Int64("user_id", uid))
			for {
				select {
				case ev, ok := <-sub.C():
					if !ok {
						return
					}
					if err := websocket.JSON.Send(ws, ev); err != nil {
						h.log.Debug("chat stream send failed", zap.Int64("user_id", uid), zap.Error(err))
						return
					}
				case <-gone:
					h.log.Debug("chat stream closed", zap.Int64("user_id", uid))
					return
				case <-r.Context().Done():
					return
				}
			}
		},
	}
	srv.ServeHTTP(w, r)
}
