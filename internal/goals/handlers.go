package goals

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

// withGoal resolves the caller and the {id} path value.
func (h *Handler) withGoal(w http.ResponseWriter, r *http.Request) (uid, goalID int64, ok bool) {
	uid, ok = auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return 0, 0, false
	}
	goalID, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, h.log, err)
		return 0, 0, false
	}
	return uid, goalID, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body Input
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	g, err := h.svc.Create(r.Context(), uid, body)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	// analytics: goal_created (no raw text)
	h.events.Track(r, "goal_created", map[string]any{
		"goal_id":   g.ID,
		"text_len":  analytics.TextLen(g.Title, g.Description),
		"is_public": g.IsPublic,
		"category":  g.Category != "",
	})

	httpx.WriteJSON(w, http.StatusCreated, g)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.svc.ListMine(r.Context(), uid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Recommended(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.svc.Recommended(r.Context(), uid, httpx.QueryInt(r, "limit", 0))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	g, err := h.svc.Get(r.Context(), uid, goalID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	var body Input
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	g, err := h.svc.Update(r.Context(), uid, goalID, body)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "goal_updated", map[string]any{
		"goal_id":  g.ID,
		"text_len": analytics.TextLen(g.Title, g.Description),
	})

	httpx.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), uid, goalID); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	g, err := h.svc.Join(r.Context(), uid, goalID)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.events.Track(r, "goal_joined", map[string]any{
		"goal_id":      g.ID,
		"member_count": len(g.MemberIDs),
	})

	httpx.WriteJSON(w, http.StatusOK, g)
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	if err := h.svc.Leave(r.Context(), uid, goalID); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.OK(w)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, true)
}

func (h *Handler) Uncomplete(w http.ResponseWriter, r *http.Request) {
	h.setCompleted(w, r, false)
}

func (h *Handler) setCompleted(w http.ResponseWriter, r *http.Request, done bool) {
	uid, goalID, ok := h.withGoal(w, r)
	if !ok {
		return
	}

	g, err := h.svc.SetCompleted(r.Context(), uid, goalID, done)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	if done {
		h.events.Track(r, "goal_completed", map[string]any{
			"goal_id":        g.ID,
			"by_owner":       g.OwnerID == uid,
			"goal_completed": g.IsCompleted,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, g)
}
