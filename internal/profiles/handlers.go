package profiles

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/httpx"
)

// maxAvatarForm bounds the multipart form kept in memory and is the room
// allowed for form overhead on top of the media limit.
const maxAvatarForm = 1 << 20

type Handler struct {
	svc      *Service
	maxMedia int64
	log      *zap.Logger
}

func NewHandler(svc *Service, maxMedia int64, log *zap.Logger) *Handler {
	return &Handler{svc: svc, maxMedia: maxMedia, log: log}
}

func (h *Handler) GetMine(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	h.write(w, r, uid)
}

func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	h.write(w, r, id)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, uid int64) {
	p, err := h.svc.Get(r.Context(), uid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var body Update
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	p, err := h.svc.Update(r.Context(), uid, body)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	uid, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := httpx.ParseMultipart(w, r, maxAvatarForm, h.maxMedia+maxAvatarForm); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, h.log, fmt.Errorf("file field required: %w", apperr.ErrInvalid))
		return
	}
	defer file.Close()

	p, err := h.svc.SetAvatar(r.Context(), uid, file)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, p)
}
