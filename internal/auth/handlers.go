package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mellow-backend/internal/apperr"
	"mellow-backend/internal/httpx"
)

const minPasswordLen = 6

// MediaRemover deletes stored media objects.
type MediaRemover interface {
	Delete(ctx context.Context, key string) error
}

type Handler struct {
	store  Store
	secret []byte
	media  MediaRemover
	log    *zap.Logger
	now    func() time.Time
}

func NewHandler(store Store, secret []byte, media MediaRemover, log *zap.Logger) *Handler {
	return &Handler{store: store, secret: secret, media: media, log: log, now: time.Now}
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c credentials) normalize() (credentials, error) {
	c.Email = strings.ToLower(strings.TrimSpace(c.Email))
	if c.Email == "" || !strings.Contains(c.Email, "@") {
		return c, fmt.Errorf("valid email required: %w", apperr.ErrInvalid)
	}
	if len(c.Password) < minPasswordLen {
		return c, fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, apperr.ErrInvalid)
	}
	return c, nil
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	body, err := body.normalize()
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		httpx.Error(w, h.log, fmt.Errorf("hashing password: %w", err))
		return
	}

	id, err := h.store.CreateUser(r.Context(), body.Email, string(hash))
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	h.writeToken(w, http.StatusCreated, id)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentials
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Error(w, h.log, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))

	user, err := h.store.UserByEmail(r.Context(), email)
	if errors.Is(err, apperr.ErrNotFound) {
		http.Error(w, "invalid login", http.StatusUnauthorized)
		return
	}
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)) != nil {
		http.Error(w, "invalid login", http.StatusUnauthorized)
		return
	}

	h.writeToken(w, http.StatusOK, user.ID)
}

func (h *Handler) writeToken(w http.ResponseWriter, status int, id int64) {
	token, err := GenerateToken(h.secret, id, h.now())
	if err != nil {
		httpx.Error(w, h.log, fmt.Errorf("signing token: %w", err))
		return
	}
	httpx.WriteJSON(w, status, map[string]any{
		"user_id": id,
		"token":   token,
	})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.store.UserByID(r.Context(), uid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"user_id": uid,
		"email":   user.Email,
	})
}

// Logout exists for client symmetry: JWTs are stateless, the client drops
// the token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	uid, ok := UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	keys, err := h.store.DeleteAccount(r.Context(), uid)
	if err != nil {
		httpx.Error(w, h.log, err)
		return
	}

	for _, key := range keys {
		if err := h.media.Delete(r.Context(), key); err != nil {
			h.log.Warn("media delete failed after account deletion",
				zap.Int64("user_id", uid), zap.String("key", key), zap.Error(err))
		}
	}

	httpx.OK(w)
}
