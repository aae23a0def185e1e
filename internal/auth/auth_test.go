package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/apperr"
)

var testSecret = []byte("test-secret-0123456789")

type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]User
	media   map[int64][]string
	deleted []int64
}

func newMemStore() *memStore {
	return &memStore{users: map[int64]User{}, media: map[int64][]string{}}
}

func (m *memStore) CreateUser(_ context.Context, email, hash string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return 0, fmt.Errorf("email taken: %w", apperr.ErrConflict)
		}
	}
	m.nextID++
	m.users[m.nextID] = User{ID: m.nextID, Email: email, PasswordHash: hash}
	return m.nextID, nil
}

func (m *memStore) UserByEmail(_ context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, apperr.ErrNotFound
}

func (m *memStore) UserByID(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, apperr.ErrNotFound
	}
	return u, nil
}

func (m *memStore) DeleteAccount(_ context.Context, id int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return nil, apperr.ErrNotFound
	}
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return m.media[id], nil
}

type memMedia struct {
	deleted []string
}

func (m *memMedia) Delete(_ context.Context, key string) error {
	m.deleted = append(m.deleted, key)
	return nil
}

func TestToken(t *testing.T) {
	now := time.Now()

	t.Run("should round trip the user id", func(t *testing.T) {
		tok, err := GenerateToken(testSecret, 42, now)
		require.NoError(t, err)

		uid, err := ParseToken(testSecret, tok)
		require.NoError(t, err)
		assert.Equal(t, int64(42), uid)
	})

	t.Run("should reject a token signed with another secret", func(t *testing.T) {
		tok, err := GenerateToken([]byte("other-secret-0123456789"), 42, now)
		require.NoError(t, err)

		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})

	t.Run("should reject an expired token", func(t *testing.T) {
		tok, err := GenerateToken(testSecret, 42, now.Add(-tokenTTL-time.Hour))
		require.NoError(t, err)

		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})

	t.Run("should reject other signing methods", func(t *testing.T) {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
			"user_id": 42,
			"exp":     now.Add(time.Hour).Unix(),
		}).SignedString(testSecret)
		require.NoError(t, err)

		_, err = ParseToken(testSecret, tok)
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	var gotUID, gotAnalyticsUID int64
	next := func(w http.ResponseWriter, r *http.Request) {
		gotUID, _ = UserIDFromContext(r.Context())
		gotAnalyticsUID, _ = analytics.UserIDFromContext(r.Context())
	}
	h := New(testSecret).Wrap(next)
	tok, err := GenerateToken(testSecret, 7, time.Now())
	require.NoError(t, err)

	t.Run("should accept a bearer token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		r.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		h(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, int64(7), gotUID)
		assert.Equal(t, int64(7), gotAnalyticsUID)
	})

	t.Run("should accept a query token only on websocket upgrades", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/chat/stream?token="+tok, nil)
		w := httptest.NewRecorder()
		h(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		r.Header.Set("Upgrade", "websocket")
		w = httptest.NewRecorder()
		h(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		r.Header.Set("Authorization", "Bearer nope")
		w := httptest.NewRecorder()
		h(w, r)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func doJSON(t *testing.T, h http.HandlerFunc, body string, uid int64) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if uid != 0 {
		r = r.WithContext(WithUserID(r.Context(), uid))
	}
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func TestHandler_RegisterLogin(t *testing.T) {
	store := newMemStore()
	h := NewHandler(store, testSecret, &memMedia{}, zap.NewNop())

	t.Run("should register and normalize the email", func(t *testing.T) {
		w := doJSON(t, h.Register, `{"email":" Ann@Example.com ","password":"secret1"}`, 0)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			UserID int64  `json:"user_id"`
			Token  string `json:"token"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(1), resp.UserID)

		uid, err := ParseToken(testSecret, resp.Token)
		require.NoError(t, err)
		assert.Equal(t, int64(1), uid)
		assert.Equal(t, "ann@example.com", store.users[1].Email)
		assert.NotEqual(t, "secret1", store.users[1].PasswordHash)
	})

	t.Run("should reject duplicates and weak input", func(t *testing.T) {
		assert.Equal(t, http.StatusConflict, doJSON(t, h.Register, `{"email":"ann@example.com","password":"secret1"}`, 0).Code)
		assert.Equal(t, http.StatusBadRequest, doJSON(t, h.Register, `{"email":"bob","password":"secret1"}`, 0).Code)
		assert.Equal(t, http.StatusBadRequest, doJSON(t, h.Register, `{"email":"bob@example.com","password":"123"}`, 0).Code)
		assert.Equal(t, http.StatusBadRequest, doJSON(t, h.Register, `{`, 0).Code)
	})

	t.Run("should log in with the right password only", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, doJSON(t, h.Login, `{"email":"ANN@example.com","password":"secret1"}`, 0).Code)
		assert.Equal(t, http.StatusUnauthorized, doJSON(t, h.Login, `{"email":"ann@example.com","password":"wrong!!"}`, 0).Code)
		assert.Equal(t, http.StatusUnauthorized, doJSON(t, h.Login, `{"email":"nobody@example.com","password":"secret1"}`, 0).Code)
	})

	t.Run("should return the current user", func(t *testing.T) {
		w := doJSON(t, h.Me, ``, 1)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ann@example.com")
	})
}

func TestHandler_DeleteAccount(t *testing.T) {
	store := newMemStore()
	media := &memMedia{}
	h := NewHandler(store, testSecret, media, zap.NewNop())

	id, err := store.CreateUser(context.Background(), "ann@example.com", "x")
	require.NoError(t, err)
	store.media[id] = []string{"posts/a.png", "avatars/b.jpg"}

	w := doJSON(t, h.DeleteAccount, ``, id)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int64{id}, store.deleted)
	assert.Equal(t, []string{"posts/a.png", "avatars/b.jpg"}, media.deleted)

	assert.Equal(t, http.StatusNotFound, doJSON(t, h.DeleteAccount, ``, id).Code)
	assert.Equal(t, http.StatusUnauthorized, doJSON(t, h.DeleteAccount, ``, 0).Code)
}
