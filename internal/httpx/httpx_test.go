package httpx

import (
	"bytes"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mellow-backend/internal/apperr"
)

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", apperr.ErrNotFound)))
	assert.Equal(t, http.StatusForbidden, StatusFor(apperr.ErrForbidden))
	assert.Equal(t, http.StatusConflict, StatusFor(apperr.ErrConflict))
	assert.Equal(t, http.StatusBadRequest, StatusFor(apperr.ErrInvalid))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(apperr.ErrUnauthorized))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestError_HidesInternalCauses(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, zap.NewNop(), errors.New("dial tcp: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func TestQueryCursor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/posts?before=2026-04-02T10:00:00.5Z&before_id=42", nil)
	c := QueryCursor(r)
	assert.Equal(t, time.Date(2026, 4, 2, 10, 0, 0, 5e8, time.UTC), c.Time)
	assert.Equal(t, int64(42), c.ID)

	r = httptest.NewRequest(http.MethodGet, "/posts?before_id=42", nil)
	assert.True(t, QueryCursor(r).IsZero())

	r = httptest.NewRequest(http.MethodGet, "/posts?before=2026-04-02T10:00:00Z&before_id=x", nil)
	assert.Zero(t, QueryCursor(r).ID)
}

func multipartBody(t *testing.T, size int) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "blob.bin")
	require.NoError(t, err)
	_, err = fw.Write(bytes.Repeat([]byte{'a'}, size))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestParseMultipart(t *testing.T) {
	t.Run("should parse forms under the cap", func(t *testing.T) {
		body, ct := multipartBody(t, 512)
		r := httptest.NewRequest(http.MethodPost, "/upload", body)
		r.Header.Set("Content-Type", ct)

		require.NoError(t, ParseMultipart(httptest.NewRecorder(), r, 1024, 4096))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		_ = f.Close()
	})

	t.Run("should stop reading oversized bodies", func(t *testing.T) {
		body, ct := multipartBody(t, 64<<10)
		r := httptest.NewRequest(http.MethodPost, "/upload", body)
		r.Header.Set("Content-Type", ct)

		err := ParseMultipart(httptest.NewRecorder(), r, 1024, 4096)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperr.ErrInvalid))
		assert.Greater(t, body.Len(), 0, "body should not be drained past the cap")
	})

	t.Run("should reject non-multipart bodies", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("{}")))
		r.Header.Set("Content-Type", "application/json")
		err := ParseMultipart(httptest.NewRecorder(), r, 1024, 4096)
		assert.True(t, errors.Is(err, apperr.ErrInvalid))
	})
}
