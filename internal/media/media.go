// Package media stores user uploads (avatars, post images and videos) in an
// S3-compatible bucket.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"mellow-backend/internal/apperr"
)

// Kind is a coarse media class accepted by a call site.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Object describes a stored upload.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	PublicURL string
	MaxBytes  int64
}

type Storage struct {
	client    *minio.Client
	bucket    string
	publicURL string
	maxBytes  int64
}

func New(opts Options) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client: %w", err)
	}
	return &Storage{
		client:    client,
		bucket:    opts.Bucket,
		publicURL: strings.TrimRight(opts.PublicURL, "/"),
		maxBytes:  opts.MaxBytes,
	}, nil
}

// EnsureBucket creates the bucket on first start.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("creating bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Put validates and uploads r under prefix. The content type is sniffed from
// the bytes; whatever the client claimed is ignored.
func (s *Storage) Put(ctx context.Context, prefix string, r io.Reader, allowed ...Kind) (Object, error) {
	data, mt, err := Inspect(r, s.maxBytes, allowed...)
	if err != nil {
		return Object{}, err
	}

	key := ObjectKey(prefix, mt.Extension())
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mt.String(),
	})
	if err != nil {
		return Object{}, fmt.Errorf("uploading %s: %w", key, err)
	}

	return Object{
		Key:         key,
		URL:         s.URL(key),
		ContentType: mt.String(),
		Size:        int64(len(data)),
	}, nil
}

// Delete removes key. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != "NoSuchKey" {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (s *Storage) URL(key string) string {
	return s.publicURL + "/" + s.bucket + "/" + key
}

// Inspect reads at most maxBytes from r and checks the detected type is one
// of the allowed kinds.
func Inspect(r io.Reader, maxBytes int64, allowed ...Kind) ([]byte, *mimetype.MIME, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("empty upload: %w", apperr.ErrInvalid)
	}
	if int64(len(data)) > maxBytes {
		return nil, nil, fmt.Errorf("upload exceeds %d bytes: %w", maxBytes, apperr.ErrInvalid)
	}

	mt := mimetype.Detect(data)
	if !KindOf(mt.String()).in(allowed) {
		return nil, nil, fmt.Errorf("unsupported media type %s: %w", mt.String(), apperr.ErrInvalid)
	}
	return data, mt, nil
}

// KindOf maps a MIME type to its Kind, or "" when unsupported.
func KindOf(contentType string) Kind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return KindImage
	case strings.HasPrefix(contentType, "video/"):
		return KindVideo
	default:
		return ""
	}
}

func (k Kind) in(allowed []Kind) bool {
	if k == "" {
		return false
	}
	for _, a := range allowed {
		if a == k {
			return true
		}
	}
	return false
}

func ObjectKey(prefix, ext string) string {
	return strings.Trim(prefix, "/") + "/" + uuid.NewString() + ext
}
