// Package storage wraps the object store holding call audio and transcripts.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

const (
	audioDir      = "audio/"
	transcriptDir = "transcript/"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the blob surface the pipeline depends on.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
	SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// Bucket implements Store on top of a gocloud bucket.
type Bucket struct {
	b *blob.Bucket
}

// OpenURL opens a bucket by URL, e.g. file:///data?create_dir=true or mem://.
func OpenURL(ctx context.Context, url string) (*Bucket, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", url, err)
	}
	return &Bucket{b: b}, nil
}

// NewBucket wraps an already opened bucket.
func NewBucket(b *blob.Bucket) *Bucket {
	return &Bucket{b: b}
}

func (s *Bucket) Close() error {
	return s.b.Close()
}

func (s *Bucket) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.b.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *Bucket) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := s.b.ReadAll(ctx, key)
	if err != nil {
		return nil, wrap("download", key, err)
	}
	return data, nil
}

func (s *Bucket) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.b.NewReader(ctx, key, nil)
	if err != nil {
		return nil, wrap("open", key, err)
	}
	return r, nil
}

func (s *Bucket) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := s.b.Attributes(ctx, key)
	if err != nil {
		return 0, wrap("stat", key, err)
	}
	return attrs.Size, nil
}

func (s *Bucket) SignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.b.SignedURL(ctx, key, &blob.SignedURLOptions{Expiry: expiry})
	if err != nil {
		return "", wrap("sign", key, err)
	}
	return u, nil
}

func wrap(op, key string, err error) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// AudioPath is the deterministic audio key for a call, so reprocessing
// overwrites instead of duplicating.
func AudioPath(callID, ext string) string {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		ext = "mp3"
	}
	return audioDir + callID + "." + ext
}

// TranscriptPath derives the transcript key from an audio key by swapping the
// directory segment and the extension.
func TranscriptPath(audioPath string) string {
	p := strings.Replace(audioPath, audioDir, transcriptDir, 1)
	return strings.TrimSuffix(p, path.Ext(p)) + ".txt"
}
