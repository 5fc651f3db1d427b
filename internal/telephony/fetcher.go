// Package telephony talks to the phone system: OAuth tokens and recording
// downloads.
package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"callfeedback/internal/logger"
	"callfeedback/internal/storage"
	"callfeedback/internal/transcription"
)

const downloadTimeout = 2 * time.Minute

// ErrRecordingTooLarge is returned for recordings the transcriber would
// reject anyway.
var ErrRecordingTooLarge = errors.New("recording exceeds size limit")

type FetchRequest struct {
	DownloadURL string
	CallID      string
	// Extension is the codec hint from the phone system, e.g. "mp3".
	Extension string
}

type FetchResult struct {
	Path string
	Size int64
}

// Fetcher downloads finished recordings and copies them into object storage.
type Fetcher struct {
	tokens   TokenProvider
	store    storage.Store
	client   *http.Client
	maxBytes int64
}

func NewFetcher(tokens TokenProvider, store storage.Store, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: downloadTimeout}
	}
	return &Fetcher{tokens: tokens, store: store, client: client, maxBytes: transcription.MaxAudioBytes}
}

// Fetch downloads one recording and stores it under audio/<call-id>.<ext>.
// Errors are not retried here.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResult, error) {
	if strings.TrimSpace(req.DownloadURL) == "" {
		return FetchResult{}, fmt.Errorf("fetch recording %s: download url required", req.CallID)
	}
	if strings.TrimSpace(req.CallID) == "" {
		return FetchResult{}, fmt.Errorf("fetch recording: call id required")
	}
	log := logger.Component("fetcher").WithField("call_id", req.CallID)

	token, err := f.tokens.Token(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("phone api token: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.DownloadURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("build download request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return FetchResult{}, fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return FetchResult{}, fmt.Errorf("download recording: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if resp.ContentLength > f.maxBytes {
		return FetchResult{}, fmt.Errorf("%w: %s", ErrRecordingTooLarge, humanize.Bytes(uint64(resp.ContentLength)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return FetchResult{}, fmt.Errorf("read recording body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return FetchResult{}, fmt.Errorf("%w: more than %s", ErrRecordingTooLarge, humanize.Bytes(uint64(f.maxBytes)))
	}

	path := storage.AudioPath(req.CallID, req.Extension)
	if err := f.store.Upload(ctx, path, data, contentType(path, resp.Header.Get("Content-Type"))); err != nil {
		return FetchResult{}, err
	}
	size := int64(len(data))
	log.WithField("path", path).WithField("size", humanize.Bytes(uint64(size))).Info("recording stored")
	return FetchResult{Path: path, Size: size}, nil
}

func contentType(path, fromServer string) string {
	if fromServer != "" && !strings.HasPrefix(fromServer, "application/octet-stream") {
		return fromServer
	}
	if ct := mime.TypeByExtension(path[strings.LastIndex(path, "."):]); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
