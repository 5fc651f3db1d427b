// Package transcription turns stored call audio into transcript text and
// segments, persisting the transcript next to the audio.
package transcription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"callfeedback/internal/logger"
	"callfeedback/internal/storage"
	"callfeedback/internal/types"
)

// MaxAudioBytes is the speech-to-text upload limit.
const MaxAudioBytes = 25 << 20

const (
	defaultAttempts     = 3
	defaultInitialDelay = 2 * time.Second
)

var ErrAudioTooLarge = errors.New("audio exceeds transcription size limit")

type Result struct {
	TranscriptPath string
	Text           string
	Segments       []types.Segment
}

// Transcriber downloads audio to a scratch file, runs the engine and writes
// the transcript back to storage, retrying the whole attempt with
// exponential backoff.
type Transcriber struct {
	store      storage.Store
	engine     Engine
	scratchDir string

	maxBytes     int64
	attempts     int
	initialDelay time.Duration
	timer        backoff.Timer
}

type Option func(*Transcriber)

// WithTimer overrides the backoff timer (useful for tests).
func WithTimer(t backoff.Timer) Option {
	return func(tr *Transcriber) { tr.timer = t }
}

func WithMaxBytes(n int64) Option {
	return func(tr *Transcriber) { tr.maxBytes = n }
}

func New(store storage.Store, engine Engine, scratchDir string, opts ...Option) *Transcriber {
	tr := &Transcriber{
		store:        store,
		engine:       engine,
		scratchDir:   scratchDir,
		maxBytes:     MaxAudioBytes,
		attempts:     defaultAttempts,
		initialDelay: defaultInitialDelay,
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

func (t *Transcriber) newBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = t.initialDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxInterval = t.initialDelay << uint(t.attempts)
	bo.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(bo, uint64(t.attempts-1)), ctx)
}

// Transcribe runs speech-to-text for the object at audioPath. The final
// attempt's error is returned when every attempt fails.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	log := logger.Component("transcriber").WithField("audio_path", audioPath)

	var res Result
	attempt := 0
	op := func() error {
		attempt++
		out, err := t.attempt(ctx, audioPath, log)
		if err != nil {
			return err
		}
		res = out
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.WithField("attempt", attempt).WithField("retry_in", next.String()).
			WithField("error", err.Error()).Warn("transcription attempt failed")
	}
	if err := backoff.RetryNotifyWithTimer(op, t.newBackOff(ctx), notify, t.timer); err != nil {
		log.WithField("attempts", attempt).WithField("error", err.Error()).Error("transcription failed")
		return Result{}, fmt.Errorf("transcribe %s: %w", audioPath, err)
	}
	log.WithField("attempts", attempt).WithField("segments", len(res.Segments)).Info("transcription stored")
	return res, nil
}

func (t *Transcriber) attempt(ctx context.Context, audioPath string, log *logrus.Entry) (Result, error) {
	size, err := t.store.Size(ctx, audioPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Result{}, backoff.Permanent(err)
		}
		return Result{}, err
	}
	if size > t.maxBytes {
		return Result{}, backoff.Permanent(fmt.Errorf("%w: %s > %s", ErrAudioTooLarge,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(t.maxBytes))))
	}

	local, err := t.download(ctx, audioPath)
	if err != nil {
		return Result{}, err
	}
	defer os.Remove(local)

	out, err := t.engine.Transcribe(ctx, local)
	if err != nil {
		return Result{}, err
	}
	log.WithField("chars", len(out.Text)).Debug("engine returned transcript")

	transcriptPath := storage.TranscriptPath(audioPath)
	if err := t.store.Upload(ctx, transcriptPath, []byte(out.Text), "text/plain; charset=utf-8"); err != nil {
		return Result{}, err
	}
	return Result{TranscriptPath: transcriptPath, Text: out.Text, Segments: out.Segments}, nil
}

func (t *Transcriber) download(ctx context.Context, audioPath string) (string, error) {
	r, err := t.store.Open(ctx, audioPath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	f, err := os.CreateTemp(t.scratchDir, "call-*"+path.Ext(audioPath))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close scratch file: %w", err)
	}
	return f.Name(), nil
}
