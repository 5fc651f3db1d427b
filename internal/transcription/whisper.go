package transcription

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"callfeedback/internal/types"
)

// Engine turns a local audio file into text plus time-coded segments.
type Engine interface {
	Transcribe(ctx context.Context, audioFile string) (Output, error)
}

type Output struct {
	Text     string
	Segments []types.Segment
}

// Whisper is an Engine backed by the OpenAI audio transcription endpoint.
type Whisper struct {
	api      *openai.Client
	model    string
	language string
}

type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

func NewWhisper(cfg WhisperConfig) *Whisper {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &Whisper{api: openai.NewClientWithConfig(oc), model: model, language: cfg.Language}
}

func (w *Whisper) Transcribe(ctx context.Context, audioFile string) (Output, error) {
	resp, err := w.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioFile,
		Language: w.language,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return Output{}, fmt.Errorf("whisper transcription: %w", err)
	}
	out := Output{Text: strings.TrimSpace(resp.Text)}
	for i, seg := range resp.Segments {
		out.Segments = append(out.Segments, types.Segment{
			Index: i,
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		})
	}
	return out, nil
}
