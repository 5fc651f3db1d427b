// Package pipeline runs one recording through fetch, transcription,
// classification, script analysis, feedback and notification, writing each
// stage's output as soon as it exists.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"callfeedback/internal/classifier"
	"callfeedback/internal/feedback"
	"callfeedback/internal/logger"
	"callfeedback/internal/notify"
	"callfeedback/internal/scriptmatch"
	"callfeedback/internal/telephony"
	"callfeedback/internal/transcription"
	"callfeedback/internal/types"
)

// Event is one decoded "recording completed" delivery.
type Event struct {
	Name       string
	MessageID  string
	Recordings []types.Recording
}

type Fetcher interface {
	Fetch(ctx context.Context, req telephony.FetchRequest) (telephony.FetchResult, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcription.Result, error)
}

type Classifier interface {
	Classify(ctx context.Context, transcript string, durationSec int) classifier.Result
}

type Analyzer interface {
	Analyze(ctx context.Context, projectID *int64, transcript string) (scriptmatch.Result, error)
}

type FeedbackGenerator interface {
	Generate(ctx context.Context, in feedback.Input) (feedback.Result, error)
}

type Notifier interface {
	NotifyCall(ctx context.Context, s notify.Summary) error
}

// Records is the slice of the relational store the pipeline writes through.
type Records interface {
	ResolveAssignment(ctx context.Context, phoneUserID string) (userID, projectID *int64, err error)
	GetProject(ctx context.Context, id int64) (*types.Project, error)
	GetUser(ctx context.Context, id int64) (*types.User, error)

	UpsertCall(ctx context.Context, rec types.CallRecord) (int64, error)
	MarkTranscribed(ctx context.Context, id int64, transcriptPath string, segments []types.Segment) error
	MarkClassified(ctx context.Context, id int64, status types.CallStatus, confidence float64, reason string) error
	UpdateScriptMatch(ctx context.Context, id int64, match types.ScriptMatch, pattern types.CausalPattern) error
	UpdateFeedback(ctx context.Context, id int64, text string, promptID int64) error
	RecordSkip(ctx context.Context, id int64, reason string) error
}

// Outcome summarizes what happened to one recording.
type Outcome struct {
	RecordID    int64
	Stage       types.Stage
	Status      types.CallStatus
	Analyzed    bool
	Feedback    bool
	SkipReasons []string
}

type Pipeline struct {
	Fetcher     Fetcher
	Transcriber Transcriber
	Classifier  Classifier
	Analyzer    Analyzer
	Feedback    FeedbackGenerator
	Notifier    Notifier
	Records     Records
}

// ProcessEvent handles every recording of a delivery in order. A failing
// recording is logged and does not stop the rest.
func (p *Pipeline) ProcessEvent(ctx context.Context, ev Event) (processed, failed int) {
	log := logger.Component("pipeline").WithFields(logrus.Fields{
		"run_id":     uuid.NewString(),
		"event":      ev.Name,
		"message_id": ev.MessageID,
	})
	start := time.Now()
	for _, rec := range ev.Recordings {
		if err := ctx.Err(); err != nil {
			log.WithField("error", err.Error()).Warn("run cancelled before all recordings were processed")
			failed += len(ev.Recordings) - processed - failed
			break
		}
		if _, err := p.ProcessRecording(ctx, rec); err != nil {
			failed++
			continue
		}
		processed++
	}
	log.WithFields(logrus.Fields{
		"processed": processed,
		"failed":    failed,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("delivery processed")
	return processed, failed
}

// ProcessRecording runs all stages for one recording. It is the one place
// that logs a stage failure; the error is returned so callers can count it.
func (p *Pipeline) ProcessRecording(ctx context.Context, rec types.Recording) (Outcome, error) {
	log := logger.Component("pipeline").WithFields(logrus.Fields{
		"recording_id": rec.ID,
		"call_id":      rec.CallID,
	})
	out, err := p.run(ctx, rec, log)
	if err != nil {
		log.WithFields(logrus.Fields{
			"error": err.Error(),
			"stage": out.Stage,
		}).Error("recording processing failed")
		return out, err
	}
	log.WithFields(logrus.Fields{
		"record_id": out.RecordID,
		"status":    out.Status,
		"stage":     out.Stage,
		"analyzed":  out.Analyzed,
		"feedback":  out.Feedback,
	}).Info("recording processed")
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, rec types.Recording, log *logrus.Entry) (Outcome, error) {
	var out Outcome
	if rec.ID == "" || rec.DownloadURL == "" {
		return out, errors.New("recording is missing id or download url")
	}
	callID := rec.CallID
	if callID == "" {
		callID = rec.ID
	}

	fetched, err := p.Fetcher.Fetch(ctx, telephony.FetchRequest{
		DownloadURL: rec.DownloadURL,
		CallID:      callID,
		Extension:   rec.FileExtension,
	})
	if err != nil {
		return out, fmt.Errorf("fetch: %w", err)
	}

	userID, projectID, err := p.Records.ResolveAssignment(ctx, rec.OwnerID)
	if err != nil {
		return out, fmt.Errorf("resolve assignment: %w", err)
	}

	id, err := p.Records.UpsertCall(ctx, types.CallRecord{
		RecordingID:  rec.ID,
		CallID:       callID,
		CallLogID:    rec.CallLogID,
		CallTime:     parseCallTime(rec.DateTime),
		DurationSec:  rec.Duration,
		Direction:    rec.Direction,
		CallerNumber: rec.CallerNumber,
		CalleeNumber: rec.CalleeNumber,
		PhoneUserID:  rec.OwnerID,
		UserID:       userID,
		ProjectID:    projectID,
		AudioPath:    fetched.Path,
		AudioBytes:   fetched.Size,
	})
	if err != nil {
		return out, fmt.Errorf("create record: %w", err)
	}
	out.RecordID = id
	out.Stage = types.StageCreated
	log = log.WithField("record_id", id)

	tr, err := p.Transcriber.Transcribe(ctx, fetched.Path)
	if err != nil {
		p.skip(ctx, &out, log, "transcription failed: "+err.Error())
		return out, fmt.Errorf("transcribe: %w", err)
	}
	if err := p.Records.MarkTranscribed(ctx, id, tr.TranscriptPath, tr.Segments); err != nil {
		return out, fmt.Errorf("store transcript: %w", err)
	}
	out.Stage = types.StageTranscribed

	cls := p.Classifier.Classify(ctx, tr.Text, rec.Duration)
	if err := p.Records.MarkClassified(ctx, id, cls.Status, cls.Confidence, cls.Reason); err != nil {
		return out, fmt.Errorf("store classification: %w", err)
	}
	out.Stage = types.StageClassified
	out.Status = cls.Status
	log.WithFields(logrus.Fields{
		"status":     cls.Status,
		"confidence": cls.Confidence,
		"method":     cls.Method,
	}).Info("call classified")

	var (
		match   *types.ScriptMatch
		pattern types.CausalPattern
	)
	if cls.Status != types.StatusNoConversation {
		ar, err := p.Analyzer.Analyze(ctx, projectID, tr.Text)
		if err != nil {
			return out, fmt.Errorf("script analysis: %w", err)
		}
		if ar.ShouldAnalyze && ar.Match != nil {
			if err := p.Records.UpdateScriptMatch(ctx, id, *ar.Match, ar.Pattern); err != nil {
				return out, fmt.Errorf("store script match: %w", err)
			}
			out.Stage = types.StageAnalyzed
			out.Analyzed = true
			match, pattern = ar.Match, ar.Pattern
		} else {
			out.SkipReasons = append(out.SkipReasons, ar.SkipReason)
		}
	}

	fb, err := p.Feedback.Generate(ctx, feedback.Input{
		Status:      cls.Status,
		DurationSec: rec.Duration,
		ProjectID:   projectID,
		Transcript:  tr.Text,
		Match:       match,
		Pattern:     pattern,
	})
	if err != nil {
		return out, fmt.Errorf("feedback: %w", err)
	}
	switch {
	case fb.Text != nil && fb.PromptID != nil:
		if err := p.Records.UpdateFeedback(ctx, id, *fb.Text, *fb.PromptID); err != nil {
			return out, fmt.Errorf("store feedback: %w", err)
		}
		out.Stage = types.StageFeedbackGenerated
		out.Feedback = true
	case fb.ShouldGenerate:
		p.skip(ctx, &out, log, fb.SkipReason)
	default:
		out.SkipReasons = append(out.SkipReasons, fb.SkipReason)
	}

	p.notify(ctx, rec, id, userID, projectID, cls.Status, fb.Text, log)
	return out, nil
}

// skip persists an internal reason for a failed stage. The record keeps
// whatever earlier stages wrote.
func (p *Pipeline) skip(ctx context.Context, out *Outcome, log *logrus.Entry, reason string) {
	if reason == "" {
		return
	}
	out.SkipReasons = append(out.SkipReasons, reason)
	if err := p.Records.RecordSkip(ctx, out.RecordID, reason); err != nil {
		log.WithField("error", err.Error()).Warn("failed to record skip reason")
	}
}

func (p *Pipeline) notify(ctx context.Context, rec types.Recording, id int64, userID, projectID *int64,
	status types.CallStatus, text *string, log *logrus.Entry) {
	if p.Notifier == nil || status != types.StatusDecisionMakerReached || projectID == nil {
		return
	}
	project, err := p.Records.GetProject(ctx, *projectID)
	if err != nil {
		log.WithField("error", err.Error()).Warn("notification skipped: project lookup failed")
		return
	}
	summary := notify.Summary{
		RecordID:       id,
		ProjectID:      projectID,
		ProjectName:    project.Name,
		WebhookURL:     project.WebhookURL,
		CustomerNumber: customerNumber(rec),
		Status:         status,
		Feedback:       text,
	}
	if userID != nil {
		if u, err := p.Records.GetUser(ctx, *userID); err == nil {
			summary.UserName = u.DisplayName
		}
	}
	if err := p.Notifier.NotifyCall(ctx, summary); err != nil {
		log.WithField("error", err.Error()).Warn("call notification failed")
	}
}

// customerNumber is the far end of the call from the rep's side.
func customerNumber(rec types.Recording) string {
	if strings.EqualFold(rec.Direction, "inbound") {
		return rec.CallerNumber
	}
	return rec.CalleeNumber
}

func parseCallTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
