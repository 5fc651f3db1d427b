package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"callfeedback/internal/types"
)

// UpsertCall creates the record for a recording right after its audio is
// stored. A redelivered recording hits the recording_id conflict: the raw
// metadata and audio columns are refreshed and every column a later stage
// owns is cleared, so the re-run starts from stage created on the same row.
func (s *Store) UpsertCall(ctx context.Context, rec types.CallRecord) (int64, error) {
	if rec.RecordingID == "" {
		return 0, fmt.Errorf("upsert call: %w: recording id required", ErrInvalid)
	}
	ts := now()
	var callTime any
	if !rec.CallTime.IsZero() {
		callTime = rec.CallTime.UTC().Format(time.RFC3339Nano)
	}
	var id int64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `
            INSERT INTO call_records (
                recording_id, call_id, call_log_id, call_time, duration_sec, direction,
                caller_number, callee_number, phone_user_id, user_id, project_id,
                audio_path, audio_bytes, stage, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT (recording_id) DO UPDATE SET
                call_id = excluded.call_id,
                call_log_id = excluded.call_log_id,
                call_time = excluded.call_time,
                duration_sec = excluded.duration_sec,
                direction = excluded.direction,
                caller_number = excluded.caller_number,
                callee_number = excluded.callee_number,
                phone_user_id = excluded.phone_user_id,
                user_id = excluded.user_id,
                project_id = excluded.project_id,
                audio_path = excluded.audio_path,
                audio_bytes = excluded.audio_bytes,
                transcript_path = NULL,
                segments_json = NULL,
                status = NULL,
                status_confidence = NULL,
                status_reason = NULL,
                match_overall = NULL,
                match_opening = NULL,
                match_hearing = NULL,
                match_proposal = NULL,
                match_closing = NULL,
                match_items_json = NULL,
                causal_pattern = NULL,
                feedback_text = NULL,
                prompt_id = NULL,
                skip_reason = NULL,
                stage = excluded.stage,
                updated_at = excluded.updated_at
            RETURNING id`,
			rec.RecordingID, rec.CallID, rec.CallLogID, callTime, rec.DurationSec, rec.Direction,
			rec.CallerNumber, rec.CalleeNumber, rec.PhoneUserID, nullableInt64(rec.UserID), nullableInt64(rec.ProjectID),
			nullableString(rec.AudioPath), rec.AudioBytes, types.StageCreated, ts, ts,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert call %s: %w", rec.RecordingID, err)
	}
	return id, nil
}

// MarkTranscribed stores the transcript reference and segments.
func (s *Store) MarkTranscribed(ctx context.Context, id int64, transcriptPath string, segments []types.Segment) error {
	segJSON, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("marshal segments: %w", err)
	}
	err = s.execOne(ctx,
		`UPDATE call_records SET transcript_path = ?, segments_json = ?, stage = ?, updated_at = ? WHERE id = ?`,
		transcriptPath, string(segJSON), types.StageTranscribed, now(), id)
	if err != nil {
		return fmt.Errorf("mark call %d transcribed: %w", id, err)
	}
	return nil
}

// MarkClassified stores the call outcome.
func (s *Store) MarkClassified(ctx context.Context, id int64, status types.CallStatus, confidence float64, reason string) error {
	if !status.Valid() {
		return fmt.Errorf("mark call %d classified: %w: status %q", id, ErrInvalid, status)
	}
	err := s.execOne(ctx,
		`UPDATE call_records SET status = ?, status_confidence = ?, status_reason = ?, stage = ?, updated_at = ? WHERE id = ?`,
		status, confidence, nullableString(reason), types.StageClassified, now(), id)
	if err != nil {
		return fmt.Errorf("mark call %d classified: %w", id, err)
	}
	return nil
}

// UpdateScriptMatch stores the analyzer output.
func (s *Store) UpdateScriptMatch(ctx context.Context, id int64, match types.ScriptMatch, pattern types.CausalPattern) error {
	itemsJSON, err := json.Marshal(match.Items)
	if err != nil {
		return fmt.Errorf("marshal match items: %w", err)
	}
	err = s.execOne(ctx, `
        UPDATE call_records SET
            match_overall = ?, match_opening = ?, match_hearing = ?, match_proposal = ?, match_closing = ?,
            match_items_json = ?, causal_pattern = ?, stage = ?, updated_at = ?
        WHERE id = ?`,
		match.Overall, match.Phases.Opening, match.Phases.Hearing, match.Phases.Proposal, match.Phases.Closing,
		string(itemsJSON), nullableString(string(pattern)), types.StageAnalyzed, now(), id)
	if err != nil {
		return fmt.Errorf("update call %d script match: %w", id, err)
	}
	return nil
}

// UpdateFeedback stores generated feedback and the prompt version used.
func (s *Store) UpdateFeedback(ctx context.Context, id int64, text string, promptID int64) error {
	err := s.execOne(ctx,
		`UPDATE call_records SET feedback_text = ?, prompt_id = ?, skip_reason = NULL, stage = ?, updated_at = ? WHERE id = ?`,
		text, promptID, types.StageFeedbackGenerated, now(), id)
	if err != nil {
		return fmt.Errorf("update call %d feedback: %w", id, err)
	}
	return nil
}

// RecordSkip keeps the internal reason a stage was skipped or failed.
func (s *Store) RecordSkip(ctx context.Context, id int64, reason string) error {
	err := s.execOne(ctx, `UPDATE call_records SET skip_reason = ?, updated_at = ? WHERE id = ?`, nullableString(reason), now(), id)
	if err != nil {
		return fmt.Errorf("record skip for call %d: %w", id, err)
	}
	return nil
}

const callColumns = `
    id, recording_id, call_id, call_log_id, call_time, duration_sec, direction,
    caller_number, callee_number, phone_user_id, user_id, project_id,
    audio_path, audio_bytes, transcript_path, segments_json,
    status, status_confidence, status_reason,
    match_overall, match_opening, match_hearing, match_proposal, match_closing, match_items_json,
    causal_pattern, feedback_text, prompt_id, skip_reason, stage, created_at, updated_at`

func (s *Store) GetCall(ctx context.Context, id int64) (*types.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM call_records WHERE id = ?`, id)
	return scanCall(row)
}

func (s *Store) GetCallByRecordingID(ctx context.Context, recordingID string) (*types.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM call_records WHERE recording_id = ?`, recordingID)
	return scanCall(row)
}

// ListProjectCalls returns a project's calls, newest first.
func (s *Store) ListProjectCalls(ctx context.Context, projectID int64, limit int) ([]types.CallRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callColumns+` FROM call_records WHERE project_id = ? ORDER BY call_time DESC, id DESC LIMIT ?`,
		projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list project calls: %w", err)
	}
	defer rows.Close()

	var out []types.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project calls: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(row scanner) (*types.CallRecord, error) {
	var (
		rec                                     types.CallRecord
		callTime, createdAt, updatedAt          sql.NullString
		audioPath, transcriptPath, segmentsJSON sql.NullString
		status, statusReason, itemsJSON         sql.NullString
		pattern                                 sql.NullString
		feedback, skipReason                    sql.NullString
		userID, projectID, audioBytes, promptID sql.NullInt64
		confidence                              sql.NullFloat64
		overall, opening, hearing               sql.NullInt64
		proposal, closing                       sql.NullInt64
		stage                                   string
	)
	err := row.Scan(
		&rec.ID, &rec.RecordingID, &rec.CallID, &rec.CallLogID, &callTime, &rec.DurationSec, &rec.Direction,
		&rec.CallerNumber, &rec.CalleeNumber, &rec.PhoneUserID, &userID, &projectID,
		&audioPath, &audioBytes, &transcriptPath, &segmentsJSON,
		&status, &confidence, &statusReason,
		&overall, &opening, &hearing, &proposal, &closing, &itemsJSON,
		&pattern, &feedback, &promptID, &skipReason, &stage, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan call: %w", err)
	}

	rec.CallTime = parseTime(callTime)
	rec.CreatedAt = parseTime(createdAt)
	rec.UpdatedAt = parseTime(updatedAt)
	rec.UserID = int64Ptr(userID)
	rec.ProjectID = int64Ptr(projectID)
	rec.PromptID = int64Ptr(promptID)
	rec.AudioPath = audioPath.String
	rec.AudioBytes = audioBytes.Int64
	rec.TranscriptPath = transcriptPath.String
	rec.Status = types.CallStatus(status.String)
	rec.StatusConfidence = confidence.Float64
	rec.StatusReason = statusReason.String
	rec.SkipReason = skipReason.String
	rec.CausalPattern = types.CausalPattern(pattern.String)
	rec.Stage = types.Stage(stage)
	if feedback.Valid {
		text := feedback.String
		rec.Feedback = &text
	}
	if segmentsJSON.Valid && segmentsJSON.String != "" {
		if err := json.Unmarshal([]byte(segmentsJSON.String), &rec.Segments); err != nil {
			return nil, fmt.Errorf("decode segments for call %d: %w", rec.ID, err)
		}
	}
	if overall.Valid {
		m := &types.ScriptMatch{
			Overall: int(overall.Int64),
			Phases: types.PhaseScores{
				Opening:  int(opening.Int64),
				Hearing:  int(hearing.Int64),
				Proposal: int(proposal.Int64),
				Closing:  int(closing.Int64),
			},
		}
		if itemsJSON.Valid && itemsJSON.String != "" {
			if err := json.Unmarshal([]byte(itemsJSON.String), &m.Items); err != nil {
				return nil, fmt.Errorf("decode match items for call %d: %w", rec.ID, err)
			}
		}
		rec.ScriptMatch = m
	}
	return &rec, nil
}
