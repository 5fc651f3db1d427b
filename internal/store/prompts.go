package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"callfeedback/internal/types"
)

const promptColumns = `id, project_id, type, version, content, is_active, created_by, created_at`

// ActivePrompt returns the active prompt for exactly this (project, type)
// pair. A nil projectID addresses the system default.
func (s *Store) ActivePrompt(ctx context.Context, projectID *int64, t types.PromptType) (*types.Prompt, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE project_id IS ? AND type = ? AND is_active = 1`,
		nullableInt64(projectID), t)
	p, err := scanPrompt(row)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ResolvePrompt prefers the project's own prompt and falls back to the
// system default. Neither existing yields nil, nil.
func (s *Store) ResolvePrompt(ctx context.Context, projectID *int64, t types.PromptType) (*types.Prompt, error) {
	if projectID != nil {
		p, err := s.ActivePrompt(ctx, projectID, t)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("project prompt: %w", err)
		}
	}
	p, err := s.ActivePrompt(ctx, nil, t)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("default prompt: %w", err)
	}
	return p, nil
}

// SavePrompt deactivates the current version and inserts the next one as
// active, in one transaction.
func (s *Store) SavePrompt(ctx context.Context, projectID *int64, t types.PromptType, content string, createdBy *int64) (types.Prompt, error) {
	if !t.Valid() {
		return types.Prompt{}, fmt.Errorf("save prompt: %w: type %q", ErrInvalid, t)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return types.Prompt{}, fmt.Errorf("save prompt: %w: content is empty", ErrInvalid)
	}

	var saved types.Prompt
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM prompts WHERE project_id IS ? AND type = ?`,
			nullableInt64(projectID), t,
		).Scan(&version); err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE prompts SET is_active = 0 WHERE project_id IS ? AND type = ? AND is_active = 1`,
			nullableInt64(projectID), t,
		); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}

		ts := now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO prompts (project_id, type, version, content, is_active, created_by, created_at) VALUES (?, ?, ?, ?, 1, ?, ?)`,
			nullableInt64(projectID), t, version+1, content, nullableInt64(createdBy), ts,
		)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert id: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		saved = types.Prompt{
			ID:        id,
			ProjectID: projectID,
			Type:      t,
			Version:   version + 1,
			Content:   content,
			IsActive:  true,
			CreatedBy: createdBy,
			CreatedAt: parseTime(sql.NullString{String: ts, Valid: true}),
		}
		return nil
	})
	if err != nil {
		return types.Prompt{}, fmt.Errorf("save %s prompt: %w", t, err)
	}
	return saved, nil
}

// DeactivatePrompt turns a prompt version off without activating another.
func (s *Store) DeactivatePrompt(ctx context.Context, id int64) error {
	if err := s.execOne(ctx, `UPDATE prompts SET is_active = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deactivate prompt %d: %w", id, err)
	}
	return nil
}

// ListPromptVersions returns all versions for a pair, newest first.
func (s *Store) ListPromptVersions(ctx context.Context, projectID *int64, t types.PromptType) ([]types.Prompt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+promptColumns+` FROM prompts WHERE project_id IS ? AND type = ? ORDER BY version DESC`,
		nullableInt64(projectID), t)
	if err != nil {
		return nil, fmt.Errorf("list prompt versions: %w", err)
	}
	defer rows.Close()

	var out []types.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompt versions: %w", err)
	}
	return out, nil
}

func scanPrompt(row scanner) (*types.Prompt, error) {
	var (
		p                    types.Prompt
		projectID, createdBy sql.NullInt64
		ptype                string
		active               int
		createdAt            sql.NullString
	)
	err := row.Scan(&p.ID, &projectID, &ptype, &p.Version, &p.Content, &active, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan prompt: %w", err)
	}
	p.ProjectID = int64Ptr(projectID)
	p.CreatedBy = int64Ptr(createdBy)
	p.Type = types.PromptType(ptype)
	p.IsActive = active == 1
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}
