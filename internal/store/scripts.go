package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"callfeedback/internal/types"
)

// SaveTalkScript stores a new active version of a project's talk script and
// its hearing checklist, deactivating the previous version.
func (s *Store) SaveTalkScript(ctx context.Context, script types.TalkScript) (types.TalkScript, error) {
	if script.ProjectID == 0 {
		return types.TalkScript{}, fmt.Errorf("save talk script: %w: project id required", ErrInvalid)
	}
	if len(script.HearingItems) > types.MaxHearingItems {
		return types.TalkScript{}, fmt.Errorf("save talk script: %w: %d hearing items exceeds limit of %d", ErrInvalid, len(script.HearingItems), types.MaxHearingItems)
	}
	items := make([]types.HearingItem, 0, len(script.HearingItems))
	seen := make(map[string]bool, len(script.HearingItems))
	for _, it := range script.HearingItems {
		it.Name = strings.TrimSpace(it.Name)
		if it.Name == "" {
			return types.TalkScript{}, fmt.Errorf("save talk script: %w: hearing item name is empty", ErrInvalid)
		}
		if seen[it.Name] {
			return types.TalkScript{}, fmt.Errorf("save talk script: %w: duplicate hearing item %q", ErrInvalid, it.Name)
		}
		seen[it.Name] = true
		items = append(items, it)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].DisplayOrder < items[j].DisplayOrder })
	for i := range items {
		items[i].DisplayOrder = i + 1
	}

	saved := script
	saved.HearingItems = items
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var version int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM talk_scripts WHERE project_id = ?`, script.ProjectID,
		).Scan(&version); err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE talk_scripts SET is_active = 0 WHERE project_id = ? AND is_active = 1`, script.ProjectID,
		); err != nil {
			return fmt.Errorf("deactivate: %w", err)
		}
		ts := now()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO talk_scripts (project_id, version, opening, proposal, closing, is_active, created_at) VALUES (?, ?, ?, ?, ?, 1, ?)`,
			script.ProjectID, version+1, script.Opening, script.Proposal, script.Closing, ts,
		)
		if err != nil {
			return fmt.Errorf("insert script: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert id: %w", err)
		}
		for _, it := range items {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO hearing_items (talk_script_id, name, script, is_default, display_order) VALUES (?, ?, ?, ?, ?)`,
				id, it.Name, it.Script, boolToInt(it.IsDefault), it.DisplayOrder,
			); err != nil {
				return fmt.Errorf("insert hearing item %q: %w", it.Name, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		saved.ID = id
		saved.Version = version + 1
		saved.IsActive = true
		saved.CreatedAt = parseTime(sql.NullString{String: ts, Valid: true})
		return nil
	})
	if err != nil {
		return types.TalkScript{}, fmt.Errorf("save talk script for project %d: %w", script.ProjectID, err)
	}
	return saved, nil
}

// ActiveTalkScript returns the project's active script with its hearing
// items in display order, or nil, nil when the project has none.
func (s *Store) ActiveTalkScript(ctx context.Context, projectID int64) (*types.TalkScript, error) {
	var (
		ts        types.TalkScript
		createdAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
        SELECT id, project_id, version, opening, proposal, closing, created_at
        FROM talk_scripts WHERE project_id = ? AND is_active = 1`, projectID,
	).Scan(&ts.ID, &ts.ProjectID, &ts.Version, &ts.Opening, &ts.Proposal, &ts.Closing, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active talk script: %w", err)
	}
	ts.IsActive = true
	ts.CreatedAt = parseTime(createdAt)

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, script, is_default, display_order FROM hearing_items WHERE talk_script_id = ? ORDER BY display_order, id`,
		ts.ID)
	if err != nil {
		return nil, fmt.Errorf("hearing items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it        types.HearingItem
			isDefault int
		)
		if err := rows.Scan(&it.Name, &it.Script, &isDefault, &it.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan hearing item: %w", err)
		}
		it.IsDefault = isDefault == 1
		ts.HearingItems = append(ts.HearingItems, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hearing items: %w", err)
	}
	return &ts, nil
}
