package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"callfeedback/internal/types"
)

func (s *Store) CreateUser(ctx context.Context, displayName, phoneUserID string) (types.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return types.User{}, fmt.Errorf("create user: %w: display name required", ErrInvalid)
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO users (display_name, phone_user_id) VALUES (?, ?)`,
		displayName, nullableString(phoneUserID))
	if err != nil {
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.User{}, fmt.Errorf("create user id: %w", err)
	}
	return types.User{ID: id, DisplayName: displayName, PhoneUserID: phoneUserID}, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*types.User, error) {
	var (
		u     types.User
		phone sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, display_name, phone_user_id FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.DisplayName, &phone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	u.PhoneUserID = phone.String
	return &u, nil
}

func (s *Store) CreateProject(ctx context.Context, name, webhookURL string) (types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, fmt.Errorf("create project: %w: name required", ErrInvalid)
	}
	res, err := s.execWithRetry(ctx, `INSERT INTO projects (name, webhook_url) VALUES (?, ?)`, name, webhookURL)
	if err != nil {
		return types.Project{}, fmt.Errorf("create project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return types.Project{}, fmt.Errorf("create project id: %w", err)
	}
	return types.Project{ID: id, Name: name, WebhookURL: webhookURL}, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p types.Project
	err := s.db.QueryRowContext(ctx, `SELECT id, name, webhook_url FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.WebhookURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &p, nil
}

// AddMember adds or re-roles a user in a project.
func (s *Store) AddMember(ctx context.Context, projectID, userID int64, role types.Role) error {
	if !role.Valid() {
		return fmt.Errorf("add member: %w: role %q", ErrInvalid, role)
	}
	_, err := s.execWithRetry(ctx, `
        INSERT INTO project_members (project_id, user_id, role) VALUES (?, ?, ?)
        ON CONFLICT (project_id, user_id) DO UPDATE SET role = excluded.role`,
		projectID, userID, role)
	if err != nil {
		return fmt.Errorf("add member %d to project %d: %w", userID, projectID, err)
	}
	return nil
}

// MemberRole returns the user's role in a project, or ErrNotFound.
func (s *Store) MemberRole(ctx context.Context, projectID, userID int64) (types.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM project_members WHERE project_id = ? AND user_id = ?`, projectID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("member role: %w", err)
	}
	return types.Role(role), nil
}

// IsDirectorAnywhere reports whether the user directs at least one project.
func (s *Store) IsDirectorAnywhere(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM project_members WHERE user_id = ? AND role = ?`, userID, types.RoleDirector,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("director lookup: %w", err)
	}
	return n > 0, nil
}

// ResolveAssignment maps a phone-system agent id to the internal user and
// the project they belong to. Unknown agents resolve to nil, nil. A user in
// several projects is attributed to the lowest project id.
func (s *Store) ResolveAssignment(ctx context.Context, phoneUserID string) (userID, projectID *int64, err error) {
	if phoneUserID == "" {
		return nil, nil, nil
	}
	var (
		uid int64
		pid sql.NullInt64
	)
	err = s.db.QueryRowContext(ctx, `
        SELECT u.id, (SELECT MIN(pm.project_id) FROM project_members pm WHERE pm.user_id = u.id)
        FROM users u WHERE u.phone_user_id = ?`, phoneUserID,
	).Scan(&uid, &pid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("resolve assignment for %s: %w", phoneUserID, err)
	}
	return &uid, int64Ptr(pid), nil
}
