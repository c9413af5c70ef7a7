package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"nexus/api/internal/util"
)

var (
	ErrTitleTaken   = errors.New("note title already exists in project")
	ErrEmptyTagName = errors.New("tag name is empty")
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore runs the same SQL against Postgres and SQLite; both accept $N
// placeholders and ON CONFLICT DO NOTHING.
type SQLStore struct {
	db      *sql.DB
	q       dbtx
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, q: db, dialect: dialect}
}

func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// inTx runs fn against a transaction-bound copy of the store. Nested calls
// reuse the outer transaction.
func (s *SQLStore) inTx(ctx context.Context, fn func(tx *SQLStore) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&SQLStore{db: s.db, q: tx, dialect: s.dialect}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func (s *SQLStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return User{}, fmt.Errorf("ensure user: empty name")
	}
	if user, err := s.userByName(ctx, name); err == nil {
		return user, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	if _, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, display_name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (display_name) DO NOTHING
	`, util.NewID("usr"), name, now()); err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	user, err := s.userByName(ctx, name)
	if err != nil {
		return User{}, fmt.Errorf("reload user: %w", err)
	}
	return user, nil
}

func (s *SQLStore) userByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.q.QueryRowContext(ctx, `SELECT id, display_name, created_at FROM users WHERE display_name=$1`, name).
		Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	return user, err
}

func (s *SQLStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.q.QueryRowContext(ctx, `SELECT id, display_name, created_at FROM users WHERE id=$1`, userID).
		Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// InsertProject creates the project and the creator's owner membership atomically.
func (s *SQLStore) InsertProject(ctx context.Context, project Project) error {
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now()
	}
	return s.inTx(ctx, func(tx *SQLStore) error {
		if _, err := tx.q.ExecContext(ctx, `
			INSERT INTO projects (id, name, description, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, project.ID, project.Name, project.Description, project.CreatedBy, project.CreatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.AddMember(ctx, Membership{
			ProjectID: project.ID,
			UserID:    project.CreatedBy,
			Role:      RoleOwner,
			CreatedAt: project.CreatedAt,
		}); err != nil {
			return err
		}
		return nil
	})
}

func (s *SQLStore) GetProject(ctx context.Context, projectID string) (Project, error) {
	var project Project
	err := s.q.QueryRowContext(ctx, `
		SELECT id, name, description, created_by, created_at
		FROM projects WHERE id=$1
	`, projectID).Scan(&project.ID, &project.Name, &project.Description, &project.CreatedBy, &project.CreatedAt)
	if err != nil {
		return Project{}, err
	}
	return project, nil
}

// ListProjectsForUser returns the projects the user belongs to, newest first.
func (s *SQLStore) ListProjectsForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.created_by, p.created_at
		FROM projects p
		JOIN project_members m ON m.project_id = p.id
		WHERE m.user_id = $1
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		var project Project
		if err := rows.Scan(&project.ID, &project.Name, &project.Description, &project.CreatedBy, &project.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, project)
	}
	return items, rows.Err()
}

func (s *SQLStore) GetMembership(ctx context.Context, projectID, userID string) (Membership, error) {
	var membership Membership
	err := s.q.QueryRowContext(ctx, `
		SELECT project_id, user_id, role, created_at
		FROM project_members WHERE project_id=$1 AND user_id=$2
	`, projectID, userID).Scan(&membership.ProjectID, &membership.UserID, &membership.Role, &membership.CreatedAt)
	if err != nil {
		return Membership{}, err
	}
	return membership, nil
}

// AddMember inserts a membership row. An existing row for the pair is left
// untouched and reported as not added.
func (s *SQLStore) AddMember(ctx context.Context, membership Membership) (bool, error) {
	if membership.CreatedAt.IsZero() {
		membership.CreatedAt = now()
	}
	result, err := s.q.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, membership.ProjectID, membership.UserID, membership.Role, membership.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("membership rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *SQLStore) ListMembers(ctx context.Context, projectID string) ([]Membership, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT project_id, user_id, role, created_at
		FROM project_members WHERE project_id=$1
		ORDER BY created_at ASC
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]Membership, 0)
	for rows.Next() {
		var membership Membership
		if err := rows.Scan(&membership.ProjectID, &membership.UserID, &membership.Role, &membership.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, membership)
	}
	return items, rows.Err()
}
