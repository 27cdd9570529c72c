// Package store persists projects and session history in sqlite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/peterje/pocketdev/internal/models"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

const projectColumns = `id, name, path, main_branch, run_script, build_script, active, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (models.Project, error) {
	var p models.Project
	err := row.Scan(&p.ID, &p.Name, &p.Path, &p.MainBranch, &p.RunScript, &p.BuildScript, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id int64) (models.Project, error) {
	p, err := scanProject(s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Project{}, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// CreateProject inserts p and returns it with its id and timestamps set.
func (s *Store) CreateProject(ctx context.Context, p models.Project) (models.Project, error) {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (name, path, main_branch, run_script, build_script, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Path, p.MainBranch, p.RunScript, p.BuildScript, p.Active, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return models.Project{}, fmt.Errorf("project at %s: %w", p.Path, ErrConflict)
	}
	if err != nil {
		return models.Project{}, fmt.Errorf("create project: %w", err)
	}
	p.ID, _ = result.LastInsertId()
	return p, nil
}

// ProjectUpdate holds the fields to change; nil fields are left alone.
type ProjectUpdate struct {
	Name        *string `json:"name"`
	MainBranch  *string `json:"main_branch"`
	RunScript   *string `json:"run_script"`
	BuildScript *string `json:"build_script"`
	Active      *bool   `json:"active"`
}

func (s *Store) UpdateProject(ctx context.Context, id int64, u ProjectUpdate) (models.Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return models.Project{}, err
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.MainBranch != nil {
		p.MainBranch = *u.MainBranch
	}
	if u.RunScript != nil {
		p.RunScript = *u.RunScript
	}
	if u.BuildScript != nil {
		p.BuildScript = *u.BuildScript
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	p.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, main_branch = ?, run_script = ?, build_script = ?, active = ?, updated_at = ? WHERE id = ?`,
		p.Name, p.MainBranch, p.RunScript, p.BuildScript, p.Active, p.UpdatedAt, id)
	if err != nil {
		return models.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

// DeleteProject removes the project and, by cascade, its session history.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	return nil
}
