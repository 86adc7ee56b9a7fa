package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/andy/billsink/internal/db"
	"github.com/andy/billsink/internal/domain"
)

const projectColumns = `id, user_id, client_id, name, hourly_rate, is_archived, created_at, updated_at`

// ProjectRepo is a SQLite implementation of ProjectRepository
type ProjectRepo struct {
	q db.Querier
}

func NewProjectRepo(q db.Querier) *ProjectRepo {
	return &ProjectRepo{q: q}
}

func (r *ProjectRepo) Create(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}

	result, err := r.q.ExecContext(ctx, `
		INSERT INTO projects (user_id, client_id, name, hourly_rate, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		project.UserID,
		project.ClientID,
		project.Name,
		nullableInt(project.HourlyRate),
		project.IsArchived,
		formatTime(project.CreatedAt),
		formatTime(project.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get project ID: %w", err)
	}
	project.ID = id
	return nil
}

func (r *ProjectRepo) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("project", id)
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

func (r *ProjectRepo) List(ctx context.Context, userID int64, clientID *int64, includeArchived bool) ([]*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE user_id = ?`
	args := []any{userID}
	if clientID != nil {
		query += " AND client_id = ?"
		args = append(args, *clientID)
	}
	if !includeArchived {
		query += " AND is_archived = 0"
	}
	query += " ORDER BY name"

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]*domain.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	return projects, rows.Err()
}

func (r *ProjectRepo) Update(ctx context.Context, project *domain.Project) error {
	if err := project.Validate(); err != nil {
		return err
	}

	project.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE projects SET name = ?, hourly_rate = ?, is_archived = ?, updated_at = ?
		WHERE id = ?
	`, project.Name, nullableInt(project.HourlyRate), project.IsArchived, formatTime(project.UpdatedAt), project.ID)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	return expectOne(result, func() error { return domain.NotFound("project", project.ID) })
}

func scanProject(s rowScanner) (*domain.Project, error) {
	p := &domain.Project{}
	var rate sql.NullInt64
	var createdAt, updatedAt string
	if err := s.Scan(&p.ID, &p.UserID, &p.ClientID, &p.Name, &rate, &p.IsArchived, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	p.HourlyRate = nullInt(rate)
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return p, nil
}
