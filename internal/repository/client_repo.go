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

const clientColumns = `id, user_id, name, email, hourly_rate, notes, is_archived, created_at, updated_at`

// ClientRepo is a SQLite implementation of ClientRepository
type ClientRepo struct {
	q db.Querier
}

// NewClientRepo creates a new ClientRepo
func NewClientRepo(q db.Querier) *ClientRepo {
	return &ClientRepo{q: q}
}

// Create inserts a new client into the database
func (r *ClientRepo) Create(ctx context.Context, client *domain.Client) error {
	if err := client.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO clients (user_id, name, email, hourly_rate, notes, is_archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.q.ExecContext(ctx, query,
		client.UserID,
		client.Name,
		client.Email,
		nullableInt(client.HourlyRate),
		client.Notes,
		client.IsArchived,
		formatTime(client.CreatedAt),
		formatTime(client.UpdatedAt),
	)
	if err != nil {
		if errors.Is(translateError("create client", err), domain.ErrConcurrency) {
			return domain.Conflict(fmt.Sprintf("client %q already exists", client.Name))
		}
		return fmt.Errorf("failed to create client: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get client ID: %w", err)
	}

	client.ID = id
	return nil
}

// GetByID retrieves a client by ID
func (r *ClientRepo) GetByID(ctx context.Context, id int64) (*domain.Client, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound("client", id)
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// GetByName retrieves an owner's client by name (case-insensitive)
func (r *ClientRepo) GetByName(ctx context.Context, userID int64, name string) (*domain.Client, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE user_id = ? AND name = ? COLLATE NOCASE`, userID, name)
	client, err := scanClient(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &domain.Error{Kind: domain.ErrNotFound, Message: fmt.Sprintf("client %q not found", name)}
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}

// List retrieves an owner's clients
func (r *ClientRepo) List(ctx context.Context, userID int64, includeArchived bool) ([]*domain.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE user_id = ?`
	if !includeArchived {
		query += " AND is_archived = 0"
	}
	query += " ORDER BY name"

	rows, err := r.q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	clients := make([]*domain.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating clients: %w", err)
	}

	return clients, nil
}

// Update updates an existing client
func (r *ClientRepo) Update(ctx context.Context, client *domain.Client) error {
	if err := client.Validate(); err != nil {
		return err
	}

	client.UpdatedAt = time.Now().UTC()
	result, err := r.q.ExecContext(ctx, `
		UPDATE clients
		SET name = ?, email = ?, hourly_rate = ?, notes = ?, is_archived = ?, updated_at = ?
		WHERE id = ?
	`,
		client.Name,
		client.Email,
		nullableInt(client.HourlyRate),
		client.Notes,
		client.IsArchived,
		formatTime(client.UpdatedAt),
		client.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return expectOne(result, func() error { return domain.NotFound("client", client.ID) })
}

// Archive hides a client from default listings
func (r *ClientRepo) Archive(ctx context.Context, id int64) error {
	return r.setArchived(ctx, id, true)
}

// Unarchive restores an archived client
func (r *ClientRepo) Unarchive(ctx context.Context, id int64) error {
	return r.setArchived(ctx, id, false)
}

func (r *ClientRepo) setArchived(ctx context.Context, id int64, archived bool) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE clients SET is_archived = ?, updated_at = ? WHERE id = ?`,
		archived, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to archive client: %w", err)
	}
	return expectOne(result, func() error { return domain.NotFound("client", id) })
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(s rowScanner) (*domain.Client, error) {
	client := &domain.Client{}
	var rate sql.NullInt64
	var createdAt, updatedAt string

	err := s.Scan(
		&client.ID,
		&client.UserID,
		&client.Name,
		&client.Email,
		&rate,
		&client.Notes,
		&client.IsArchived,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	client.HourlyRate = nullInt(rate)
	if client.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if client.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return client, nil
}
