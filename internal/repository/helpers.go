package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/andy/billsink/internal/domain"
)

// timeLayout is the RFC3339 format for storing times in SQLite. All stored
// times are UTC so string comparison orders them.
const timeLayout = time.RFC3339

// parseTime parses a time string in RFC3339 format
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func parseNullTime(s sql.NullString, field string) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", field, err)
	}
	return &t, nil
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// translateError maps driver errors onto the domain taxonomy.
func translateError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return domain.Concurrency(op, err)
		case sqliteErr.Code == sqlite3.ErrBusy, sqliteErr.Code == sqlite3.ErrLocked:
			return domain.Concurrency(op, err)
		case sqliteErr.Code == sqlite3.ErrConstraint:
			return &domain.Error{Kind: domain.ErrValidation, Op: op, Message: "constraint violated", Err: err}
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// expectOne turns a zero-row write into the error produced by missing.
func expectOne(result sql.Result, missing func() error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return missing()
	}
	return nil
}
