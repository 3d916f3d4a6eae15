package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/turf/internal/tracing"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// PostgresHistory implements History using the claim_sessions table.
type PostgresHistory struct {
	db *sql.DB
}

// NewPostgresHistory creates a new PostgresHistory.
func NewPostgresHistory(db *sql.DB) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// Save inserts rec.
func (h *PostgresHistory) Save(ctx context.Context, rec Record) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "claim_sessions", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	query := `
		INSERT INTO claim_sessions (
			id, owner_id, mode, status, failure_reason,
			point_count, length_meters, area, territory_id,
			started_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = h.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.OwnerID,
		rec.Mode.String(),
		string(rec.Status),
		nullString(rec.FailureReason),
		rec.PointCount,
		rec.LengthMeters,
		rec.AreaSqMeters,
		nullString(rec.TerritoryID),
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("failed to insert session record: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's sessions, newest first.
func (h *PostgresHistory) ListByOwner(ctx context.Context, ownerID string, limit int) (records []Record, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "claim_sessions", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `
		SELECT id, owner_id, mode, status, failure_reason,
		       point_count, length_meters, area, territory_id,
		       started_at, ended_at
		FROM claim_sessions
		WHERE owner_id = $1
		ORDER BY started_at DESC, id
	`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec           Record
			mode, status  string
			failure, terr sql.NullString
		)
		if err := rows.Scan(
			&rec.SessionID,
			&rec.OwnerID,
			&mode,
			&status,
			&failure,
			&rec.PointCount,
			&rec.LengthMeters,
			&rec.AreaSqMeters,
			&terr,
			&rec.StartedAt,
			&rec.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		if rec.Mode, err = ParseMode(mode); err != nil {
			return nil, err
		}
		rec.Status = Status(status)
		rec.FailureReason = failure.String
		rec.TerritoryID = terr.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session records: %w", err)
	}
	return records, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
