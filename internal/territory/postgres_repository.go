package territory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/onnwee/turf/internal/geo"
	"github.com/onnwee/turf/internal/tracing"
)

// pqUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pqUniqueViolation = "23505"

// PostgresRepository implements Repository using PostgreSQL with PostGIS.
// The polygon is stored twice: as ordered JSON points, which preserve the
// walked order exactly, and as a geometry(Polygon, 4326) column for spatial
// queries.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const territoryColumns = `
	id, owner_id, points, area, point_count, active, created_at, updated_at
`

// Insert stores a new territory.
func (r *PostgresRepository) Insert(ctx context.Context, t *Territory) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationInsert)
	defer func() { endSpan(err) }()

	points, err := json.Marshal(t.Polygon)
	if err != nil {
		return fmt.Errorf("failed to encode territory points: %w", err)
	}
	box := t.Bounds()

	query := `
		INSERT INTO territories (
			id, owner_id, points, polygon,
			min_lat, min_lng, max_lat, max_lng,
			area, point_count, geohash, active, created_at, updated_at
		) VALUES (
			$1, $2, $3, ST_GeomFromText($4, 4326),
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		t.ID,
		t.OwnerID,
		points,
		t.WKT(),
		box.MinLat, box.MinLng, box.MaxLat, box.MaxLng,
		t.Area,
		t.PointCount,
		t.CoarseGeohash(),
		t.Active,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateTerritory
		}
		return fmt.Errorf("failed to insert territory: %w", err)
	}
	return nil
}

// GetByID retrieves a territory by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (t *Territory, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + territoryColumns + ` FROM territories WHERE id = $1`

	t, err = scanTerritory(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTerritoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get territory: %w", err)
	}
	return t, nil
}

// ListActive returns all active territories, oldest first.
func (r *PostgresRepository) ListActive(ctx context.Context) (list []*Territory, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + territoryColumns + `
		FROM territories
		WHERE active
		ORDER BY created_at, id
	`
	return r.query(ctx, "list active territories", query)
}

// ListByOwner returns the owner's active territories, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string) (list []*Territory, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	query := `SELECT ` + territoryColumns + `
		FROM territories
		WHERE active AND owner_id = $1
		ORDER BY created_at DESC, id
	`
	return r.query(ctx, "list territories by owner", query, ownerID)
}

// ListWithin returns active territories whose polygon bounds intersect box.
func (r *PostgresRepository) ListWithin(ctx context.Context, box geo.BoundingBox) (list []*Territory, err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationQuery)
	defer func() { endSpan(err) }()

	// ST_MakeEnvelope takes xmin, ymin, xmax, ymax: longitude first.
	query := `SELECT ` + territoryColumns + `
		FROM territories
		WHERE active AND polygon && ST_MakeEnvelope($1, $2, $3, $4, 4326)
		ORDER BY created_at, id
	`
	return r.query(ctx, "list territories within bounds", query,
		box.MinLng, box.MinLat, box.MaxLng, box.MaxLat)
}

// Deactivate marks a territory inactive.
func (r *PostgresRepository) Deactivate(ctx context.Context, id string) (err error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "territories", tracing.DBOperationUpdate)
	defer func() { endSpan(err) }()

	query := `UPDATE territories SET active = FALSE, updated_at = NOW() WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate territory: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate territory: %w", err)
	}
	if n == 0 {
		return ErrTerritoryNotFound
	}
	return nil
}

func (r *PostgresRepository) query(ctx context.Context, what, query string, args ...any) ([]*Territory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	defer rows.Close()

	var list []*Territory
	for rows.Next() {
		t, err := scanTerritory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan territory: %w", err)
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to %s: %w", what, err)
	}
	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTerritory(row rowScanner) (*Territory, error) {
	var (
		t      Territory
		points []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.OwnerID,
		&points,
		&t.Area,
		&t.PointCount,
		&t.Active,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(points, &t.Polygon); err != nil {
		return nil, fmt.Errorf("invalid points for territory %s: %w", t.ID, err)
	}
	t.Prepare()
	return &t, nil
}
