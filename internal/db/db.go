// Package db opens the PostgreSQL pool that backs the territory store and
// verifies that PostGIS is installed.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostGISRequirement documents that the territory store requires PostgreSQL with PostGIS.
// PostGIS backs the GiST index used by bounding-box territory queries.
const PostGISRequirement = "PostGIS extension is required for geo queries"

// VersionQuery is the SQL query to verify PostGIS is available.
const VersionQuery = "SELECT PostGIS_Version()"

// ErrPostGISMissing is returned by Open when the PostGIS version query fails.
var ErrPostGISMissing = errors.New(PostGISRequirement)

// Pool defaults.
const (
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 30 * time.Minute
)

// Open connects to databaseURL, pings it and checks for PostGIS. It returns
// the pool and the reported PostGIS version.
func Open(ctx context.Context, databaseURL string) (*sql.DB, string, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}
	pool.SetMaxOpenConns(DefaultMaxOpenConns)
	pool.SetMaxIdleConns(DefaultMaxIdleConns)
	pool.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := PostGISVersion(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, "", err
	}
	return pool, version, nil
}

// PostGISVersion returns the PostGIS version string of the connected database.
func PostGISVersion(ctx context.Context, pool *sql.DB) (string, error) {
	var version string
	if err := pool.QueryRowContext(ctx, VersionQuery).Scan(&version); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPostGISMissing, err)
	}
	return version, nil
}
