//go:build integration

package session

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newPostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	var migrations []string
	for _, name := range []string{"000001_create_territories.up.sql", "000002_create_claim_sessions.up.sql"} {
		b, err := os.ReadFile(filepath.Join("..", "..", "migrations", name))
		if err != nil {
			t.Fatalf("failed to read migration %s: %v", name, err)
		}
		migrations = append(migrations, string(b))
	}

	container, err := postgres.Run(ctx,
		"postgis/postgis:16-3.4-alpine",
		postgres.WithDatabase("turf"),
		postgres.WithUsername("turf"),
		postgres.WithPassword("turf"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("could not start PostGIS container: %v", err)
	}
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			t.Fatalf("failed to apply migration: %v", err)
		}
	}
	return db
}

func TestPostgresHistory(t *testing.T) {
	ctx := context.Background()
	h := NewPostgresHistory(newPostgresDB(t))

	first := Record{
		SessionID:    "5f0c6f7e-2b1a-4c3d-8e9f-000000000001",
		OwnerID:      "alice",
		Mode:         ModeClaim,
		Status:       StatusCompleted,
		PointCount:   17,
		LengthMeters: 312.5,
		AreaSqMeters: 7650,
		TerritoryID:  "5f0c6f7e-2b1a-4c3d-8e9f-0000000000aa",
		StartedAt:    t0,
		EndedAt:      t0.Add(3 * time.Minute),
	}
	second := Record{
		SessionID:     "5f0c6f7e-2b1a-4c3d-8e9f-000000000002",
		OwnerID:       "alice",
		Mode:          ModeExplore,
		Status:        StatusFailed,
		FailureReason: FailureSpeed,
		PointCount:    4,
		LengthMeters:  140,
		StartedAt:     t0.Add(time.Hour),
		EndedAt:       t0.Add(time.Hour + time.Minute),
	}

	for _, rec := range []Record{first, second} {
		if err := h.Save(ctx, rec); err != nil {
			t.Fatalf("Save(%s) error = %v", rec.SessionID, err)
		}
	}
	if err := h.Save(ctx, first); !errors.Is(err, ErrDuplicateRecord) {
		t.Errorf("duplicate Save error = %v, want ErrDuplicateRecord", err)
	}

	got, err := h.ListByOwner(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(got) != 2 || got[0].SessionID != second.SessionID {
		t.Fatalf("ListByOwner() = %+v, want newest first", got)
	}
	if got[0].FailureReason != FailureSpeed || got[0].Mode != ModeExplore || got[0].TerritoryID != "" {
		t.Errorf("failed record = %+v", got[0])
	}
	if got[1].TerritoryID != first.TerritoryID || got[1].AreaSqMeters != first.AreaSqMeters {
		t.Errorf("completed record = %+v", got[1])
	}

	limited, err := h.ListByOwner(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("ListByOwner(limit 1) error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("ListByOwner(limit 1) returned %d records", len(limited))
	}
}
