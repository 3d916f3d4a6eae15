package territory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/onnwee/turf/internal/geo"
)

var (
	// ErrTerritoryNotFound is returned when a territory does not exist.
	ErrTerritoryNotFound = errors.New("territory not found")
	// ErrDuplicateTerritory is returned when inserting a territory whose ID already exists.
	ErrDuplicateTerritory = errors.New("territory already exists")
)

// Source supplies the active territories used to build a snapshot.
type Source interface {
	ListActive(ctx context.Context) ([]*Territory, error)
}

// Repository persists claimed territories.
type Repository interface {
	Source

	// Insert stores a new territory.
	Insert(ctx context.Context, t *Territory) error

	// GetByID retrieves a territory by its ID.
	GetByID(ctx context.Context, id string) (*Territory, error)

	// ListByOwner returns the owner's active territories, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*Territory, error)

	// ListWithin returns active territories whose bounds intersect box.
	ListWithin(ctx context.Context, box geo.BoundingBox) ([]*Territory, error)

	// Deactivate marks a territory inactive so it drops out of snapshots.
	Deactivate(ctx context.Context, id string) error
}

// RegionSource restricts a repository's active territories to a region.
type RegionSource struct {
	Repo   Repository
	Region geo.BoundingBox
}

// ListActive returns the active territories intersecting the region.
func (s RegionSource) ListActive(ctx context.Context) ([]*Territory, error) {
	return s.Repo.ListWithin(ctx, s.Region)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing, replay and development.
type InMemoryRepository struct {
	mu          sync.RWMutex
	territories map[string]*Territory
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		territories: make(map[string]*Territory),
	}
}

// Insert stores a copy of t.
func (r *InMemoryRepository) Insert(_ context.Context, t *Territory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.territories[t.ID]; exists {
		return ErrDuplicateTerritory
	}
	c := t.clone()
	c.Prepare()
	r.territories[c.ID] = c
	return nil
}

// GetByID returns a copy of the territory with the given ID.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Territory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.territories[id]
	if !ok {
		return nil, ErrTerritoryNotFound
	}
	return t.clone(), nil
}

// ListActive returns copies of all active territories, oldest first.
func (r *InMemoryRepository) ListActive(_ context.Context) ([]*Territory, error) {
	return r.list(func(t *Territory) bool { return true }, false), nil
}

// ListByOwner returns the owner's active territories, newest first.
func (r *InMemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]*Territory, error) {
	return r.list(func(t *Territory) bool { return t.OwnerID == ownerID }, true), nil
}

// ListWithin returns active territories whose bounds intersect box.
func (r *InMemoryRepository) ListWithin(_ context.Context, box geo.BoundingBox) ([]*Territory, error) {
	return r.list(func(t *Territory) bool { return t.Bounds().Intersects(box) }, false), nil
}

// Deactivate marks a territory inactive.
func (r *InMemoryRepository) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.territories[id]
	if !ok {
		return ErrTerritoryNotFound
	}
	t.Active = false
	return nil
}

func (r *InMemoryRepository) list(keep func(*Territory) bool, newestFirst bool) []*Territory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Territory, 0, len(r.territories))
	for _, t := range r.territories {
		if t.Active && keep(t) {
			out = append(out, t.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
