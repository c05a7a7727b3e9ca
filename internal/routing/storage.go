package routing

import (
	"context"
	"sync"

	"github.com/strato-bus/strato/internal/route"
)

// Storage persists route definitions across restarts. The engine calls Load
// once at Start and Save after every successful mutation. A nil provider
// means routes are purely in-memory and vanish with the process.
type Storage interface {
	Load(ctx context.Context) ([]route.Route, error)
	Save(ctx context.Context, routes []route.Route) error
}

// MemoryStorage is a Storage kept entirely in memory. It survives engine
// restarts within one process, which is enough for tests and for the CLI's
// ephemeral runs.
type MemoryStorage struct {
	mu     sync.Mutex
	routes []route.Route
}

// NewMemoryStorage returns an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// Load returns a copy of the stored routes.
func (s *MemoryStorage) Load(_ context.Context) ([]route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]route.Route, len(s.routes))
	copy(out, s.routes)
	return out, nil
}

// Save replaces the stored routes.
func (s *MemoryStorage) Save(_ context.Context, routes []route.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = make([]route.Route, len(routes))
	copy(s.routes, routes)
	return nil
}
