package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry manages connector factories and connections keyed by
// datasource id. Datasources added with Add connect on first use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Connector
	pending   map[string]ConnectionConfig
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Connector),
		pending:   make(map[string]ConnectionConfig),
	}
}

// RegisterDriver registers a connector factory for a driver type.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Add records a datasource without connecting to it.
func (r *Registry) Add(id string, cfg ConnectionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[cfg.Driver]; !ok {
		return fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.availableDrivers())
	}
	r.pending[id] = cfg
	return nil
}

// Connect creates a new connector for the given driver and connects it.
func (r *Registry) Connect(id string, cfg ConnectionConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connectLocked(id, cfg)
}

func (r *Registry) connectLocked(id string, cfg ConnectionConfig) error {
	factory, ok := r.factories[cfg.Driver]
	if !ok {
		return fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.availableDrivers())
	}

	conn := factory()
	if err := conn.Connect(cfg); err != nil {
		return fmt.Errorf("failed to connect datasource %q: %w", id, err)
	}

	// Close existing connection if any
	if existing, ok := r.active[id]; ok {
		existing.Disconnect()
	}

	r.active[id] = conn
	delete(r.pending, id)
	return nil
}

// Get returns the connector for a datasource, connecting it if it was
// only added so far.
func (r *Registry) Get(id string) (Connector, error) {
	r.mu.RLock()
	conn, ok := r.active[id]
	r.mu.RUnlock()
	if ok {
		return conn, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.active[id]; ok {
		return conn, nil
	}
	cfg, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("datasource %q not found (available: %v)", id, r.idsLocked())
	}
	if err := r.connectLocked(id, cfg); err != nil {
		return nil, err
	}
	return r.active[id], nil
}

// Disconnect removes and disconnects a datasource.
func (r *Registry) Disconnect(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, id)
	conn, ok := r.active[id]
	if !ok {
		return fmt.Errorf("datasource %q not connected", id)
	}

	err := conn.Disconnect()
	delete(r.active, id)
	return err
}

// CloseAll disconnects all datasources.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, conn := range r.active {
		conn.Disconnect()
		delete(r.active, id)
	}
}

// Datasources returns every known datasource id, connected or not, sorted.
func (r *Registry) Datasources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.idsLocked()
}

// PingAll pings every connected datasource and returns failures by id.
func (r *Registry) PingAll(ctx context.Context) map[string]error {
	r.mu.RLock()
	conns := make(map[string]Connector, len(r.active))
	for id, c := range r.active {
		conns[id] = c
	}
	r.mu.RUnlock()

	failed := make(map[string]error)
	for id, c := range conns {
		if err := c.Ping(ctx); err != nil {
			failed[id] = err
		}
	}
	return failed
}

func (r *Registry) availableDrivers() []string {
	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) idsLocked() []string {
	seen := make(map[string]bool, len(r.active)+len(r.pending))
	for id := range r.active {
		seen[id] = true
	}
	for id := range r.pending {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
