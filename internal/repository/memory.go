package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-behind-mutex Repository used by tests and local demos; it
// holds no connections and never blocks beyond acquiring its own lock.
type Memory struct {
	mu          sync.RWMutex
	rows        map[string][]RepositoryRow
	definitions map[string]*EntityDefinition
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{
		rows:        make(map[string][]RepositoryRow),
		definitions: make(map[string]*EntityDefinition),
	}
}

// Seed registers an entity type's schema and rows, replacing any rows
// previously seeded for that type.
func (m *Memory) Seed(def EntityDefinition, rows []RepositoryRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defCopy := def
	m.definitions[def.EntityType] = &defCopy
	m.rows[def.EntityType] = append([]RepositoryRow(nil), rows...)
}

// List returns every row for workspaceID across entityTypes (or every known
// type when entityTypes is empty), sorted by EntityType then EntityID for
// deterministic iteration order.
func (m *Memory) List(ctx context.Context, workspaceID string, entityTypes []string) ([]RepositoryRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	types := entityTypes
	if len(types) == 0 {
		types = m.sortedTypes()
	}

	var out []RepositoryRow
	for _, entityType := range types {
		for _, row := range m.rows[entityType] {
			if workspaceID != "" && row.WorkspaceID != workspaceID {
				continue
			}
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EntityType != out[j].EntityType {
			return out[i].EntityType < out[j].EntityType
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

// ListEntityTypes returns every entity type Seed has registered, sorted.
func (m *Memory) ListEntityTypes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedTypes(), nil
}

// GetDefinition returns the schema registered for entityType.
func (m *Memory) GetDefinition(ctx context.Context, entityType string) (*EntityDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[entityType]
	if !ok {
		return nil, fmt.Errorf("repository: unknown entity type %q", entityType)
	}
	return def, nil
}

// Snapshot returns every row for workspaceID across all entity types.
func (m *Memory) Snapshot(ctx context.Context, workspaceID string) ([]RepositoryRow, error) {
	return m.List(ctx, workspaceID, nil)
}

func (m *Memory) sortedTypes() []string {
	types := make([]string, 0, len(m.rows))
	for entityType := range m.rows {
		types = append(types, entityType)
	}
	sort.Strings(types)
	return types
}

var (
	_ Repository  = (*Memory)(nil)
	_ Snapshotter = (*Memory)(nil)
)
