// Package repository declares the sole external contract the query core
// depends on — list, schema lookup, and an optional full snapshot — and
// ships an in-memory reference implementation for tests and demos.
package repository

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/value"
)

// RowPermissions names the permission strings a principal must hold (a
// subset relationship, not exact match) to see a row at all.
type RowPermissions struct {
	Required []string
}

// FieldMask replaces a field's value with Mask unless the principal holds
// every permission in Required.
type FieldMask struct {
	Required []string
	Mask     string
}

// HistoryChange is one field mutation within a HistoryEvent.
type HistoryChange struct {
	Field string
	From  *value.Value
	To    *value.Value
}

// HistoryEvent is one change event in a row's audit trail.
type HistoryEvent struct {
	At      time.Time
	Actor   string
	Changes []HistoryChange
}

// RowHistory carries a row's full change history: the pre-event state plus
// every event applied after it, in chronological order.
type RowHistory struct {
	Initial map[string]value.Value
	Events  []HistoryEvent
}

// RepositoryRow is the unit Repository.List returns: a raw entity plus the
// permission/mask/history metadata the planner and runtime need.
type RepositoryRow struct {
	EntityID    string
	EntityType  string
	WorkspaceID string
	Score       float64
	Values      map[string]value.Value
	Permissions RowPermissions
	FieldMasks  map[string]FieldMask
	History     *RowHistory
}

// MaterializedRow is a RepositoryRow after permission evaluation: masked
// fields have had their value replaced by the configured mask text, and
// MaskedFields records which ones were touched.
type MaterializedRow struct {
	RepositoryRow
	MaskedFields map[string]bool
}

// FieldDefinition describes one field of an entity type's schema.
type FieldDefinition struct {
	Name string
	Kind value.Kind
}

// EntityDefinition is the schema Repository.GetDefinition returns for one
// entity type.
type EntityDefinition struct {
	EntityType string
	Fields     []FieldDefinition
}

// Principal is the caller a query executes on behalf of.
type Principal struct {
	UserID      string
	WorkspaceID string
	Permissions map[string]bool
	AllowAll    bool
}

// HasPermission reports whether p holds perm, short-circuiting true when
// AllowAll is set.
func (p Principal) HasPermission(perm string) bool {
	if p.AllowAll {
		return true
	}
	return p.Permissions[perm]
}

// HasAll reports whether p holds every permission in perms.
func (p Principal) HasAll(perms []string) bool {
	if p.AllowAll {
		return true
	}
	for _, perm := range perms {
		if !p.Permissions[perm] {
			return false
		}
	}
	return true
}

// Repository is the sole contract the query core depends on.
type Repository interface {
	List(ctx context.Context, workspaceID string, entityTypes []string) ([]RepositoryRow, error)
	ListEntityTypes(ctx context.Context) ([]string, error)
	GetDefinition(ctx context.Context, entityType string) (*EntityDefinition, error)
}

// Snapshotter is an optional Repository extension for a full,
// unfiltered dump of a workspace, used by bulk export / reindex paths.
type Snapshotter interface {
	Snapshot(ctx context.Context, workspaceID string) ([]RepositoryRow, error)
}
