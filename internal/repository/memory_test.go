package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knesgoda/opql-toolkit/internal/value"
)

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.Seed(EntityDefinition{
		EntityType: "tasks",
		Fields: []FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "priority", Kind: value.KindText},
		},
	}, []RepositoryRow{
		{
			EntityID:    "t-2",
			EntityType:  "tasks",
			WorkspaceID: "ws-1",
			Values:      map[string]value.Value{"title": value.Text("Second")},
		},
		{
			EntityID:    "t-1",
			EntityType:  "tasks",
			WorkspaceID: "ws-1",
			Values:      map[string]value.Value{"title": value.Text("First")},
		},
		{
			EntityID:    "t-3",
			EntityType:  "tasks",
			WorkspaceID: "ws-2",
			Values:      map[string]value.Value{"title": value.Text("Other workspace")},
		},
	})
	m.Seed(EntityDefinition{
		EntityType: "docs",
		Fields:     []FieldDefinition{{Name: "title", Kind: value.KindText}},
	}, []RepositoryRow{
		{EntityID: "d-1", EntityType: "docs", WorkspaceID: "ws-1"},
	})
	return m
}

func TestMemory_List_FiltersByWorkspaceAndOrdersDeterministically(t *testing.T) {
	m := seeded(t)
	rows, err := m.List(context.Background(), "ws-1", []string{"tasks"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "t-1", rows[0].EntityID)
	assert.Equal(t, "t-2", rows[1].EntityID)
}

func TestMemory_List_AllTypesWhenEntityTypesEmpty(t *testing.T) {
	m := seeded(t)
	rows, err := m.List(context.Background(), "ws-1", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "docs", rows[0].EntityType)
}

func TestMemory_ListEntityTypes(t *testing.T) {
	m := seeded(t)
	types, err := m.ListEntityTypes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"docs", "tasks"}, types)
}

func TestMemory_GetDefinition_UnknownType(t *testing.T) {
	m := seeded(t)
	_, err := m.GetDefinition(context.Background(), "projects")
	assert.Error(t, err)
}

func TestMemory_Snapshot_IgnoresWorkspaceTypeFilterOnlyScopesWorkspace(t *testing.T) {
	m := seeded(t)
	rows, err := m.Snapshot(context.Background(), "ws-2")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t-3", rows[0].EntityID)
}

func TestMemory_List_RespectsCancelledContext(t *testing.T) {
	m := seeded(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := m.List(ctx, "ws-1", nil)
	assert.Error(t, err)
}
