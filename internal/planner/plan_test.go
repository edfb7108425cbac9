package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

func seedTasks(t *testing.T) *repository.Memory {
	t.Helper()
	m := repository.NewMemory()
	def := repository.EntityDefinition{
		EntityType: "tasks",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "priority", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var rows []repository.RepositoryRow
	for i := 1; i <= 6; i++ {
		rows = append(rows, repository.RepositoryRow{
			EntityID:    taskID(i),
			EntityType:  "tasks",
			WorkspaceID: "ws-1",
			Values: map[string]value.Value{
				"title":      value.Text(taskID(i)),
				"priority":   value.Text("High"),
				"updated_at": value.Date(base.AddDate(0, 0, i)),
			},
		})
	}
	m.Seed(def, rows)
	return m
}

func taskID(i int) string {
	return "t-" + string(rune('0'+i))
}

func TestPlan_ScanPermissionsApplySortLimit(t *testing.T) {
	repo := seedTasks(t)
	stmt, err := opql.Parse("FIND * FROM tasks WHERE priority = 'High' ORDER BY updated_at DESC LIMIT 2")
	require.NoError(t, err)

	plan, err := Build(context.Background(), repo, stmt, PlannerOptions{RootAlias: "tasks"})
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), repo, repository.Principal{WorkspaceID: "ws-1", AllowAll: true}, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.Equal(t, taskID(6), result.Rows[0].EntityID)
	assert.Equal(t, taskID(5), result.Rows[1].EntityID)
	require.NotNil(t, result.NextCursor)
}

func TestPlan_CursorStability_FollowUpPageContinues(t *testing.T) {
	repo := seedTasks(t)
	stmt, err := opql.Parse("FIND * FROM tasks ORDER BY updated_at DESC LIMIT 2")
	require.NoError(t, err)

	plan, err := Build(context.Background(), repo, stmt, PlannerOptions{RootAlias: "tasks"})
	require.NoError(t, err)
	principal := repository.Principal{WorkspaceID: "ws-1", AllowAll: true}

	first, err := plan.Execute(context.Background(), repo, principal, time.Now())
	require.NoError(t, err)
	require.NotNil(t, first.NextCursor)

	stmt2, err := opql.Parse("FIND * FROM tasks ORDER BY updated_at DESC LIMIT 2")
	require.NoError(t, err)
	plan2, err := Build(context.Background(), repo, stmt2, PlannerOptions{RootAlias: "tasks", Cursor: first.NextCursor})
	require.NoError(t, err)

	second, err := plan2.Execute(context.Background(), repo, principal, time.Now())
	require.NoError(t, err)
	require.Len(t, second.Rows, 2)
	assert.Equal(t, taskID(4), second.Rows[0].EntityID)
	assert.Equal(t, taskID(3), second.Rows[1].EntityID)
}

func TestPlan_PermissionsDropsRowsMissingRequiredPermission(t *testing.T) {
	m := repository.NewMemory()
	m.Seed(repository.EntityDefinition{EntityType: "tasks"}, []repository.RepositoryRow{
		{EntityID: "t-1", EntityType: "tasks", WorkspaceID: "ws-1", Values: map[string]value.Value{}},
		{
			EntityID: "t-2", EntityType: "tasks", WorkspaceID: "ws-1",
			Values:      map[string]value.Value{},
			Permissions: repository.RowPermissions{Required: []string{"admin"}},
		},
	})
	stmt, err := opql.Parse("FIND * FROM tasks")
	require.NoError(t, err)
	plan, err := Build(context.Background(), m, stmt, PlannerOptions{RootAlias: "tasks"})
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), m, repository.Principal{WorkspaceID: "ws-1"}, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "t-1", result.Rows[0].EntityID)
}

func TestPlan_UnknownEntityErrors(t *testing.T) {
	m := repository.NewMemory()
	stmt, err := opql.Parse("FIND * FROM ghosts")
	require.NoError(t, err)
	_, err = Build(context.Background(), m, stmt, PlannerOptions{})
	require.Error(t, err)
	var perr *PlanError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrUnknownEntity, perr.Kind)
}

func TestPlan_AggregateCountGroupedByPriority(t *testing.T) {
	repo := seedTasks(t)
	stmt, err := opql.Parse("AGGREGATE COUNT(*) AS total FROM tasks GROUP BY priority")
	require.NoError(t, err)
	plan, err := Build(context.Background(), repo, stmt, PlannerOptions{RootAlias: "tasks"})
	require.NoError(t, err)

	result, err := plan.Execute(context.Background(), repo, repository.Principal{WorkspaceID: "ws-1", AllowAll: true}, time.Now())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, int64(6), result.Rows[0].Values["total"].Int)
}
