package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

const demoWorkspaceID = "ws-demo"

// seedDemoWorkspace populates repo with a small, fixed set of rows across
// every entity type the query language targets, so a freshly started server
// has something to query without an external datastore.
func seedDemoWorkspace(repo *repository.Memory) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	people := []repository.RepositoryRow{
		demoRow("people", "alice", "Alice Chen", base, map[string]value.Value{
			"role": value.Text("engineer"),
		}),
		demoRow("people", "bob", "Bob Yusuf", base, map[string]value.Value{
			"role": value.Text("designer"),
		}),
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "people",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "role", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, people)

	teams := []repository.RepositoryRow{
		demoRow("teams", "platform", "Platform", base, map[string]value.Value{
			"lead": value.Text("alice"),
		}),
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "teams",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "lead", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, teams)

	projects := []repository.RepositoryRow{
		demoRow("projects", "ops", "Operations", base, map[string]value.Value{
			"project_key": value.Text("OPS"),
			"team":        value.Text("platform"),
		}),
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "projects",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "project_key", Kind: value.KindText},
			{Name: "team", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, projects)

	var tasks []repository.RepositoryRow
	statuses := []string{"open", "in_progress", "done"}
	for i := 1; i <= 6; i++ {
		id := uuid.NewString()
		tasks = append(tasks, repository.RepositoryRow{
			EntityID:    id,
			EntityType:  "tasks",
			WorkspaceID: demoWorkspaceID,
			Values: map[string]value.Value{
				"title":       value.Text("Task " + id[:8]),
				"status":      value.Text(statuses[i%len(statuses)]),
				"project_key": value.Text("OPS"),
				"assignee":    value.Text("alice"),
				"updated_at":  value.Date(base.AddDate(0, 0, i)),
			},
		})
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "tasks",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "status", Kind: value.KindText},
			{Name: "project_key", Kind: value.KindText},
			{Name: "assignee", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, tasks)

	docs := []repository.RepositoryRow{
		demoRow("docs", "roadmap", "Roadmap", base, map[string]value.Value{
			"project_key": value.Text("OPS"),
		}),
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "docs",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "project_key", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, docs)

	comments := []repository.RepositoryRow{
		demoRow("comments", "c-1", "Looks good to me", base, map[string]value.Value{
			"author": value.Text("bob"),
		}),
	}
	repo.Seed(repository.EntityDefinition{
		EntityType: "comments",
		Fields: []repository.FieldDefinition{
			{Name: "title", Kind: value.KindText},
			{Name: "author", Kind: value.KindText},
			{Name: "updated_at", Kind: value.KindDate},
		},
	}, comments)
}

func demoRow(entityType, id, title string, base time.Time, extra map[string]value.Value) repository.RepositoryRow {
	values := map[string]value.Value{
		"title":      value.Text(title),
		"updated_at": value.Date(base),
	}
	for k, v := range extra {
		values[k] = v
	}
	return repository.RepositoryRow{
		EntityID:    id,
		EntityType:  entityType,
		WorkspaceID: demoWorkspaceID,
		Values:      values,
	}
}
