package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

func historyRow() *repository.MaterializedRow {
	t1 := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	toDone := value.Text("Done")
	fromOpen := value.Text("Open")
	toInProgress := value.Text("In Progress")
	return &repository.MaterializedRow{
		RepositoryRow: repository.RepositoryRow{
			EntityID: "t-1",
			History: &repository.RowHistory{
				Initial: map[string]value.Value{"status": value.Text("Open")},
				Events: []repository.HistoryEvent{
					{At: t1, Actor: "bob", Changes: []repository.HistoryChange{
						{Field: "status", From: &fromOpen, To: &toInProgress},
					}},
					{At: t2, Actor: "alice", Changes: []repository.HistoryChange{
						{Field: "status", From: &toInProgress, To: &toDone},
					}},
				},
			},
		},
	}
}

func TestBuildSegments_ReconstructsTimeline(t *testing.T) {
	row := historyRow()
	segs := buildSegments(row, "status")
	require.Len(t, segs, 3)
	assert.Equal(t, "Open", segs[0].value.Text)
	assert.Equal(t, "In Progress", segs[1].value.Text)
	assert.Equal(t, "Done", segs[2].value.Text)
	assert.True(t, segs[2].end.IsZero())
}

func TestEvalWas_MatchesPastValue(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("In Progress", opql.ValueString),
	}
	assert.True(t, ev.evalWas(expr, row))
}

func TestEvalWas_NegatedInvertsMatch(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS", Negated: true,
		CompOp: "=", CompValue: opql.Lit("Done", opql.ValueString),
	}
	assert.False(t, ev.evalWas(expr, row))
}

func TestEvalChanged_MatchesToValue(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "CHANGED",
		Qualifiers: []opql.Qualifier{
			{Kind: "TO", Op: "=", Value: opql.Lit("Done", opql.ValueString)},
		},
	}
	assert.True(t, ev.evalChanged(expr, row))
}

func TestEvalChanged_ByActorFiltersEvents(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "CHANGED",
		Qualifiers: []opql.Qualifier{
			{Kind: "BY", Value: opql.Lit("bob", opql.ValueString)},
			{Kind: "TO", Op: "=", Value: opql.Lit("Done", opql.ValueString)},
		},
	}
	assert.False(t, ev.evalChanged(expr, row))
}

func TestEvalWas_ByQualifierMatchesSettingActor(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("In Progress", opql.ValueString),
		Qualifiers: []opql.Qualifier{
			{Kind: "BY", Value: opql.Lit("bob", opql.ValueString)},
		},
	}
	assert.True(t, ev.evalWas(expr, row))
}

func TestEvalWas_ByQualifierExcludesOtherActor(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("In Progress", opql.ValueString),
		Qualifiers: []opql.Qualifier{
			{Kind: "BY", Value: opql.Lit("alice", opql.ValueString)},
		},
	}
	assert.False(t, ev.evalWas(expr, row))
}

func TestEvalWas_ByQualifierCaseInsensitive(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("Done", opql.ValueString),
		Qualifiers: []opql.Qualifier{
			{Kind: "BY", Value: opql.Lit("ALICE", opql.ValueString)},
		},
	}
	assert.True(t, ev.evalWas(expr, row))
}

func TestEvalWas_ByQualifierExcludesUntrackedInitialState(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("Open", opql.ValueString),
		Qualifiers: []opql.Qualifier{
			{Kind: "BY", Value: opql.Lit("bob", opql.ValueString)},
		},
	}
	assert.False(t, ev.evalWas(expr, row))
}

func TestEvalWas_AfterQualifierFiltersSegments(t *testing.T) {
	ev := NewEvaluator()
	row := historyRow()
	expr := &opql.Expression{
		Kind: opql.KindHistory, Field: "status", Verb: "WAS",
		CompOp: "=", CompValue: opql.Lit("Open", opql.ValueString),
		Qualifiers: []opql.Qualifier{
			{Kind: "AFTER", Value: opql.Lit("2026-01-10T00:00:00Z", opql.ValueString)},
		},
	}
	assert.False(t, ev.evalWas(expr, row))
}
