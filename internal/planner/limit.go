package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// LimitNode locates the cursor's position in an already-sorted row set,
// slices the next page, and issues the cursor for the page after it. Rows
// must already be in SortNode's order; rows carry no order vector, so
// LimitNode recomputes each row's vector here from the same term list.
type LimitNode struct {
	RootAlias   string
	OrderBy     []opql.OrderTerm
	StableOrder []opql.OrderTerm
	Limit       *int
	Offset      *int
	Cursor      *string
}

func (n *LimitNode) Describe() string { return "Limit" }

func (n *LimitNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	terms := append(append([]opql.OrderTerm{}, n.OrderBy...), n.StableOrder...)
	ev := runtime.NewEvaluator()

	orderVectors := make([][]value.Value, len(in.Rows))
	for i, execRow := range in.Rows {
		rc := toRowContext(n.RootAlias, execRow, ec)
		vec := make([]value.Value, len(terms)+1)
		for t, term := range terms {
			v, err := ev.Eval(ctx, term.Expr, rc)
			if err != nil {
				return nil, err
			}
			vec[t] = v
		}
		var id string
		if row := execRow.Rows[n.RootAlias]; row != nil {
			id = row.EntityID
		}
		vec[len(terms)] = value.Text(id)
		orderVectors[i] = vec
	}

	startIdx := 0
	if n.Cursor != nil && *n.Cursor != "" {
		id, rawOrder, err := runtime.DecodeCursor(*n.Cursor)
		if err == nil {
			decoded := make([]value.Value, len(rawOrder))
			for i, raw := range rawOrder {
				decoded[i] = runtime.ValueFromJSON(raw)
			}
			for i, vec := range orderVectors {
				var rowID string
				if row := in.Rows[i].Rows[n.RootAlias]; row != nil {
					rowID = row.EntityID
				}
				if rowID == id && runtime.CompareOrderVectors(vec, decoded) == 0 {
					startIdx = i + 1
					break
				}
			}
		}
	} else if n.Offset != nil {
		startIdx = *n.Offset
	}
	if startIdx > len(in.Rows) {
		startIdx = len(in.Rows)
	}

	end := len(in.Rows)
	if n.Limit != nil && startIdx+*n.Limit < end {
		end = startIdx + *n.Limit
	}

	page := in.Rows[startIdx:end]
	pageVectors := orderVectors[startIdx:end]

	var nextCursor *string
	if end < len(in.Rows) && len(page) > 0 {
		last := page[len(page)-1]
		lastVec := pageVectors[len(pageVectors)-1]
		var id string
		if row := last.Rows[n.RootAlias]; row != nil {
			id = row.EntityID
		}
		encoded, err := runtime.EncodeCursor(id, lastVec)
		if err == nil {
			nextCursor = &encoded
		}
	}

	ec.Metrics.record(n.Describe(), len(in.Rows), len(page), time.Since(start))
	return &PlanResult{Rows: page, Total: len(in.Rows), NextCursor: nextCursor}, nil
}
