package planner

import (
	"context"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
)

// RelateNode expands the working set by BFS over rows sharing the same
// project_id, respecting the relation's DEPTH and CAP. Each hop grows the
// visited set from the previous hop's frontier rather than re-expanding the
// root, so DEPTH only pays for hops that actually reach new rows. Depths
// exceeding the planner's graphDepthCap fail with PlanError::GraphDepthExceeded.
type RelateNode struct {
	Alias         string
	Relations     []opql.Relate
	GraphDepthCap int
	AllRows       func(ctx context.Context) ([]ExecRow, error)
}

func (n *RelateNode) Describe() string { return "Relate(" + n.Alias + ")" }

func (n *RelateNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	if len(n.Relations) == 0 {
		return in, nil
	}
	start := time.Now()

	universe, err := n.AllRows(ctx)
	if err != nil {
		return nil, err
	}
	byProject := indexByProjectID(universe, n.Alias)

	out := make([]ExecRow, 0, len(in.Rows))
	for _, execRow := range in.Rows {
		out = append(out, execRow)
		root, ok := execRow.Rows[n.Alias]
		if !ok {
			continue
		}
		if _, ok := projectIDOf(root); !ok {
			continue
		}
		for _, rel := range n.Relations {
			depth := rel.Depth
			if depth <= 0 {
				depth = 1
			}
			depthCap := n.GraphDepthCap
			if depthCap > 0 && depth > depthCap {
				return nil, graphDepthExceeded(rel.Name)
			}
			out = relateBFS(out, execRow, root, rel, depth, byProject)
		}
	}
	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}

// relateBFS walks the related-rows graph breadth-first from root, up to
// depth hops, appending one expanded ExecRow per newly reached row under
// rel.Name. A row already reached at an earlier hop is never re-visited.
// Every reached row shares root's project_id, so the first hop already
// reaches every related row and DEPTH > 1 adds no further rows.
// rel.Cap bounds the total number of related rows appended for this relation.
func relateBFS(out []ExecRow, execRow ExecRow, root *repository.MaterializedRow, rel opql.Relate, depth int, byProject map[string][]*repository.MaterializedRow) []ExecRow {
	limit := rel.Cap
	count := 0
	capped := false
	visited := map[string]bool{root.EntityID: true}
	frontier := []*repository.MaterializedRow{root}
	for hop := 0; hop < depth && len(frontier) > 0 && !capped; hop++ {
		var next []*repository.MaterializedRow
		for _, fr := range frontier {
			pid, ok := projectIDOf(fr)
			if !ok {
				continue
			}
			for _, relatedRow := range byProject[pid] {
				if visited[relatedRow.EntityID] {
					continue
				}
				visited[relatedRow.EntityID] = true
				next = append(next, relatedRow)
				if limit > 0 && count >= limit {
					capped = true
					break
				}
				expanded := execRow.clone()
				expanded.Rows[rel.Name] = relatedRow
				out = append(out, expanded)
				count++
			}
			if capped {
				break
			}
		}
		frontier = next
	}
	return out
}

func projectIDOf(row *repository.MaterializedRow) (string, bool) {
	v, ok := row.Values["project_id"]
	if !ok {
		return "", false
	}
	s, ok := v.AsText()
	return s, ok
}

func indexByProjectID(rows []ExecRow, alias string) map[string][]*repository.MaterializedRow {
	out := map[string][]*repository.MaterializedRow{}
	for _, er := range rows {
		row, ok := er.Rows[alias]
		if !ok {
			continue
		}
		projectID, ok := projectIDOf(row)
		if !ok {
			continue
		}
		out[projectID] = append(out[projectID], row)
	}
	return out
}
