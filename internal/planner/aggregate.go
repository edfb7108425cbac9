package planner

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/knesgoda/opql-toolkit/internal/opql"
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/runtime"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// AggregateNode groups rows by the JSON-stringified tuple of their GROUP BY
// values, computes each declared aggregate per group, and (when present)
// filters reduced rows with HAVING.
type AggregateNode struct {
	RootAlias  string
	GroupBy    []*opql.Expression
	Aggregates []opql.Aggregate
	Having     *opql.Expression
}

func (n *AggregateNode) Describe() string { return "Aggregate" }

type groupBucket struct {
	key     string
	groupBy []value.Value
	rows    []ExecRow
}

func (n *AggregateNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	ev := runtime.NewEvaluator()

	buckets := map[string]*groupBucket{}
	var order []string
	for _, execRow := range in.Rows {
		rc := toRowContext(n.RootAlias, execRow, ec)
		groupValues := make([]value.Value, len(n.GroupBy))
		for i, g := range n.GroupBy {
			v, err := ev.Eval(ctx, g, rc)
			if err != nil {
				return nil, err
			}
			groupValues[i] = v
		}
		key := groupKey(groupValues)
		b, ok := buckets[key]
		if !ok {
			b = &groupBucket{key: key, groupBy: groupValues}
			buckets[key] = b
			order = append(order, key)
		}
		b.rows = append(b.rows, execRow)
	}
	sort.Strings(order)

	out := make([]ExecRow, 0, len(buckets))
	for _, key := range order {
		b := buckets[key]
		reduced := ExecRow{Rows: map[string]*repository.MaterializedRow{}, Computed: map[string]value.Value{}}
		values := map[string]value.Value{}
		for i, g := range n.GroupBy {
			values[groupByLabel(g, i)] = b.groupBy[i]
		}
		for _, agg := range n.Aggregates {
			v, err := computeAggregate(ctx, ev, agg, b.rows, n.RootAlias, ec)
			if err != nil {
				return nil, err
			}
			alias := agg.Alias
			if alias == "" {
				alias = agg.Func
			}
			values[alias] = v
		}
		reduced.Rows[n.RootAlias] = &repository.MaterializedRow{
			RepositoryRow: repository.RepositoryRow{EntityID: key, Values: values},
		}

		if n.Having != nil {
			rc := toRowContext(n.RootAlias, reduced, ec)
			v, err := ev.Eval(ctx, n.Having, rc)
			if err != nil {
				return nil, err
			}
			if !truthyValue(v) {
				continue
			}
		}
		out = append(out, reduced)
	}

	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}

func groupByLabel(e *opql.Expression, index int) string {
	if e.Kind == opql.KindIdentifier {
		if len(e.Path) > 0 {
			return e.Path[len(e.Path)-1]
		}
		return e.Name
	}
	return "group" + strconv.Itoa(index)
}

func groupKey(values []value.Value) string {
	rendered := make([]interface{}, len(values))
	for i, v := range values {
		rendered[i] = renderAggregateJSON(v)
	}
	raw, _ := json.Marshal(rendered)
	return string(raw)
}

func renderAggregateJSON(v value.Value) interface{} {
	switch v.Kind {
	case value.KindNull:
		return nil
	case value.KindBool:
		return v.Bool
	case value.KindInt:
		return v.Int
	case value.KindFloat:
		return v.Float
	case value.KindText:
		return v.Text
	case value.KindDate:
		return v.Date.UTC().Format("2006-01-02T15:04:05.000Z")
	default:
		return v.String()
	}
}

func computeAggregate(ctx context.Context, ev *runtime.Evaluator, agg opql.Aggregate, rows []ExecRow, rootAlias string, ec *ExecContext) (value.Value, error) {
	switch agg.Func {
	case "COUNT":
		return value.Int(int64(len(rows))), nil
	}

	var nums []float64
	var collected []value.Value
	for _, execRow := range rows {
		if agg.Arg == nil {
			continue
		}
		rc := toRowContext(rootAlias, execRow, ec)
		v, err := ev.Eval(ctx, agg.Arg, rc)
		if err != nil {
			return value.Null(), err
		}
		collected = append(collected, v)
		if f, ok := v.AsNumber(); ok {
			nums = append(nums, f)
		}
	}

	switch agg.Func {
	case "SUM":
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return value.Float(sum), nil
	case "AVG":
		if len(nums) == 0 {
			return value.Null(), nil
		}
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return value.Float(sum / float64(len(nums))), nil
	case "MIN":
		return reduceByComparison(collected, -1), nil
	case "MAX":
		return reduceByComparison(collected, 1), nil
	case "ARRAY_AGG":
		return value.Array(collected...), nil
	default:
		return value.Null(), nil
	}
}

func reduceByComparison(values []value.Value, wantSign int) value.Value {
	if len(values) == 0 {
		return value.Null()
	}
	best := values[0]
	for _, v := range values[1:] {
		if sign(value.CompareValues(v, best)) == wantSign {
			best = v
		}
	}
	return best
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
