package planner

import (
	"context"
	"time"
)

// PermissionsNode drops rows whose required permissions are not a subset
// of the principal's (unless AllowAll), and applies per-field masks.
type PermissionsNode struct {
	Alias string
}

func (n *PermissionsNode) Describe() string { return "Permissions(" + n.Alias + ")" }

func (n *PermissionsNode) Execute(ctx context.Context, ec *ExecContext, in *PlanResult) (*PlanResult, error) {
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	out := make([]ExecRow, 0, len(in.Rows))
	for _, execRow := range in.Rows {
		row, ok := execRow.Rows[n.Alias]
		if !ok {
			out = append(out, execRow)
			continue
		}
		if !ec.Principal.HasAll(row.Permissions.Required) {
			continue
		}
		masked := execRow.clone()
		maskedRow := *row
		maskedRow.MaskedFields = map[string]bool{}
		if len(row.FieldMasks) > 0 {
			maskedValues := cloneValues(row.Values)
			for field, mask := range row.FieldMasks {
				if _, present := maskedValues[field]; !present {
					continue
				}
				if ec.Principal.HasAll(mask.Required) {
					continue
				}
				maskedValues[field] = maskedTextValue(mask.Mask)
				maskedRow.MaskedFields[field] = true
			}
			maskedRow.Values = maskedValues
		}
		masked.Rows[n.Alias] = &maskedRow
		out = append(out, masked)
	}
	ec.Metrics.record(n.Describe(), len(in.Rows), len(out), time.Since(start))
	return &PlanResult{Rows: out, Total: len(out)}, nil
}
