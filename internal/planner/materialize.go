package planner

import (
	"github.com/knesgoda/opql-toolkit/internal/repository"
	"github.com/knesgoda/opql-toolkit/internal/value"
)

// freshMaterialized wraps a raw RepositoryRow as a MaterializedRow with no
// fields masked yet; PermissionsNode is the only stage that marks masks.
func freshMaterialized(row repository.RepositoryRow) *repository.MaterializedRow {
	return &repository.MaterializedRow{
		RepositoryRow: row,
		MaskedFields:  map[string]bool{},
	}
}

func cloneValues(values map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out
}

func maskedTextValue(mask string) value.Value {
	return value.Text(mask)
}
