// Package builder provides a bidirectional mapping between OPQL text and a
// structured tree (BuilderQuery/Group/Clause) suitable for a query-builder
// UI, preserving named parameters across the round trip.
package builder

// GroupOperator is the boolean operator a Group combines its children with.
type GroupOperator string

const (
	GroupAnd GroupOperator = "AND"
	GroupOr  GroupOperator = "OR"
)

// Node is satisfied by *Group and *Clause, the two kinds of Group child.
type Node interface {
	isNode()
}

// Group is an internal node of a WHERE/HAVING tree: all Children combine
// under Operator. Group trees are built by merging adjacent same-operator
// Binary nodes, so a flat "a AND b AND c" never nests three deep.
type Group struct {
	ID       string
	Operator GroupOperator
	Children []Node
}

func (*Group) isNode() {}

// Clause is a leaf predicate. Field/Comparator/Value are a best-effort
// structured decomposition for UI display; Source is always the exact OPQL
// text the clause was parsed from and is what queryToOpql falls back to
// when a clause's shape is too irregular to reconstruct from its parts
// (BETWEEN, IN, history predicates, function calls, negations).
type Clause struct {
	ID             string
	Field          string
	Comparator     string
	Value          string
	Source         string
	Confidence     float64
	ValueWasQuoted bool
}

func (*Clause) isNode() {}

// AggregateSpec mirrors opql.Aggregate for BuilderQuery consumption.
type AggregateSpec struct {
	Func  string
	Arg   string
	Alias string
}

// JoinSpec mirrors opql.Join, with Condition rendered as OPQL text.
type JoinSpec struct {
	Kind      string
	Source    string
	Alias     string
	Condition string
}

// RelateSpec mirrors opql.Relate. Depth and Cap are text so either value can
// carry a preserved ":name" parameter instead of a literal integer.
type RelateSpec struct {
	Name      string
	Direction string
	Depth     string
	Cap       string
}

// OrderSpec mirrors one opql.OrderTerm entry.
type OrderSpec struct {
	Field     string
	Direction string
	Nulls     string
}

// BuilderQuery is the structured mirror of a Statement: the data shape a
// query-builder UI edits directly. Limit/Offset are text, not *int, for the
// same reason as RelateSpec.Depth/Cap: either may hold a preserved
// ":name" parameter.
type BuilderQuery struct {
	Statement string

	Source string
	Alias  string

	Distinct    bool
	Projections []string

	Aggregates []AggregateSpec
	Joins      []JoinSpec
	Relations  []RelateSpec

	Where   *Group
	GroupBy []string
	Having  *Group

	OrderBy []OrderSpec

	Limit  *string
	Offset *string
	Cursor *string

	Returning []string
}
