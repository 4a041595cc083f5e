package domain

// IntentKind separates questions answered by aggregation from those
// answered by semantic search.
type IntentKind int

const (
	IntentSemantic IntentKind = iota
	IntentAggregation
)

// Operator is a statistical operation over a column.
type Operator int

const (
	OpMax Operator = iota
	OpMin
	OpMean
	OpCount
)

func (o Operator) String() string {
	switch o {
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	case OpMean:
		return "mean"
	case OpCount:
		return "count"
	}
	return "unknown"
}

// Filter restricts the rows an aggregation counts.
type Filter int

const (
	FilterNone Filter = iota
	FilterPlaced
)

// Intent is the classified purpose of a question. Op, Column and Filter are
// only meaningful for IntentAggregation; Column may be empty for OpCount.
type Intent struct {
	Kind   IntentKind
	Op     Operator
	Column string
	Filter Filter
}

// Semantic is the intent for questions without a statistical reading.
var Semantic = Intent{Kind: IntentSemantic}

func (i Intent) IsAggregation() bool { return i.Kind == IntentAggregation }
