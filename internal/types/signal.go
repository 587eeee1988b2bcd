package types

import "time"

// Decision is the ternary output of the signal evaluator.
type Decision string

const (
	// DecisionNone means no action this cycle.
	DecisionNone Decision = "NONE"
	// DecisionEnter asks for a buy when flat.
	DecisionEnter Decision = "ENTER"
	// DecisionExit asks for a sell of the whole position.
	DecisionExit Decision = "EXIT"
)

func (d Decision) String() string {
	return string(d)
}

// DecisionRecord is one evaluated cycle as written to the journal.
type DecisionRecord struct {
	Timestamp time.Time
	Symbol    string
	Snapshot  IndicatorSnapshot
	State     LifecycleState
	Decision  Decision
	Acted     bool
	Note      string
}
