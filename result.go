package rowan

import "time"

// PairState is the sweep state of one (entity, upgrade) pair.
type PairState string

const (
	StatePending   PairState = "pending"
	StateRunning   PairState = "running"
	StateConverged PairState = "converged"
)

// RowOp identifies which operation a row-level failure came from.
type RowOp string

const (
	OpFetch     RowOp = "fetch"
	OpTransform RowOp = "transform"
	OpPersist   RowOp = "persist"
	OpCleanup   RowOp = "cleanup"
)

// RowError is one row-scoped failure recorded during a pass. Fetch
// failures, which have no single row, leave RowID nil.
type RowError struct {
	RowID   any    `bson:"row_id,omitempty" json:"row_id,omitempty" yaml:"row_id,omitempty"`
	Op      RowOp  `bson:"op" json:"op" yaml:"op"`
	Message string `bson:"message" json:"message" yaml:"message"`
}

// PairReport describes what one pass did for one (entity, upgrade)
// pair.
type PairReport struct {
	Entity      string     `bson:"entity" json:"entity" yaml:"entity"`
	Upgrade     string     `bson:"upgrade" json:"upgrade" yaml:"upgrade"`
	State       PairState  `bson:"state" json:"state" yaml:"state"`
	RowsUpdated int        `bson:"rows_updated" json:"rows_updated" yaml:"rows_updated"`
	Batches     int        `bson:"batches" json:"batches" yaml:"batches"`
	Stalled     bool       `bson:"stalled,omitempty" json:"stalled,omitempty" yaml:"stalled,omitempty"`
	Errors      []RowError `bson:"errors,omitempty" json:"errors,omitempty" yaml:"errors,omitempty"`
}

// CleanupReport describes the cleanup pass for one entity. Skipped is
// set when the entity had not fully converged and cleanup was
// withheld.
type CleanupReport struct {
	Entity    string     `bson:"entity" json:"entity" yaml:"entity"`
	Steps     int        `bson:"steps" json:"steps" yaml:"steps"`
	RowsSwept int        `bson:"rows_swept" json:"rows_swept" yaml:"rows_swept"`
	Skipped   bool       `bson:"skipped,omitempty" json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Errors    []RowError `bson:"errors,omitempty" json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Summary is the structured outcome of a single orchestrator pass.
// Row-level failures are data here, not an error return.
type Summary struct {
	PassID     string          `bson:"pass_id" json:"pass_id" yaml:"pass_id"`
	StartedAt  time.Time       `bson:"started_at" json:"started_at" yaml:"started_at"`
	FinishedAt time.Time       `bson:"finished_at" json:"finished_at" yaml:"finished_at"`
	Pairs      []PairReport    `bson:"pairs" json:"pairs" yaml:"pairs"`
	Cleanups   []CleanupReport `bson:"cleanups,omitempty" json:"cleanups,omitempty" yaml:"cleanups,omitempty"`
}

// RowsUpdated totals the rows persisted across every pair in the
// pass.
func (s *Summary) RowsUpdated() int {
	total := 0
	for _, pair := range s.Pairs {
		total += pair.RowsUpdated
	}
	return total
}

// Converged reports whether every pair in the pass reached the
// converged state.
func (s *Summary) Converged() bool {
	for _, pair := range s.Pairs {
		if pair.State != StateConverged {
			return false
		}
	}
	return true
}

// Stalled reports whether any pair in the pass stalled.
func (s *Summary) Stalled() bool {
	for _, pair := range s.Pairs {
		if pair.Stalled {
			return true
		}
	}
	return false
}

// ErrorCount totals row-level failures across pairs and cleanups.
func (s *Summary) ErrorCount() int {
	count := 0
	for _, pair := range s.Pairs {
		count += len(pair.Errors)
	}
	for _, cleanup := range s.Cleanups {
		count += len(cleanup.Errors)
	}
	return count
}

// HasErrors reports whether the pass recorded any row-level failure.
func (s *Summary) HasErrors() bool { return s.ErrorCount() > 0 }
