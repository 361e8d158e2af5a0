package rowan

import "fmt"

// TransformError reports that an upgrade's transform rejected or
// panicked on a single row. The row keeps its current ledger and is
// picked up again by the next sweep; sibling rows are unaffected.
type TransformError struct {
	Entity  string
	Upgrade string
	RowID   any
	Cause   error
}

func (e *TransformError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("transforming row '%v' of entity '%s' for upgrade '%s': %s", e.RowID, e.Entity, e.Upgrade, e.Cause)
	}
	return fmt.Sprintf("transforming row '%v' for upgrade '%s': %s", e.RowID, e.Upgrade, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

// PersistError reports that a row's patch could not be written after
// bounded retries. The ledger was not advanced, so the row remains
// eligible for the next sweep.
type PersistError struct {
	Entity  string
	Upgrade string
	RowID   any
	Cause   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persisting row '%v' of entity '%s' for upgrade '%s': %s", e.RowID, e.Entity, e.Upgrade, e.Cause)
}

func (e *PersistError) Unwrap() error { return e.Cause }
