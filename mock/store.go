package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/evergreen-ci/rowan/model"
	adb "github.com/mongodb/anser/db"
	"github.com/pkg/errors"
)

// Store is an in-memory row store for tests. The exported fields
// inject failures: FetchError and ScanError fail the corresponding
// accessors outright, UpdateErrors fails specific rows forever, and
// TransientUpdateFailures fails specific rows a fixed number of times
// before letting the update through. The counters record how often
// each operation ran.
type Store struct {
	mu   sync.Mutex
	rows map[any]model.Row

	FetchError              error
	ScanError               error
	UpdateErrors            map[any]error
	TransientUpdateFailures map[any]int

	FetchCount  int
	UpdateCount int
	ScanCount   int
}

func NewStore() *Store {
	return &Store{
		rows:                    map[any]model.Row{},
		UpdateErrors:            map[any]error{},
		TransientUpdateFailures: map[any]int{},
	}
}

// Insert seeds the store, replacing rows with matching ids. Rows are
// copied in, so later mutation of the caller's copy is invisible.
func (s *Store) Insert(rows ...model.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		s.rows[row.ID] = row.Copy()
	}
}

// Row fetches a single row by id.
func (s *Store) Row(id any) (model.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return model.Row{}, false
	}
	return row.Copy(), true
}

// All returns every row in id order.
func (s *Store) All() []model.Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sortedLocked(func(model.Row) bool { return true }, len(s.rows))
}

func (s *Store) RowsMissingUpgrade(_ context.Context, upgrade string, limit int) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCount++
	if s.FetchError != nil {
		return nil, s.FetchError
	}

	return s.sortedLocked(func(row model.Row) bool {
		return !model.IsApplied(row.AppliedUpgrades, upgrade)
	}, limit), nil
}

func (s *Store) RowsWithUpgrade(_ context.Context, upgrade string, limit int) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCount++
	if s.FetchError != nil {
		return nil, s.FetchError
	}

	return s.sortedLocked(func(row model.Row) bool {
		return model.IsApplied(row.AppliedUpgrades, upgrade)
	}, limit), nil
}

func (s *Store) UpdateRow(_ context.Context, id any, patch model.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UpdateCount++
	if err, ok := s.UpdateErrors[id]; ok {
		return err
	}
	if remaining, ok := s.TransientUpdateFailures[id]; ok && remaining > 0 {
		s.TransientUpdateFailures[id] = remaining - 1
		return errors.Errorf("transient failure updating row '%v'", id)
	}

	row, ok := s.rows[id]
	if !ok {
		// updating a deleted row is a no-op by contract
		return nil
	}

	s.rows[id] = row.Apply(patch)
	return nil
}

func (s *Store) ScanRows(_ context.Context, lastID any, limit int) ([]model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ScanCount++
	if s.ScanError != nil {
		return nil, s.ScanError
	}

	return s.sortedLocked(func(row model.Row) bool {
		return lastID == nil || lessID(lastID, row.ID)
	}, limit), nil
}

// FindID fetches one raw row, reporting missing rows with the same
// not-found sentinel the database-backed store uses. This sits
// outside the engine's store contract; it backs tests of read-path
// decorators.
func (s *Store) FindID(_ context.Context, id any) (model.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.FetchCount++
	if s.FetchError != nil {
		return model.Row{}, s.FetchError
	}

	row, ok := s.rows[id]
	if !ok {
		return model.Row{}, errors.Wrapf(adb.ErrNotFound, "row '%v'", id)
	}
	return row.Copy(), nil
}

func (s *Store) sortedLocked(matches func(model.Row) bool, limit int) []model.Row {
	out := []model.Row{}
	for _, row := range s.rows {
		if matches(row) {
			out = append(out, row.Copy())
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })

	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func lessID(a, b any) bool {
	ai, aok := toInt64(a)
	bi, bok := toInt64(b)
	if aok && bok {
		return ai < bi
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
