package rowan

import (
	"github.com/evergreen-ci/rowan/model"
	"github.com/mongodb/grip"
)

// Transform computes the sparse change an upgrade makes to one row.
// The input is the row as already upgraded by every earlier step of
// the plan. Transforms must be pure and idempotent: given an
// equivalent row they return an equivalent patch, and rows that
// already carry the upgrade's effect get a patch that reproduces it
// harmlessly. Transforms never touch the applied-upgrade ledger; the
// engine discards any ledger in the returned patch.
type Transform func(model.Row) (model.Patch, error)

// Definition names a single upgrade or cleanup step. Within one
// entity's plan every name is unique, and plan position fixes the
// order of application forever.
type Definition struct {
	Name      string
	Transform Transform
}

// ValidatePlan checks that a plan is runnable: every step named,
// every transform set, no name used twice. An empty plan is valid.
func ValidatePlan(plan []Definition) error {
	catcher := grip.NewBasicCatcher()

	seen := map[string]bool{}
	for idx, def := range plan {
		catcher.ErrorfWhen(def.Name == "", "step at index %d has no name", idx)
		catcher.ErrorfWhen(def.Transform == nil, "step '%s' at index %d has no transform", def.Name, idx)
		catcher.ErrorfWhen(seen[def.Name], "step name '%s' is used more than once", def.Name)
		seen[def.Name] = true
	}

	return catcher.Resolve()
}

func planIndex(plan []Definition, upgrade string) int {
	for idx, def := range plan {
		if def.Name == upgrade {
			return idx
		}
	}
	return -1
}
