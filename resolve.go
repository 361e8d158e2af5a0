package rowan

import (
	"github.com/evergreen-ci/rowan/model"
	"github.com/pkg/errors"
)

// Resolve computes the effective view of a row under a plan: the row
// as it will look once every upgrade has been applied. Upgrades
// already in the row's ledger are skipped; the rest are folded over
// the row in plan order, each transform seeing the output of its
// predecessors. The stored row is never modified, no I/O happens, and
// a fully upgraded row resolves to itself without invoking a single
// transform.
//
// A transform failure aborts the fold with a *TransformError; there
// is no partial result.
func Resolve(plan []Definition, row model.Row) (model.Row, error) {
	if len(plan) == 0 {
		return row, nil
	}
	resolved, _, err := fold(plan, row)
	return resolved, err
}

// ResolveThrough resolves the plan prefix ending at the named upgrade
// and also returns the accumulated patch of every step the fold had
// to apply, with the patch ledger set to the row's new ledger. The
// batch runner persists exactly that patch, so a row that missed
// several earlier upgrades (inserted after those sweeps converged)
// is healed in the same write that applies the current one. When the
// row already carries the whole prefix the returned patch is zero.
func ResolveThrough(plan []Definition, upgrade string, row model.Row) (model.Row, model.Patch, error) {
	idx := planIndex(plan, upgrade)
	if idx < 0 {
		return model.Row{}, model.Patch{}, errors.Errorf("upgrade '%s' is not in the plan", upgrade)
	}
	return fold(plan[:idx+1], row)
}

func fold(plan []Definition, row model.Row) (model.Row, model.Patch, error) {
	current := row
	acc := model.Patch{}
	applied := 0

	for _, def := range plan {
		if model.IsApplied(current.AppliedUpgrades, def.Name) {
			continue
		}

		patch, err := def.Transform(current)
		if err != nil {
			return model.Row{}, model.Patch{}, &TransformError{
				Upgrade: def.Name,
				RowID:   row.ID,
				Cause:   err,
			}
		}

		// the ledger belongs to the engine, whatever the
		// transform returned
		patch.Ledger = nil

		current = current.Apply(patch)
		current.AppliedUpgrades = model.MarkApplied(current.AppliedUpgrades, def.Name)
		acc = acc.Merge(patch)
		applied++
	}

	if applied == 0 {
		return current, model.Patch{}, nil
	}

	acc.Ledger = current.AppliedUpgrades
	return current, acc, nil
}
