package db

import (
	"context"

	"github.com/evergreen-ci/rowan"
	"github.com/evergreen-ci/rowan/model"
	"github.com/pkg/errors"
)

// RowFinder fetches single stored rows by id.
type RowFinder interface {
	FindID(context.Context, any) (model.Row, error)
}

// EffectiveFinder decorates a RowFinder with read-time upgrade
// resolution. Rows come back as if every upgrade in the plan had
// already been applied, whether or not the background sweep has
// reached them, so readers never see a mixed-era schema. The stored
// row is never written by the read path.
type EffectiveFinder struct {
	finder RowFinder
	plan   []rowan.Definition
}

// NewEffectiveFinder validates the plan and wraps the finder.
func NewEffectiveFinder(finder RowFinder, plan []rowan.Definition) (*EffectiveFinder, error) {
	if finder == nil {
		return nil, errors.New("a row finder is required")
	}
	if err := rowan.ValidatePlan(plan); err != nil {
		return nil, errors.Wrap(err, "invalid upgrade plan")
	}
	return &EffectiveFinder{finder: finder, plan: plan}, nil
}

// FindID fetches the stored row and folds the plan's pending upgrades
// over it. Fetch errors pass through so not-found checks against the
// underlying finder keep working.
func (f *EffectiveFinder) FindID(ctx context.Context, id any) (model.Row, error) {
	row, err := f.finder.FindID(ctx, id)
	if err != nil {
		return model.Row{}, err
	}
	return rowan.Resolve(f.plan, row)
}

// FindEffective resolves a single row through the plan without
// constructing a long-lived finder.
func FindEffective(ctx context.Context, finder RowFinder, plan []rowan.Definition, id any) (model.Row, error) {
	f, err := NewEffectiveFinder(finder, plan)
	if err != nil {
		return model.Row{}, err
	}
	return f.FindID(ctx, id)
}
