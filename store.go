package rowan

import (
	"context"

	"github.com/evergreen-ci/rowan/model"
)

// Store is the engine's only boundary with the row store. One Store
// serves one entity type. Implementations must return rows in a
// stable, id-ascending order so that repeated sweeps walk the table
// the same way.
type Store interface {
	// RowsMissingUpgrade returns up to limit rows whose ledgers do
	// not contain the named upgrade. An empty result means the
	// entity has converged for that upgrade, at least for now.
	RowsMissingUpgrade(ctx context.Context, upgrade string, limit int) ([]model.Row, error)

	// RowsWithUpgrade returns up to limit rows whose ledgers do
	// contain the named upgrade.
	RowsWithUpgrade(ctx context.Context, upgrade string, limit int) ([]model.Row, error)

	// UpdateRow applies a sparse patch to the row with the given
	// id. Updating a row that no longer exists is a successful
	// no-op; a row deleted mid-sweep needs no upgrading.
	UpdateRow(ctx context.Context, id any, patch model.Patch) error

	// ScanRows pages through every row in id order, returning up
	// to limit rows with ids strictly greater than lastID. A nil
	// lastID starts from the beginning. The cleanup pass is the
	// only consumer; unlike the missing-upgrade accessors this
	// iteration is independent of ledger state.
	ScanRows(ctx context.Context, lastID any, limit int) ([]model.Row, error)
}
