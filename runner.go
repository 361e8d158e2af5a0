package rowan

import (
	"context"
	"sync"
	"time"

	"github.com/evergreen-ci/rowan/model"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/recovery"
	"github.com/mongodb/grip/sometimes"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	entityOtelAttribute  = "rowan.entity"
	upgradeOtelAttribute = "rowan.upgrade"

	batchLoggingPercent = 10
)

// runPair sweeps one (entity, upgrade) pair to convergence: fetch a
// batch of rows missing the upgrade, upgrade and persist each, and
// repeat until a fetch comes back empty. The pair stalls, still
// running, if a whole batch makes no progress or the batch cap is
// hit.
func (u *Upgrader) runPair(ctx context.Context, entity EntityConfig, upgrade string) PairReport {
	ctx, span := tracer.Start(ctx, "upgrade-pair", trace.WithAttributes(
		attribute.String(entityOtelAttribute, entity.Name),
		attribute.String(upgradeOtelAttribute, upgrade),
	))
	defer span.End()

	u.setState(entity.Name, upgrade, StateRunning)
	report := PairReport{
		Entity:  entity.Name,
		Upgrade: upgrade,
		State:   StateRunning,
	}

	batchSize := entity.batchSize(u.opts)
	failed := map[any]bool{}
	startAt := time.Now()

	for {
		if ctx.Err() != nil {
			break
		}

		rows, err := entity.Store.RowsMissingUpgrade(ctx, upgrade, batchSize)
		if err != nil {
			report.Errors = append(report.Errors, RowError{
				Op:      OpFetch,
				Message: errors.Wrapf(err, "fetching rows missing upgrade '%s'", upgrade).Error(),
			})
			span.SetStatus(codes.Error, "fetching batch")
			span.RecordError(err, trace.WithStackTrace(true))
			break
		}
		if len(rows) == 0 {
			report.State = StateConverged
			u.setState(entity.Name, upgrade, StateConverged)
			break
		}

		report.Batches++
		updated, noops := u.runBatch(ctx, entity, upgrade, rows, failed, &report)
		report.RowsUpdated += updated

		grip.InfoWhen(sometimes.Percent(batchLoggingPercent), message.Fields{
			"message":     "data upgrade batch complete",
			"entity":      entity.Name,
			"upgrade":     upgrade,
			"batch":       report.Batches,
			"fetched":     len(rows),
			"updated":     updated,
			"failed_rows": len(failed),
		})

		if ctx.Err() != nil {
			break
		}
		if updated+noops == 0 {
			report.Stalled = true
			break
		}
		if u.opts.MaxBatchesPerPair > 0 && report.Batches >= u.opts.MaxBatchesPerPair {
			report.Stalled = true
			break
		}
	}

	if report.Stalled {
		span.SetStatus(codes.Error, "upgrade stalled before convergence")
		grip.Warning(message.Fields{
			"message":      "data upgrade stalled before convergence",
			"entity":       entity.Name,
			"upgrade":      upgrade,
			"batches":      report.Batches,
			"rows_updated": report.RowsUpdated,
			"row_errors":   len(report.Errors),
		})
	}

	grip.Info(message.Fields{
		"message":       "data upgrade pair finished",
		"entity":        entity.Name,
		"upgrade":       upgrade,
		"state":         report.State,
		"stalled":       report.Stalled,
		"batches":       report.Batches,
		"rows_updated":  report.RowsUpdated,
		"row_errors":    len(report.Errors),
		"duration_secs": time.Since(startAt).Seconds(),
	})

	return report
}

// runBatch fans the batch's rows out to a bounded pool of workers.
// Rows that already failed this pair are skipped without counting as
// progress, so a sweep whose remainder is poison rows terminates
// instead of refetching them forever.
func (u *Upgrader) runBatch(ctx context.Context, entity EntityConfig, upgrade string, rows []model.Row, failed map[any]bool, report *PairReport) (int, int) {
	input := make(chan model.Row, len(rows))
	for _, row := range rows {
		if !failed[row.ID] {
			input <- row
		}
	}
	close(input)

	workers := u.opts.Workers
	if workers > len(rows) {
		workers = len(rows)
	}

	var (
		updated int
		noops   int
		mu      sync.Mutex
		wg      sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer recovery.LogStackTraceAndContinue("data upgrade batch worker", entity.Name, upgrade)
			defer wg.Done()

			for row := range input {
				persisted, err := u.upgradeRow(ctx, entity, upgrade, row)

				mu.Lock()
				switch {
				case err != nil:
					failed[row.ID] = true
					report.Errors = append(report.Errors, rowErrorFrom(row.ID, err))
				case persisted:
					updated++
				default:
					noops++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return updated, noops
}

// upgradeRow resolves the row through the upgrade and persists the
// accumulated patch in a single store update. It reports whether a
// write happened; a row that already carries the whole plan prefix
// needs none.
func (u *Upgrader) upgradeRow(ctx context.Context, entity EntityConfig, upgrade string, row model.Row) (bool, error) {
	patch, err := u.safeResolveThrough(entity, upgrade, row)
	if err != nil {
		grip.Error(message.WrapError(err, message.Fields{
			"message": "transforming row for data upgrade",
			"entity":  entity.Name,
			"upgrade": upgrade,
			"row_id":  row.ID,
		}))
		return false, err
	}
	if patch.IsZero() {
		return false, nil
	}

	err = utility.Retry(ctx, func() (bool, error) {
		return true, entity.Store.UpdateRow(ctx, row.ID, patch)
	}, u.opts.Retry)
	if err != nil {
		perr := &PersistError{Entity: entity.Name, Upgrade: upgrade, RowID: row.ID, Cause: err}
		grip.Error(message.WrapError(perr, message.Fields{
			"message": "persisting row for data upgrade",
			"entity":  entity.Name,
			"upgrade": upgrade,
			"row_id":  row.ID,
		}))
		return false, perr
	}

	return true, nil
}

// safeResolveThrough runs the resolver fold with a recovery guard so
// a panicking transform downgrades to a row error instead of killing
// the worker.
func (u *Upgrader) safeResolveThrough(entity EntityConfig, upgrade string, row model.Row) (patch model.Patch, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &TransformError{
				Entity:  entity.Name,
				Upgrade: upgrade,
				RowID:   row.ID,
				Cause:   errors.Errorf("transform panicked: %v", p),
			}
			grip.Alert(message.WrapError(err, message.Fields{
				"message": "panic in upgrade transform",
				"entity":  entity.Name,
				"upgrade": upgrade,
				"row_id":  row.ID,
			}))
		}
	}()

	_, patch, err = ResolveThrough(entity.Upgrades, upgrade, row)
	if terr, ok := err.(*TransformError); ok {
		terr.Entity = entity.Name
	}
	return patch, err
}

func rowErrorFrom(id any, err error) RowError {
	op := OpPersist
	if _, ok := errors.Cause(err).(*TransformError); ok {
		op = OpTransform
	}
	return RowError{RowID: id, Op: op, Message: err.Error()}
}

// runCleanup makes one pass over every row of a fully converged
// entity, applying the cleanup steps in order and persisting whatever
// they change. Convergence is re-verified against the store
// immediately before any destructive work; if even one row still
// misses one upgrade the pass is withheld.
func (u *Upgrader) runCleanup(ctx context.Context, entity EntityConfig) CleanupReport {
	ctx, span := tracer.Start(ctx, "cleanup-pass", trace.WithAttributes(
		attribute.String(entityOtelAttribute, entity.Name),
	))
	defer span.End()

	report := CleanupReport{Entity: entity.Name, Steps: len(entity.Cleanup)}
	startAt := time.Now()

	for _, def := range entity.Upgrades {
		rows, err := entity.Store.RowsMissingUpgrade(ctx, def.Name, 1)
		if err != nil {
			report.Skipped = true
			report.Errors = append(report.Errors, RowError{
				Op:      OpFetch,
				Message: errors.Wrapf(err, "verifying convergence of upgrade '%s'", def.Name).Error(),
			})
			return report
		}
		if len(rows) != 0 {
			report.Skipped = true
			grip.Warning(message.Fields{
				"message": "cleanup withheld, entity has not converged",
				"entity":  entity.Name,
				"upgrade": def.Name,
			})
			return report
		}
	}

	var lastID any
	for {
		if ctx.Err() != nil {
			break
		}

		rows, err := entity.Store.ScanRows(ctx, lastID, u.opts.CleanupBatchSize)
		if err != nil {
			report.Errors = append(report.Errors, RowError{
				Op:      OpFetch,
				Message: errors.Wrap(err, "scanning rows for cleanup").Error(),
			})
			span.SetStatus(codes.Error, "scanning rows")
			span.RecordError(err, trace.WithStackTrace(true))
			break
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			patch, err := safeCleanupPatch(entity.Cleanup, row)
			if err != nil {
				report.Errors = append(report.Errors, RowError{RowID: row.ID, Op: OpCleanup, Message: err.Error()})
				continue
			}
			if patch.IsZero() {
				continue
			}
			if err := entity.Store.UpdateRow(ctx, row.ID, patch); err != nil {
				report.Errors = append(report.Errors, RowError{RowID: row.ID, Op: OpCleanup, Message: err.Error()})
				continue
			}
			report.RowsSwept++
		}

		lastID = rows[len(rows)-1].ID
		if len(rows) < u.opts.CleanupBatchSize {
			break
		}
	}

	grip.Info(message.Fields{
		"message":       "cleanup pass finished",
		"entity":        entity.Name,
		"steps":         report.Steps,
		"rows_swept":    report.RowsSwept,
		"row_errors":    len(report.Errors),
		"duration_secs": time.Since(startAt).Seconds(),
	})

	return report
}

// safeCleanupPatch folds the cleanup steps over one row. Cleanup
// never touches ledgers, so the returned patch carries none; a step
// whose work is already done should return a zero patch to keep
// re-runs write-free.
func safeCleanupPatch(steps []Definition, row model.Row) (patch model.Patch, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Errorf("cleanup transform panicked on row '%v': %v", row.ID, p)
			grip.Alert(message.WrapError(err, message.Fields{
				"message": "panic in cleanup transform",
				"row_id":  row.ID,
			}))
		}
	}()

	current := row
	acc := model.Patch{}
	for _, def := range steps {
		stepPatch, err := def.Transform(current)
		if err != nil {
			return model.Patch{}, errors.Wrapf(err, "cleanup step '%s'", def.Name)
		}
		stepPatch.Ledger = nil
		current = current.Apply(stepPatch)
		acc = acc.Merge(stepPatch)
	}

	return acc, nil
}
