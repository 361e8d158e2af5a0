package rowan

import (
	"context"
	"sync"
	"time"

	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// Upgrader orchestrates data upgrades for a set of entity types. It
// is constructed once from an explicit Config and lives for the
// process; each RunOnce call drives a complete pass over every
// configured entity.
type Upgrader struct {
	entities []EntityConfig
	opts     Options

	runMu sync.Mutex

	mu    sync.RWMutex
	state map[pairKey]PairState
}

type pairKey struct {
	entity  string
	upgrade string
}

// NewUpgrader validates the configuration and builds an Upgrader with
// every (entity, upgrade) pair pending. Invalid configurations are
// refused outright; there is nothing to do with a half-wired
// upgrader.
func NewUpgrader(conf Config) (*Upgrader, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid upgrader configuration")
	}

	u := &Upgrader{
		entities: conf.Entities,
		opts:     conf.Options,
		state:    map[pairKey]PairState{},
	}
	u.resetState()

	return u, nil
}

func (u *Upgrader) resetState() {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, entity := range u.entities {
		for _, def := range entity.Upgrades {
			u.state[pairKey{entity: entity.Name, upgrade: def.Name}] = StatePending
		}
	}
}

func (u *Upgrader) setState(entity, upgrade string, state PairState) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.state[pairKey{entity: entity, upgrade: upgrade}] = state
}

// RunOnce runs one full pass: every entity's plan is swept to
// convergence in order, then entities whose plans fully converged get
// their cleanup pass. Row-level failures are collected in the
// returned summary rather than failing the pass; the error return is
// reserved for whole-pass aborts, which today means context
// cancellation. A partial summary accompanies the error so callers
// can still see how far the pass got.
//
// Passes are serialized; a second RunOnce on the same Upgrader blocks
// until the first finishes.
func (u *Upgrader) RunOnce(ctx context.Context) (*Summary, error) {
	u.runMu.Lock()
	defer u.runMu.Unlock()

	ctx, span := tracer.Start(ctx, "upgrade-pass")
	defer span.End()

	u.resetState()
	summary := &Summary{
		PassID:    utility.RandomString(),
		StartedAt: time.Now(),
	}

	grip.Info(message.Fields{
		"message":  "data upgrade pass starting",
		"pass":     summary.PassID,
		"entities": len(u.entities),
	})

	for _, entity := range u.entities {
		stalled := false

		for _, def := range entity.Upgrades {
			if err := ctx.Err(); err != nil {
				summary.FinishedAt = time.Now()
				return summary, errors.Wrap(err, "data upgrade pass aborted")
			}
			if stalled {
				// plan order is absolute: nothing after a
				// stalled upgrade may run this pass
				summary.Pairs = append(summary.Pairs, PairReport{
					Entity:  entity.Name,
					Upgrade: def.Name,
					State:   StatePending,
				})
				continue
			}

			report := u.runPair(ctx, entity, def.Name)
			summary.Pairs = append(summary.Pairs, report)
			if report.Stalled || report.State != StateConverged {
				stalled = true
			}
		}

		if err := ctx.Err(); err != nil {
			summary.FinishedAt = time.Now()
			return summary, errors.Wrap(err, "data upgrade pass aborted")
		}

		if len(entity.Cleanup) == 0 {
			continue
		}
		if stalled {
			summary.Cleanups = append(summary.Cleanups, CleanupReport{
				Entity:  entity.Name,
				Steps:   len(entity.Cleanup),
				Skipped: true,
			})
			continue
		}
		summary.Cleanups = append(summary.Cleanups, u.runCleanup(ctx, entity))
	}

	summary.FinishedAt = time.Now()

	grip.Info(message.Fields{
		"message":       "data upgrade pass finished",
		"pass":          summary.PassID,
		"entities":      len(u.entities),
		"pairs":         len(summary.Pairs),
		"rows_updated":  summary.RowsUpdated(),
		"converged":     summary.Converged(),
		"stalled":       summary.Stalled(),
		"row_errors":    summary.ErrorCount(),
		"duration_secs": summary.FinishedAt.Sub(summary.StartedAt).Seconds(),
	})

	return summary, nil
}

// PairStatus is one entry of the orchestrator's state snapshot.
type PairStatus struct {
	Entity  string    `bson:"entity" json:"entity" yaml:"entity"`
	Upgrade string    `bson:"upgrade" json:"upgrade" yaml:"upgrade"`
	State   PairState `bson:"state" json:"state" yaml:"state"`
}

// Status snapshots the per-pair sweep state in configuration order.
// It is safe to call while a pass is running and reflects the state
// the pass has reached so far.
func (u *Upgrader) Status() []PairStatus {
	u.mu.RLock()
	defer u.mu.RUnlock()

	out := []PairStatus{}
	for _, entity := range u.entities {
		for _, def := range entity.Upgrades {
			out = append(out, PairStatus{
				Entity:  entity.Name,
				Upgrade: def.Name,
				State:   u.state[pairKey{entity: entity.Name, upgrade: def.Name}],
			})
		}
	}
	return out
}

// Progress samples every entity's store for each pair's convergence,
// independent of any pass.
func (u *Upgrader) Progress(ctx context.Context) ([]ProgressSample, error) {
	out := []ProgressSample{}
	for _, entity := range u.entities {
		samples, err := SampleProgress(ctx, entity.Store, entity.Name, planNames(entity.Upgrades))
		if err != nil {
			return nil, errors.Wrapf(err, "sampling progress for entity '%s'", entity.Name)
		}
		out = append(out, samples...)
	}
	return out, nil
}

// ProgressSample is a store-side probe of one pair: whether any row
// still misses the upgrade and whether any row carries it yet.
type ProgressSample struct {
	Entity    string `bson:"entity" json:"entity" yaml:"entity"`
	Upgrade   string `bson:"upgrade" json:"upgrade" yaml:"upgrade"`
	Converged bool   `bson:"converged" json:"converged" yaml:"converged"`
	Applied   bool   `bson:"applied" json:"applied" yaml:"applied"`
}

// SampleProgress probes a store for the convergence of each named
// upgrade. It needs only upgrade names, not transforms, so operator
// tooling can check convergence without wiring the plan's code.
func SampleProgress(ctx context.Context, store Store, entity string, upgrades []string) ([]ProgressSample, error) {
	out := make([]ProgressSample, 0, len(upgrades))
	for _, upgrade := range upgrades {
		missing, err := store.RowsMissingUpgrade(ctx, upgrade, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "checking rows missing upgrade '%s'", upgrade)
		}
		with, err := store.RowsWithUpgrade(ctx, upgrade, 1)
		if err != nil {
			return nil, errors.Wrapf(err, "checking rows with upgrade '%s'", upgrade)
		}
		out = append(out, ProgressSample{
			Entity:    entity,
			Upgrade:   upgrade,
			Converged: len(missing) == 0,
			Applied:   len(with) > 0,
		})
	}
	return out, nil
}

func planNames(plan []Definition) []string {
	names := make([]string, 0, len(plan))
	for _, def := range plan {
		names = append(names, def.Name)
	}
	return names
}
