package rowan

import (
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

const (
	defaultBatchSize        = 50
	defaultCleanupBatchSize = 100
	defaultWorkers          = 4
	defaultPersistAttempts  = 3
)

// EntityConfig binds one entity type to its upgrade plan, its cleanup
// steps, and the store that holds its rows. The order of Upgrades is
// the order they are applied, per row and across sweeps, forever.
type EntityConfig struct {
	// Name identifies the entity type in logs, reports, and
	// status output.
	Name string

	// Upgrades is the ordered plan. An upgrade never runs before
	// every earlier upgrade in this list has converged.
	Upgrades []Definition

	// Cleanup steps run over every row, in order, only after the
	// whole plan has converged for the entity. They are not
	// recorded in ledgers and are the only steps allowed to
	// destroy data, so they must stay safe to re-run.
	Cleanup []Definition

	// BatchSize overrides Options.BatchSize for this entity when
	// positive.
	BatchSize int

	// Store holds this entity's rows.
	Store Store
}

func (e *EntityConfig) validate() error {
	catcher := grip.NewBasicCatcher()

	catcher.NewWhen(e.Name == "", "entity name cannot be empty")
	catcher.NewWhen(e.Store == nil, "entity has no store")
	catcher.NewWhen(e.BatchSize < 0, "batch size cannot be negative")
	catcher.Wrap(ValidatePlan(e.Upgrades), "upgrade plan")
	catcher.Wrap(ValidatePlan(e.Cleanup), "cleanup steps")

	return catcher.Resolve()
}

func (e *EntityConfig) batchSize(opts Options) int {
	if e.BatchSize > 0 {
		return e.BatchSize
	}
	return opts.BatchSize
}

// Options tunes a single Upgrader across all of its entities.
type Options struct {
	// BatchSize caps the rows fetched per sweep iteration.
	BatchSize int

	// CleanupBatchSize caps the rows fetched per cleanup scan
	// page.
	CleanupBatchSize int

	// Workers bounds the goroutines transforming and persisting
	// rows within one batch. It is additionally capped by the
	// batch's row count.
	Workers int

	// MaxBatchesPerPair stops a pair after that many batches and
	// marks it stalled; zero means run to convergence. It is the
	// guard against a store whose fetches never drain.
	MaxBatchesPerPair int

	// Retry is the backoff policy for persisting a single row's
	// patch.
	Retry utility.RetryOptions
}

// ValidateAndDefault rejects nonsense values and fills zero values
// with the defaults: batches of 50, cleanup pages of 100, 4 workers,
// and 3 persist attempts.
func (o *Options) ValidateAndDefault() error {
	catcher := grip.NewBasicCatcher()
	catcher.NewWhen(o.BatchSize < 0, "batch size cannot be negative")
	catcher.NewWhen(o.CleanupBatchSize < 0, "cleanup batch size cannot be negative")
	catcher.NewWhen(o.Workers < 0, "worker count cannot be negative")
	catcher.NewWhen(o.MaxBatchesPerPair < 0, "max batches per pair cannot be negative")
	if catcher.HasErrors() {
		return catcher.Resolve()
	}

	if o.BatchSize == 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.CleanupBatchSize == 0 {
		o.CleanupBatchSize = defaultCleanupBatchSize
	}
	if o.Workers == 0 {
		o.Workers = defaultWorkers
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = defaultPersistAttempts
	}

	return nil
}

// Config is the complete, explicit configuration of an Upgrader.
// There is no global registry of upgrades; everything an Upgrader
// knows arrives here.
type Config struct {
	// Entities are processed independently, in this order.
	Entities []EntityConfig

	Options Options
}

// Validate checks every entity and defaults the options. It is called
// by NewUpgrader; configurations that fail here are unrunnable.
func (c *Config) Validate() error {
	catcher := grip.NewBasicCatcher()

	catcher.NewWhen(len(c.Entities) == 0, "at least one entity must be configured")

	seen := map[string]bool{}
	for _, entity := range c.Entities {
		catcher.Wrapf(entity.validate(), "entity '%s'", entity.Name)
		catcher.ErrorfWhen(entity.Name != "" && seen[entity.Name], "entity name '%s' is used more than once", entity.Name)
		seen[entity.Name] = true
	}

	catcher.Add(c.Options.ValidateAndDefault())

	return errors.WithStack(catcher.Resolve())
}
