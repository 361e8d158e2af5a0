/*
Package rowan drives zero-downtime schema evolution for a persistent
row store. Named, idempotent transforms ("upgrades") are applied to
every row of an entity type in a fixed order, with the set of upgrades
already applied recorded per row in an applied-upgrade ledger.
Application code reads an effective view of a row by folding the
not-yet-applied upgrades over the stored data, so new code sees the
new schema before the batch sweep has touched the row; the sweep
itself runs in resumable, cursor-free batches that converge to a fully
upgraded table without ever locking it. Once every row of an entity
carries the full ledger, cleanup steps may destroy the data the
upgrades obsoleted.

The engine is storage agnostic. It talks to the row store exclusively
through the Store interface; the db package provides the MongoDB
implementation and the mock package an in-memory one for tests.
*/
package rowan

import "go.opentelemetry.io/otel"

// PackageName is the rowan module's import path, used to namespace
// tracers and job metadata.
const PackageName = "github.com/evergreen-ci/rowan"

// ClientVersion is the version reported by the rowan command line
// tool.
const ClientVersion = "2026-08-25"

var tracer = otel.GetTracerProvider().Tracer(PackageName)
