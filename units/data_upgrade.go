package units

import (
	"context"
	"fmt"

	"github.com/evergreen-ci/rowan"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/amboy"
	"github.com/mongodb/amboy/job"
	"github.com/mongodb/amboy/registry"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	dataUpgradeJobName = "entity-data-upgrade"

	tsFormat = "2006-01-02.15-04-05"
)

func init() {
	registry.AddJobType(dataUpgradeJobName, func() amboy.Job {
		return makeDataUpgradeJob()
	})
}

type dataUpgradeJob struct {
	job.Base `bson:"job_base" json:"job_base" yaml:"job_base"`

	// Summary records the outcome of the pass for operators reading
	// completed jobs back out of the queue.
	Summary *rowan.Summary `bson:"summary,omitempty" json:"summary,omitempty" yaml:"summary,omitempty"`

	upgrader *rowan.Upgrader
}

func makeDataUpgradeJob() *dataUpgradeJob {
	j := &dataUpgradeJob{
		Base: job.Base{
			JobType: amboy.JobType{
				Name:    dataUpgradeJobName,
				Version: 0,
			},
		},
	}
	return j
}

// NewDataUpgradeJob returns a job that runs a single pass of the
// upgrader. Job ids are derived from ts, so periodic schedulers
// enqueue at most one pass per interval.
func NewDataUpgradeJob(upgrader *rowan.Upgrader, ts string) amboy.Job {
	j := makeDataUpgradeJob()
	j.SetID(fmt.Sprintf("%s.%s", dataUpgradeJobName, ts))
	j.upgrader = upgrader
	return j
}

func (j *dataUpgradeJob) Run(ctx context.Context) {
	defer j.MarkComplete()

	ctx, span := tracer.Start(ctx, "data-upgrade-job")
	defer span.End()

	if j.upgrader == nil {
		j.AddError(errors.New("data upgrade job requires an upgrader"))
		return
	}

	summary, err := j.upgrader.RunOnce(ctx)
	j.Summary = summary
	if err != nil {
		span.SetStatus(codes.Error, "running upgrade pass")
		span.RecordError(err, trace.WithStackTrace(true))
		j.AddError(err)
	}

	grip.Info(message.Fields{
		"job_id":       j.ID(),
		"job_type":     j.Type().Name,
		"message":      "data upgrade pass finished",
		"pass_id":      summary.PassID,
		"rows_updated": summary.RowsUpdated(),
		"converged":    summary.Converged(),
		"stalled":      summary.Stalled(),
		"errors":       summary.ErrorCount(),
	})
}

// PopulateDataUpgradeJobs returns a queue operation that enqueues one
// upgrade pass, for wiring into a periodic scheduler.
func PopulateDataUpgradeJobs(upgrader *rowan.Upgrader) amboy.QueueOperation {
	return func(ctx context.Context, queue amboy.Queue) error {
		ts := utility.RoundPartOfMinute(0).Format(tsFormat)
		if err := queue.Put(ctx, NewDataUpgradeJob(upgrader, ts)); !amboy.IsDuplicateJobError(err) {
			return errors.WithStack(err)
		}
		return nil
	}
}
