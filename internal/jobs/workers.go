package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/rs/zerolog"
)

// DailyResetArgs rolls daily usage buckets forward.
type DailyResetArgs struct{}

func (DailyResetArgs) Kind() string { return "quota_daily_reset" }

// ExpirySweepArgs writes the expired status for lapsed subscriptions.
type ExpirySweepArgs struct{}

func (ExpirySweepArgs) Kind() string { return "subscription_expiry_sweep" }

// DailyResetter is implemented by ledger.Service.
type DailyResetter interface {
	ResetDaily(ctx context.Context) (int64, error)
}

// ExpirySweeper is implemented by subscription.Evaluator.
type ExpirySweeper interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

type DailyResetWorker struct {
	river.WorkerDefaults[DailyResetArgs]
	ledger DailyResetter
	log    zerolog.Logger
}

func NewDailyResetWorker(l DailyResetter, log zerolog.Logger) *DailyResetWorker {
	return &DailyResetWorker{ledger: l, log: log}
}

func (w *DailyResetWorker) Work(ctx context.Context, _ *river.Job[DailyResetArgs]) error {
	n, err := w.ledger.ResetDaily(ctx)
	if err != nil {
		return fmt.Errorf("daily reset: %w", err)
	}
	w.log.Debug().Int64("buckets_removed", n).Msg("daily reset done")
	return nil
}

type ExpirySweepWorker struct {
	river.WorkerDefaults[ExpirySweepArgs]
	subs ExpirySweeper
	log  zerolog.Logger
}

func NewExpirySweepWorker(s ExpirySweeper, log zerolog.Logger) *ExpirySweepWorker {
	return &ExpirySweepWorker{subs: s, log: log}
}

func (w *ExpirySweepWorker) Work(ctx context.Context, _ *river.Job[ExpirySweepArgs]) error {
	n, err := w.subs.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}
	if n > 0 {
		w.log.Info().Int64("expired", n).Msg("subscriptions expired")
	}
	return nil
}

// Register adds both workers to a river worker bundle.
func Register(workers *river.Workers, l DailyResetter, s ExpirySweeper, log zerolog.Logger) {
	river.AddWorker(workers, NewDailyResetWorker(l, log))
	river.AddWorker(workers, NewExpirySweepWorker(s, log))
}

// PeriodicJobs schedules both sweeps. Neither is needed for correctness: daily
// buckets are keyed by date and expiry is derived on read.
func PeriodicJobs(resetEvery, sweepEvery time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(resetEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				return DailyResetArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(sweepEvery),
			func() (river.JobArgs, *river.InsertOpts) {
				return ExpirySweepArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
