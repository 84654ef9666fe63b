package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/satpool/model"
)

// seriesJob is a unit of work for the worker pool.
type seriesJob struct {
	index int
	sat   model.Satellite
}

// seriesResult is the output of a single satellite's sampling.
type seriesResult struct {
	index  int
	series *model.TimeSeries
	err    error
}

// computeSeries samples every satellite on a fixed-size worker pool. Results
// are returned in input order once all workers are done. If ctx is cancelled
// before that barrier the partial results are dropped and ctx.Err() is
// returned. Per-satellite propagation failures come back in errs alongside
// their truncated series.
func (p *Pipeline) computeSeries(ctx context.Context, sats []model.Satellite, start time.Time) (series []*model.TimeSeries, errs []error, err error) {
	if len(sats) == 0 {
		return nil, nil, ctx.Err()
	}
	workers := p.workers
	if workers > len(sats) {
		workers = len(sats)
	}

	jobs := make(chan seriesJob, workers*2)
	results := make(chan seriesResult, workers*2)

	horizon, step := p.cfg.Horizon(), p.cfg.Step()

	// Start workers.
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				ts, err := p.vis.BuildTimeSeries(ctx, p.provider, job.sat, start, horizon, step)
				select {
				case results <- seriesResult{index: job.index, series: ts, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Feed jobs in a goroutine.
	go func() {
		defer close(jobs)
		for i, sat := range sats {
			select {
			case jobs <- seriesJob{index: i, sat: sat}:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close results when all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	series = make([]*model.TimeSeries, len(sats))
	errs = make([]error, len(sats))
	for r := range results {
		series[r.index] = r.series
		errs[r.index] = r.err
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	return series, errs, nil
}
