package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/ZanzyTHEbar/blind-match/internal/errors"
)

const (
	runtimeSampleInterval = 30 * time.Second
	limiterIdle           = 30 * time.Minute
)

type job struct {
	name     string
	interval time.Duration
	task     func()
}

// startJobs schedules cache expiry, limiter cleanup and runtime sampling.
func startJobs(app *application) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	sweep := app.cfg.Cache.SweepInterval
	if sweep <= 0 {
		sweep = 10 * time.Minute
	}

	jobs := []job{
		{"pair_cache_sweep", sweep, func() {
			removed := app.pairs.Sweep()
			app.logger.CacheLogger("sweep", "memory", false, removed)
		}},
		{"limiter_sweep", sweep, func() {
			removed := app.limiter.Sweep(limiterIdle)
			app.logger.CacheLogger("sweep", "ratelimit", false, removed)
		}},
		{"runtime_sample", runtimeSampleInterval, app.metrics.SampleRuntime},
	}
	if app.cacheStore != nil {
		jobs = append(jobs, job{"cache_store_purge", sweep, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			purged, err := app.cacheStore.PurgeExpired(ctx)
			if err != nil {
				app.logger.SystemLogger("cache_purge_failed", err.Error())
				return
			}
			app.logger.CacheLogger("purge", "store", false, int(purged))
		}})
	}

	for _, j := range jobs {
		name, task := j.name, j.task
		_, err := sched.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() {
				errors.SafeExecute(task, func(r any) {
					app.logger.SystemLogger("job_panic", fmt.Sprintf("%s: %v", name, r))
				})
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
	}

	sched.Start()
	return sched, nil
}
