package job

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunnerConfig contains configuration for the job runner.
type RunnerConfig struct {
	// Workers is the number of jobs executed concurrently.
	Workers int `json:"workers"`
}

// DefaultRunnerConfig returns sensible defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Workers: 2}
}

// Runner executes jobs on a bounded worker pool. Each job runs in
// isolation: a failed job records its error in its Result and the rest
// continue. Context cancellation stops the pool; jobs not yet started
// are reported with the context's error.
type Runner struct {
	config RunnerConfig
	logger *zap.SugaredLogger
}

// NewRunner creates a runner. A nil logger disables logging.
func NewRunner(cfg RunnerConfig, logger *zap.SugaredLogger) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{config: cfg, logger: logger}
}

// Run executes all jobs and returns one Result per job, in job order.
func (r *Runner) Run(ctx context.Context, jobs []*Job) []Result {
	results := make([]Result, len(jobs))
	indices := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < r.config.Workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := range indices {
				results[i] = r.runOne(ctx, worker, jobs[i])
			}
		}(w)
	}

	for i := range jobs {
		select {
		case indices <- i:
		case <-ctx.Done():
			results[i] = Result{Name: jobs[i].Name, Err: ctx.Err()}
		}
	}
	close(indices)
	wg.Wait()

	return results
}

func (r *Runner) runOne(ctx context.Context, worker int, j *Job) Result {
	if err := ctx.Err(); err != nil {
		return Result{Name: j.Name, Err: err}
	}

	start := time.Now()
	r.logger.Infow("job started", "job", j.Name, "worker", worker)
	res := j.execute(ctx)
	if res.Err != nil {
		r.logger.Errorw("job failed",
			"job", j.Name,
			"worker", worker,
			"elapsed", time.Since(start),
			"error", res.Err)
		return res
	}
	r.logger.Infow("job finished",
		"job", j.Name,
		"worker", worker,
		"elapsed", time.Since(start),
		"codes", len(res.Codebook.Codes))
	return res
}
