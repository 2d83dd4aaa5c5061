package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Func is one execution of a periodic job.
type Func func(context.Context) error

// Observer receives the outcome of every job execution.
type Observer interface {
	ObserveJob(name string, duration time.Duration, err error)
}

// Job describes a periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// RunAtStart executes the job once before the first tick.
	RunAtStart bool
	Timeout    time.Duration
	Fn         Func
}

// RunnerConfig configures retry and reporting behaviour.
type RunnerConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
	Observer   Observer
}

// Runner executes registered jobs on their own tickers until stopped.
type Runner struct {
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger
	observer   Observer

	jobs    []Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewRunner builds an idle runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Runner{
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
	}
}

// Register adds a job. Jobs registered after Start are started immediately.
func (r *Runner) Register(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Fn == nil {
		return fmt.Errorf("job %s: function is required", job.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, job)
	if r.started {
		r.launch(job)
	}
	return nil
}

// Start begins executing registered jobs. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	for _, job := range r.jobs {
		r.launch(job)
	}
	r.started = true
	r.logger.Sugar().Infow("job runner started", "jobs", len(r.jobs))
}

// Stop cancels every job and waits for running executions to return.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.started = false
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("job runner stopped")
}

// RunOnce executes a job synchronously with the runner's retry policy.
func (r *Runner) RunOnce(ctx context.Context, job Job) error {
	var err error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			r.logger.Sugar().Warnw("job failed, retrying", "job", job.Name, "attempt", attempt, "error", err)
			timer := time.NewTimer(r.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err = r.execute(ctx, job); err == nil {
			return nil
		}
	}
	r.logger.Sugar().Errorw("job exceeded retries", "job", job.Name, "error", err)
	return err
}

func (r *Runner) launch(job Job) {
	ctx := r.ctx
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if job.RunAtStart {
			_ = r.RunOnce(ctx, job)
		}
		ticker := time.NewTicker(job.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = r.RunOnce(ctx, job)
			}
		}
	}()
}

func (r *Runner) execute(ctx context.Context, job Job) (err error) {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
		if r.observer != nil {
			r.observer.ObserveJob(job.Name, time.Since(start), err)
		}
	}()
	return job.Fn(ctx)
}
