package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu   sync.Mutex
	runs map[string][]error
}

func (o *recordingObserver) ObserveJob(name string, duration time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runs == nil {
		o.runs = make(map[string][]error)
	}
	o.runs[name] = append(o.runs[name], err)
}

func (o *recordingObserver) count(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.runs[name])
}

func TestRunnerRegisterValidation(t *testing.T) {
	runner := NewRunner(RunnerConfig{})
	fn := func(context.Context) error { return nil }

	assert.Error(t, runner.Register(Job{Interval: time.Second, Fn: fn}))
	assert.Error(t, runner.Register(Job{Name: "rollover", Fn: fn}))
	assert.Error(t, runner.Register(Job{Name: "rollover", Interval: time.Second}))
	assert.NoError(t, runner.Register(Job{Name: "rollover", Interval: time.Second, Fn: fn}))
}

func TestRunnerRunOnceRetries(t *testing.T) {
	observer := &recordingObserver{}
	runner := NewRunner(RunnerConfig{MaxRetries: 2, RetryDelay: time.Millisecond, Observer: observer})

	var calls int32
	err := runner.RunOnce(context.Background(), Job{Name: "flaky", Interval: time.Minute, Fn: func(context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	assert.Equal(t, 3, observer.count("flaky"))

	err = runner.RunOnce(context.Background(), Job{Name: "broken", Interval: time.Minute, Fn: func(context.Context) error {
		return errors.New("always")
	}})
	assert.EqualError(t, err, "always")
	assert.Equal(t, 3, observer.count("broken"))
}

func TestRunnerRecoversPanics(t *testing.T) {
	observer := &recordingObserver{}
	runner := NewRunner(RunnerConfig{Observer: observer})

	err := runner.RunOnce(context.Background(), Job{Name: "panicky", Interval: time.Minute, Fn: func(context.Context) error {
		panic("boom")
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, 1, observer.count("panicky"))
}

func TestRunnerStartRunsAtStartAndTicks(t *testing.T) {
	runner := NewRunner(RunnerConfig{})
	var calls int32
	require.NoError(t, runner.Register(Job{
		Name:       "cleanup",
		Interval:   10 * time.Millisecond,
		RunAtStart: true,
		Fn: func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}))

	runner.Start(context.Background())
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) >= 3 }, time.Second, 5*time.Millisecond)
	runner.Stop()

	stopped := atomic.LoadInt32(&calls)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, stopped, atomic.LoadInt32(&calls))
	runner.Stop()
}
