package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazza-sg/weather-trader/internal/clock"
	"github.com/hazza-sg/weather-trader/internal/domain"
)

func task(name string, priority domain.Priority, interval time.Duration) domain.ScheduledTask {
	return domain.ScheduledTask{
		Name: name, Interval: interval, Priority: priority,
		MaxRetries: 3, RetryDelay: 5 * time.Second, Enabled: true,
	}
}

func TestTick_RunsDueTasksInPriorityOrder(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	s := New(c, time.Second)

	var order []string
	s.Register(task("low", domain.PriorityLow, time.Minute), func(ctx context.Context) error {
		order = append(order, "low")
		return nil
	})
	s.Register(task("critical", domain.PriorityCritical, time.Minute), func(ctx context.Context) error {
		order = append(order, "critical")
		return nil
	})
	s.Register(task("normal", domain.PriorityNormal, time.Minute), func(ctx context.Context) error {
		order = append(order, "normal")
		return nil
	})

	// All three tasks were just registered with NextDue = now+Interval, so
	// nothing is due yet.
	results := s.Tick(context.Background(), at)
	assert.Empty(t, results)

	c.Advance(61 * time.Second)
	results = s.Tick(context.Background(), c.Now())
	require.Len(t, results, 3)
	assert.Equal(t, []string{"critical", "normal", "low"}, order)
}

func TestExecute_LinearBackoffOnFailure(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	s := New(c, time.Second)

	attempts := 0
	s.Register(task("flaky", domain.PriorityHigh, 10*time.Second), func(ctx context.Context) error {
		attempts++
		return errors.New("transient failure")
	})

	c.Advance(11 * time.Second)
	s.Tick(context.Background(), c.Now())

	tk, ok := s.Task("flaky")
	require.True(t, ok)
	assert.Equal(t, 1, tk.ErrorCount)
	// next_run = now + retry_delay * min(error_count, max_retries) = now + 5s*1
	assert.Equal(t, c.Now().Add(5*time.Second), tk.NextDue)

	// Fail again: error_count=2, backoff = 5s*2 = 10s.
	c.Set(tk.NextDue)
	s.Tick(context.Background(), c.Now())
	tk, _ = s.Task("flaky")
	assert.Equal(t, 2, tk.ErrorCount)
	assert.Equal(t, c.Now().Add(10*time.Second), tk.NextDue)

	// Backoff caps at max_retries=3: a 4th consecutive failure still uses
	// retry_delay*3, not retry_delay*4.
	c.Set(tk.NextDue)
	s.Tick(context.Background(), c.Now())
	c.Set(s.mustTask(t, "flaky").NextDue)
	s.Tick(context.Background(), c.Now())
	tk, _ = s.Task("flaky")
	assert.Equal(t, 4, tk.ErrorCount)
	assert.Equal(t, c.Now().Add(15*time.Second), tk.NextDue)
	assert.Equal(t, 4, attempts)
}

func (s *Scheduler) mustTask(t *testing.T, name string) domain.ScheduledTask {
	t.Helper()
	tk, ok := s.Task(name)
	require.True(t, ok)
	return tk
}

func TestExecute_SuccessResetsErrorCount(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	s := New(c, time.Second)

	fail := true
	s.Register(task("recovering", domain.PriorityNormal, 10*time.Second), func(ctx context.Context) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	})

	c.Advance(11 * time.Second)
	s.Tick(context.Background(), c.Now())
	tk, _ := s.Task("recovering")
	assert.Equal(t, 1, tk.ErrorCount)

	fail = false
	c.Set(tk.NextDue)
	s.Tick(context.Background(), c.Now())
	tk, _ = s.Task("recovering")
	assert.Equal(t, 0, tk.ErrorCount)
	assert.Equal(t, "", tk.LastError)
	assert.Equal(t, c.Now().Add(10*time.Second), tk.NextDue)
}

func TestDisable_SkipsTaskUntilReenabled(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	s := New(c, time.Second)

	ran := 0
	s.Register(task("toggle", domain.PriorityNormal, 10*time.Second), func(ctx context.Context) error {
		ran++
		return nil
	})
	s.Disable("toggle")

	c.Advance(11 * time.Second)
	s.Tick(context.Background(), c.Now())
	assert.Equal(t, 0, ran)

	s.Enable("toggle")
	s.Tick(context.Background(), c.Now())
	assert.Equal(t, 1, ran)
}

func TestPause_SuppressesAllTicks(t *testing.T) {
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFake(at)
	s := New(c, time.Second)

	ran := 0
	s.Register(task("paused-task", domain.PriorityCritical, time.Second), func(ctx context.Context) error {
		ran++
		return nil
	})
	s.Pause()

	c.Advance(2 * time.Second)
	results := s.Tick(context.Background(), c.Now())
	assert.Nil(t, results)
	assert.Equal(t, 0, ran)
	assert.True(t, s.IsPaused())

	s.Resume()
	s.Tick(context.Background(), c.Now())
	assert.Equal(t, 1, ran)
}

func TestDefaultTasks_MatchesDefaultTable(t *testing.T) {
	tasks := DefaultTasks()
	require.Len(t, tasks, 8)

	byName := make(map[string]domain.ScheduledTask, len(tasks))
	for _, tk := range tasks {
		byName[tk.Name] = tk
	}

	assert.Equal(t, 10*time.Second, byName["risk_check"].Interval)
	assert.Equal(t, domain.PriorityCritical, byName["risk_check"].Priority)
	assert.Equal(t, 300*time.Second, byName["market_scan"].Interval)
	assert.Equal(t, 900*time.Second, byName["forecast_update"].Interval)
	assert.Equal(t, 5*time.Second, byName["status_broadcast"].Interval)
	assert.Equal(t, domain.PriorityLow, byName["status_broadcast"].Priority)
}
