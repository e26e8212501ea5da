package remote

import (
	"context"
	"fmt"
	"time"

	"flambient/internal/services"
)

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultPollMaxAttempts = 240
)

// CheckFunc performs one status observation.
type CheckFunc func(ctx context.Context) (Progress, error)

// ProgressFunc receives progress observations.
type ProgressFunc func(Progress)

// Poller repeatedly checks remote status until the work completes, fails, or
// the attempt budget runs out.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	// Sleep waits between checks; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller returns a poller with defaults applied for non-positive values.
func NewPoller(interval time.Duration, maxAttempts int) Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	return Poller{Interval: interval, MaxAttempts: maxAttempts}
}

// Wait polls check until it reports completion. report is called only when
// the percentage strictly increases. A failed status is fatal and running out
// of attempts yields ErrTimeout.
func (p Poller) Wait(ctx context.Context, check CheckFunc, report ProgressFunc) (Progress, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultPollMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	last := -1.0
	var progress Progress
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return progress, services.Wrap(services.ErrCancelled, "remote", "poll", "polling cancelled", err)
		}
		var err error
		progress, err = check(ctx)
		if err != nil {
			return progress, err
		}
		if progress.Percent > last {
			last = progress.Percent
			if report != nil {
				report(progress)
			}
		}
		switch progress.Status {
		case StatusCompleted:
			return progress, nil
		case StatusFailed:
			message := progress.Message
			if message == "" {
				message = "remote processing failed"
			}
			return progress, services.Wrap(services.ErrRemote, "remote", "poll", message, nil)
		}
		if attempt == attempts {
			break
		}
		if err := sleep(ctx, interval); err != nil {
			return progress, services.Wrap(services.ErrCancelled, "remote", "poll", "polling cancelled", err)
		}
	}
	return progress, services.Wrap(services.ErrTimeout, "remote", "poll",
		fmt.Sprintf("still %s after %d checks (%.0f%%)", progress.Status, attempts, progress.Percent), nil)
}
