package common

import (
	"context"
	"fmt"
	"time"
)

// ErrPollBudgetExhausted reports that the condition never became true within
// the attempt budget.
var ErrPollBudgetExhausted = fmt.Errorf("%w: poll budget exhausted", ErrInternal)

// Poller retries a condition a bounded number of times. Sleep is injectable
// so tests can run the schedule without waiting on wall clocks.
type Poller struct {
	Attempts int
	Interval time.Duration
	Sleep    func(ctx context.Context, d time.Duration) error
}

func NewPoller(attempts int, interval time.Duration) Poller {
	return Poller{Attempts: attempts, Interval: interval, Sleep: SleepContext}
}

// Wait calls fn until it reports done, the attempt budget runs out, or the
// context ends. Errors from fn stop the poll immediately.
func (p Poller) Wait(ctx context.Context, fn func(ctx context.Context) (done bool, err error)) error {
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 1; ; attempt++ {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= p.Attempts {
			return ErrPollBudgetExhausted
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
}

// SleepContext pauses for d unless ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
