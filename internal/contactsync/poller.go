package contactsync

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Result int

const (
	// Completed means the count reached the target
	Completed Result = iota + 1
	// Stalled means the count stopped moving for MaxStalls polls
	Stalled
)

func (r Result) String() string {
	switch r {
	case Completed:
		return "completed"
	case Stalled:
		return "stalled"
	}
	return "unknown"
}

// StatusFunc reports the current processed count
type StatusFunc func(ctx context.Context) (int, error)

// ProgressFunc is called after every successful poll
type ProgressFunc func(count, target int)

// Poller calls a status function on a fixed delay until a target count is
// reached or the count stops changing. There is no backoff.
type Poller struct {
	Interval  time.Duration
	MaxStalls int
}

// Run polls status until one of: the count reaches target (Completed), the
// count is unchanged for MaxStalls consecutive polls (Stalled), ctx is done,
// or status fails. The last two return an error.
func (p Poller) Run(ctx context.Context, target int, status StatusFunc, onProgress ProgressFunc) (Result, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	maxStalls := p.MaxStalls
	if maxStalls <= 0 {
		maxStalls = 5
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	last, stalls := -1, 0
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
		}

		count, err := status(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "poll status")
		}
		if onProgress != nil {
			onProgress(count, target)
		}
		if count >= target {
			return Completed, nil
		}

		if count == last {
			stalls++
			if stalls >= maxStalls {
				return Stalled, nil
			}
		} else {
			last, stalls = count, 0
		}
		timer.Reset(interval)
	}
}
