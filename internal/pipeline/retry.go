package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// RetryPolicy is shared by every stage of a run. Only rate-limit errors are retried.
type RetryPolicy struct {
	MaxRetries  int
	DefaultWait time.Duration
	// MaxWait caps a provider-suggested wait; zero means no cap.
	MaxWait time.Duration
	// Sleep is replaced in tests.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// RetryStats records what a Do call spent.
type RetryStats struct {
	Attempts int
	Waits    []time.Duration
}

// Retries is the number of attempts after the first.
func (s RetryStats) Retries() int {
	if s.Attempts == 0 {
		return 0
	}
	return s.Attempts - 1
}

const (
	DefaultMaxRetries = 3
	DefaultRetryWait  = 20 * time.Second
)

// DefaultRetryPolicy retries three times, waiting 20s when the provider names no wait.
func DefaultRetryPolicy(logger *slog.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:  DefaultMaxRetries,
		DefaultWait: DefaultRetryWait,
		MaxWait:     2 * time.Minute,
		Logger:      logger,
	}
}

// Do runs attempt until it succeeds, returns a non-rate-limit error, or the retry
// budget is spent. Waits observe ctx; the attempt itself receives no context here.
func (p *RetryPolicy) Do(ctx context.Context, attempt func() error) (RetryStats, error) {
	return p.DoAttempts(ctx, func(int, bool) error { return attempt() })
}

// DoAttempts is Do with the 1-based attempt number passed to each call. last is
// true when a rate-limit error from that call will not be retried.
func (p *RetryPolicy) DoAttempts(ctx context.Context, attempt func(n int, last bool) error) (RetryStats, error) {
	var stats RetryStats
	logger := p.logger()
	for {
		stats.Attempts++
		err := attempt(stats.Attempts, stats.Attempts > p.MaxRetries)
		if err == nil || !common.IsRateLimited(err) || stats.Attempts > p.MaxRetries {
			return stats, err
		}

		wait := p.DefaultWait
		if d, ok := common.RetryAfterOf(err); ok {
			wait = d
		}
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
		logger.Warn("pipeline.stage.retry",
			"stage", StageIDFromContext(ctx),
			"run_id", common.RequestIDFromContext(ctx),
			"attempt", stats.Attempts,
			"wait", wait.String(),
			"err", err,
		)
		stats.Waits = append(stats.Waits, wait)
		if serr := p.sleep(ctx, wait); serr != nil {
			return stats, err
		}
	}
}

func (p *RetryPolicy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *RetryPolicy) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}
