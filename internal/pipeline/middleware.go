package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/packet-underwriter/internal/common"
)

// Middleware wraps a stage's Execute. The runner applies middlewares to every stage.
type Middleware func(StageFunc) StageFunc

// Logging logs the start and end of every attempt of a stage.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next StageFunc) StageFunc {
		return func(ctx context.Context, in Inputs) (Outcome, error) {
			id := StageIDFromContext(ctx)
			runID := common.RequestIDFromContext(ctx)
			start := time.Now()
			logger.Debug("pipeline.stage.start", "stage", id, "run_id", runID, "case_id", common.CaseIDFromContext(ctx), "attempt", AttemptFromContext(ctx), "inputs", len(in))

			out, err := next(ctx, in)
			elapsed := time.Since(start).Milliseconds()
			switch {
			case errors.Is(err, ErrSkip):
				logger.Info("pipeline.stage.skipped", "stage", id, "run_id", runID)
			case err != nil:
				logger.Warn("pipeline.stage.error", "stage", id, "run_id", runID, "elapsed_ms", elapsed, "err", err)
			default:
				logger.Info("pipeline.stage.ok",
					"stage", id,
					"run_id", runID,
					"elapsed_ms", elapsed,
					"partial", out.Partial,
					"notes", len(out.Notes),
				)
			}
			return out, err
		}
	}
}

// Chain applies middlewares so the first one is outermost.
func Chain(fn StageFunc, mws ...Middleware) StageFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		fn = mws[i](fn)
	}
	return fn
}
