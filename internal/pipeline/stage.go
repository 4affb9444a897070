package pipeline

import (
	"context"
	"errors"
)

// ErrSkip is returned by a stage that has nothing to do; the stage ends skipped.
var ErrSkip = errors.New("stage skipped")

// Inputs holds the outputs of a stage's dependencies, keyed by stage ID.
// A dependency that degraded without output, failed or was cancelled is absent.
type Inputs map[string]any

// Input reads a typed dependency output.
func Input[T any](in Inputs, id string) (T, bool) {
	v, ok := in[id].(T)
	return v, ok
}

// Outcome is what a stage produces. Partial keeps Value but marks the stage degraded.
type Outcome struct {
	Value   any
	Partial bool
	Notes   []string
}

type StageFunc func(ctx context.Context, in Inputs) (Outcome, error)

// Stage is one node of the evaluation DAG.
type Stage struct {
	ID        string
	DependsOn []string
	// Required stages fail the whole run when they error.
	Required bool
	Execute  StageFunc
}

type stageKey struct{}

func withStageID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, stageKey{}, id)
}

// StageIDFromContext returns the ID of the stage being executed, if any.
func StageIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(stageKey{}).(string)
	return id
}

type attempt struct {
	n    int
	last bool
}

type attemptKey struct{}

func withAttempt(ctx context.Context, n int, last bool) context.Context {
	return context.WithValue(ctx, attemptKey{}, attempt{n: n, last: last})
}

// AttemptFromContext returns the 1-based attempt number of the running stage.
// Outside a runner it reports 1.
func AttemptFromContext(ctx context.Context) int {
	if a, ok := ctx.Value(attemptKey{}).(attempt); ok {
		return a.n
	}
	return 1
}

// FinalAttempt reports whether a rate-limit error returned now would end the
// stage instead of being retried. Outside a runner every call is final.
func FinalAttempt(ctx context.Context) bool {
	if a, ok := ctx.Value(attemptKey{}).(attempt); ok {
		return a.last
	}
	return true
}
