// Package pipeline runs a DAG of stages with bounded concurrency, one shared
// retry policy and per-stage failure containment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/packet-underwriter/constants"
	"github.com/joseph-ayodele/packet-underwriter/internal/common"
	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

const DefaultMaxConcurrency = 4

type Config struct {
	MaxConcurrency int
}

type Runner struct {
	cfg         Config
	retry       *RetryPolicy
	middlewares []Middleware
	logger      *slog.Logger
}

// Result is the fan-in of one run. Stages follow declaration order.
type Result struct {
	Status  constants.RunStatus
	Stages  []entity.StageReport
	Outputs Inputs
}

// Report returns the report of one stage.
func (r Result) Report(id string) (entity.StageReport, bool) {
	for _, s := range r.Stages {
		if s.ID == id {
			return s, true
		}
	}
	return entity.StageReport{}, false
}

func NewRunner(cfg Config, retry *RetryPolicy, logger *slog.Logger, mws ...Middleware) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if retry == nil {
		retry = DefaultRetryPolicy(logger)
	}
	return &Runner{cfg: cfg, retry: retry, middlewares: mws, logger: logger}
}

type slot struct {
	report entity.StageReport
	value  any
	has    bool
}

// Run executes stages once each. A stage starts when all its dependencies are
// terminal. The only returned error is a configuration error in the DAG.
func (r *Runner) Run(ctx context.Context, stages []Stage) (Result, error) {
	if err := Validate(stages); err != nil {
		return Result{}, err
	}

	index := make(map[string]int, len(stages))
	slots := make([]slot, len(stages))
	for i, s := range stages {
		index[s.ID] = i
		slots[i].report = entity.StageReport{ID: s.ID, Status: constants.StageNotStarted, Required: s.Required}
	}

	done := make(chan int, len(stages))
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.MaxConcurrency)

	// state is owned by this loop; a slot is read only after its done signal
	state := make([]constants.StageStatus, len(stages))
	for i := range state {
		state[i] = constants.StageNotStarted
	}
	terminal := 0
	for terminal < len(stages) {
		for i, s := range stages {
			if state[i] != constants.StageNotStarted || !ready(s, state, index) {
				continue
			}
			if ctx.Err() != nil {
				slots[i].report.Status = constants.StageCancelled
				slots[i].report.Err = ctx.Err().Error()
				state[i] = constants.StageCancelled
				terminal++
				continue
			}
			state[i] = constants.StageRunning
			in := inputs(s, slots, index)
			i, s := i, s
			g.Go(func() error {
				r.execute(ctx, s, in, &slots[i])
				done <- i
				return nil
			})
		}
		if terminal == len(stages) {
			break
		}
		i := <-done
		state[i] = slots[i].report.Status
		terminal++
	}
	_ = g.Wait()

	res := Result{Status: overall(slots), Outputs: Inputs{}}
	for i, s := range stages {
		res.Stages = append(res.Stages, slots[i].report)
		if slots[i].has {
			res.Outputs[s.ID] = slots[i].value
		}
	}
	r.logger.Info("pipeline.run.done",
		"run_id", common.RequestIDFromContext(ctx),
		"status", res.Status,
		"stages", len(stages),
	)
	return res, nil
}

func ready(s Stage, state []constants.StageStatus, index map[string]int) bool {
	for _, dep := range s.DependsOn {
		if !state[index[dep]].Terminal() {
			return false
		}
	}
	return true
}

func inputs(s Stage, slots []slot, index map[string]int) Inputs {
	in := make(Inputs, len(s.DependsOn))
	for _, dep := range s.DependsOn {
		if sl := slots[index[dep]]; sl.has {
			in[dep] = sl.value
		}
	}
	return in
}

// execute runs one stage on a context detached from cancellation. Results of a
// stage that finishes after cancellation was requested are discarded.
func (r *Runner) execute(parent context.Context, s Stage, in Inputs, sl *slot) {
	start := time.Now()
	ctx := withStageID(context.WithoutCancel(parent), s.ID)
	fn := Chain(s.Execute, r.middlewares...)

	var out Outcome
	stats, err := r.retry.DoAttempts(withStageID(parent, s.ID), func(n int, last bool) error {
		var aerr error
		out, aerr = safeCall(withAttempt(ctx, n, last), fn, in)
		return aerr
	})

	rep := &sl.report
	rep.Attempts = stats.Attempts
	rep.Retries = stats.Retries()
	rep.Waits = stats.Waits
	rep.Notes = out.Notes
	rep.Duration = time.Since(start)

	switch {
	case parent.Err() != nil:
		rep.Status = constants.StageCancelled
		rep.Err = parent.Err().Error()
		return
	case errors.Is(err, ErrSkip):
		rep.Status = constants.StageSkipped
		return
	case err != nil && s.Required:
		rep.Status = constants.StageFailed
		rep.Err = err.Error()
		return
	case err != nil:
		rep.Status = constants.StageDegraded
		rep.Err = err.Error()
		return
	case out.Partial:
		rep.Status = constants.StageDegraded
	default:
		rep.Status = constants.StageCompleted
	}
	sl.value, sl.has = out.Value, true
}

func safeCall(ctx context.Context, fn StageFunc, in Inputs) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stage panic: %v", p)
		}
	}()
	return fn(ctx, in)
}

func overall(slots []slot) constants.RunStatus {
	status := constants.RunCompleted
	for _, sl := range slots {
		switch sl.report.Status {
		case constants.StageFailed:
			return constants.RunFailed
		case constants.StageCancelled:
			status = constants.RunCancelled
		case constants.StageDegraded:
			if status == constants.RunCompleted {
				status = constants.RunDegraded
			}
		}
	}
	return status
}

// Validate rejects empty or duplicate IDs, missing Execute, unknown dependencies and cycles.
func Validate(stages []Stage) error {
	index := make(map[string]int, len(stages))
	for i, s := range stages {
		if s.ID == "" {
			return common.ConfigError(fmt.Sprintf("stage %d has no id", i))
		}
		if s.Execute == nil {
			return common.ConfigError(fmt.Sprintf("stage %q has no execute function", s.ID))
		}
		if _, dup := index[s.ID]; dup {
			return common.ConfigError(fmt.Sprintf("duplicate stage %q", s.ID))
		}
		index[s.ID] = i
	}

	indegree := make([]int, len(stages))
	dependents := make([][]int, len(stages))
	for i, s := range stages {
		for _, dep := range s.DependsOn {
			j, ok := index[dep]
			if !ok {
				return common.ConfigError(fmt.Sprintf("stage %q depends on unknown stage %q", s.ID, dep))
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}
	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}
	seen := 0
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		seen++
		for _, k := range dependents[i] {
			indegree[k]--
			if indegree[k] == 0 {
				queue = append(queue, k)
			}
		}
	}
	if seen != len(stages) {
		return common.ConfigError("stage graph has a cycle")
	}
	return nil
}
