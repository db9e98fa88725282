// Package saga runs an ordered list of side-effecting steps and undoes the
// completed ones, newest first, when a fatal step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Policy decides what a step failure means for the rest of the run.
type Policy int

const (
	// Fatal stops the run and compensates every completed step.
	Fatal Policy = iota
	// Tolerated logs the failure and moves on to the next step.
	Tolerated
)

func (p Policy) String() string {
	if p == Tolerated {
		return "tolerated"
	}
	return "fatal"
}

// Step is one action and the action that undoes it. Compensate may be nil.
type Step struct {
	Name       string
	Policy     Policy
	Action     func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepError is returned when a fatal step fails. Err is the step's own error so
// errors.Is/As see through to domain sentinels.
type StepError struct {
	Step          string
	Err           error
	Compensated   []string
	Uncompensated map[string]error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("saga step %q failed: %v", e.Step, e.Err)
	if len(e.Uncompensated) > 0 {
		msg += fmt.Sprintf(" (%d compensation(s) failed)", len(e.Uncompensated))
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// CompensationFailed reports whether any rollback action failed, leaving state behind.
func (e *StepError) CompensationFailed() bool { return len(e.Uncompensated) > 0 }

// Hooks lets callers observe a run, e.g. to record metrics.
type Hooks struct {
	OnStepFailed         func(step string, policy Policy, err error)
	OnCompensated        func(step string)
	OnCompensationFailed func(step string, err error)
}

// Saga is a named, ordered set of steps.
type Saga struct {
	name                string
	logger              *slog.Logger
	steps               []Step
	hooks               Hooks
	compensationTimeout time.Duration
}

// New builds a saga. Steps run in the order given.
func New(name string, logger *slog.Logger, steps ...Step) *Saga {
	if logger == nil {
		logger = slog.Default()
	}
	return &Saga{
		name:                name,
		logger:              logger,
		steps:               steps,
		compensationTimeout: 10 * time.Second,
	}
}

// WithHooks returns the saga with observation hooks installed.
func (s *Saga) WithHooks(h Hooks) *Saga {
	s.hooks = h
	return s
}

// Run executes the steps sequentially. Compensations run on a context detached
// from ctx's cancellation, so a request timeout does not also abort the rollback.
func (s *Saga) Run(ctx context.Context) error {
	done := make([]Step, 0, len(s.steps))
	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, done, step.Name, err)
		}
		err := step.Action(ctx)
		if err == nil {
			done = append(done, step)
			continue
		}
		if s.hooks.OnStepFailed != nil {
			s.hooks.OnStepFailed(step.Name, step.Policy, err)
		}
		if step.Policy == Tolerated {
			s.logger.Warn("saga step failed, continuing", "saga", s.name, "step", step.Name, "error", err)
			continue
		}
		s.logger.Error("saga step failed, compensating", "saga", s.name, "step", step.Name, "error", err)
		return s.fail(ctx, done, step.Name, err)
	}
	return nil
}

func (s *Saga) fail(ctx context.Context, done []Step, failed string, cause error) error {
	serr := &StepError{Step: failed, Err: cause}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensationTimeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		step := done[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(cctx); err != nil {
			if serr.Uncompensated == nil {
				serr.Uncompensated = make(map[string]error)
			}
			serr.Uncompensated[step.Name] = err
			s.logger.Error("saga compensation failed", "saga", s.name, "step", step.Name, "error", err)
			if s.hooks.OnCompensationFailed != nil {
				s.hooks.OnCompensationFailed(step.Name, err)
			}
			continue
		}
		serr.Compensated = append(serr.Compensated, step.Name)
		if s.hooks.OnCompensated != nil {
			s.hooks.OnCompensated(step.Name)
		}
	}
	return serr
}

// AsStepError is a convenience wrapper around errors.As.
func AsStepError(err error) (*StepError, bool) {
	var serr *StepError
	ok := errors.As(err, &serr)
	return serr, ok
}
