package simulation

import (
	"context"
	"errors"
	"time"
)

// StepFunc advances the simulation by one iteration.
type StepFunc func(ctx context.Context) error

// ErrorHandler decides whether a failed step stops the loop. Returning nil
// keeps the loop running.
type ErrorHandler func(err error) error

// Loop drives iterations at a fixed target frequency. Missed ticks are
// coalesced rather than replayed so a slow step never snowballs into a burst.
type Loop struct {
	interval time.Duration
	stepFunc StepFunc
	onError  ErrorHandler
	monitor  *TickMonitor
}

// Option customises a Loop.
type Option func(*Loop)

// WithMonitor records every step duration in monitor.
func WithMonitor(monitor *TickMonitor) Option {
	return func(l *Loop) { l.monitor = monitor }
}

// WithErrorHandler installs the policy applied to failed steps.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(l *Loop) { l.onError = handler }
}

// NewLoop configures a loop that targets the provided iterations per second.
func NewLoop(targetHz float64, step StepFunc, opts ...Option) *Loop {
	if targetHz <= 0 {
		targetHz = 30
	}
	if step == nil {
		step = func(context.Context) error { return nil }
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 30
	}
	loop := &Loop{
		interval: interval,
		stepFunc: step,
		onError:  func(err error) error { return err },
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop
}

// Run ticks until ctx is cancelled or a step error is escalated by the error
// handler. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			//1.- Time the step so the monitor can report overruns.
			started := time.Now()
			err := l.stepFunc(ctx)
			l.monitor.Observe(time.Since(started))
			if err == nil {
				continue
			}
			//2.- Cancellation mid-step is a clean shutdown, not a failure.
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			//3.- Let the error policy decide whether the failure ends the loop.
			l.monitor.ObserveError()

			if escalated := l.onError(err); escalated != nil {
				return escalated
			}
		}
	}
}

// Interval exposes the configured tick period.
func (l *Loop) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}
