package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pulse/internal/engine"
	"github.com/roach88/pulse/internal/loop"
	"github.com/roach88/pulse/internal/testutil"
	"github.com/roach88/pulse/internal/trace"
)

// Run executes a scenario and evaluates its assertions.
//
// Execution flow:
//  1. Create a loop, a recorder and an emitter with deterministic tokens
//  2. Register the scenario listeners
//  3. Start the chain and run the loop until the end event or the timeout
//  4. Evaluate assertions against the recorded trace
//
// An error is returned only when the scenario itself is unusable; failing
// assertions are reported in the Result.
func Run(sc *Scenario) (*Result, error) {
	return RunWithObserver(sc, nil)
}

// RunWithObserver is Run with an extra observer attached to the emitter,
// such as an engine.LoggingObserver.
func RunWithObserver(sc *Scenario, extra engine.Observer) (*Result, error) {
	timeout, err := sc.timeout()
	if err != nil {
		return nil, err
	}

	checks := &invariants{}
	rec := trace.NewRecorder(testutil.NewDeterministicClock())
	l := loop.New()

	opts := []engine.Option{
		engine.WithTokenGenerator(testutil.NewSequentialTokens(sc.tokenPrefix())),
		engine.WithObserver(checks),
		engine.WithObserver(rec),
	}
	if sc.Config != nil {
		opts = append(opts, engine.WithConfig(*sc.Config))
	}
	if extra != nil {
		opts = append(opts, engine.WithObserver(extra))
	}
	e := engine.New(l, opts...)

	for _, ls := range sc.Listeners {
		s, err := newScripted(ls, checks)
		if err != nil {
			return nil, err
		}
		e.At(ls.Event, s.listen)
	}

	// The queue closes once the end event is out; Run drains what is left
	// and returns.
	e.On(e.Config().EndEvent, func(...any) error {
		l.Stop()
		return nil
	})

	result := NewResult(sc.Name)

	a, startErr := e.To(sc.Chain, sc.Args...)
	if startErr != nil {
		result.StartError = startErr.Error()
		slog.Debug("scenario chain failed to start", "scenario", sc.Name, "error", startErr)
		l.Stop()
	}
	if a != nil {
		result.Token = a.Token
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	runErr := l.Run(ctx)
	l.Stop()

	timedOut := errors.Is(runErr, context.DeadlineExceeded)
	if runErr != nil && !timedOut {
		return nil, fmt.Errorf("run loop: %w", runErr)
	}

	result.Trace = rec.Events()
	result.Ended = a != nil && a.Ended()

	if timedOut && !expects(sc, AssertStalled) {
		result.AddError(fmt.Sprintf("chain did not end within %s", timeout))
	}
	if result.StartError != "" && !expects(sc, AssertStartError) {
		result.AddError("chain failed to start: " + result.StartError)
	}
	for _, v := range checks.results() {
		result.AddError(v)
	}
	for _, msg := range EvaluateAssertions(result, sc.Assertions, e.Config()) {
		result.AddError(msg)
	}

	return result, nil
}

func expects(sc *Scenario, kind string) bool {
	for _, a := range sc.Assertions {
		if a.Type == kind {
			return true
		}
	}
	return false
}
