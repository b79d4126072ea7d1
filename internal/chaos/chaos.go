// internal/chaos/chaos.go

// Package chaos runs concurrency experiments against a live API and checks
// that the circulation invariants survive them.
package chaos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Experiment defines one chaos test.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Metric
	Method      []Action
	// Observe lists metrics sampled only after the method ran, alongside
	// the steady state.
	Observe    []Metric
	Validation []Assertion
	// Duration is how long metrics keep being sampled after the method ran.
	// Zero samples once.
	Duration time.Duration
}

// Metric is a measurable system property.
type Metric struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

// Action is one step of fault injection.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the final observation of a metric.
type Assertion struct {
	Metric    string
	Condition func(float64) bool
	Message   string
}

// Result captures one experiment run.
type Result struct {
	ExperimentName   string                 `json:"experiment_name"`
	StartTime        time.Time              `json:"start_time"`
	EndTime          time.Time              `json:"end_time"`
	Duration         time.Duration          `json:"duration"`
	HypothesisHeld   bool                   `json:"hypothesis_held"`
	SteadyStateValid bool                   `json:"steady_state_valid"`
	Violations       []MetricViolation      `json:"violations"`
	Failures         []string               `json:"failures"`
	Observations     map[string][]DataPoint `json:"observations"`
	ErrorEvents      []ErrorEvent           `json:"error_events"`
}

type MetricViolation struct {
	MetricName string    `json:"metric_name"`
	Expected   float64   `json:"expected"`
	Actual     float64   `json:"actual"`
	Timestamp  time.Time `json:"timestamp"`
}

type DataPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// ErrSteadyStateInvalid aborts an experiment before any fault is injected.
var ErrSteadyStateInvalid = errors.New("steady state invalid, aborting experiment")

// Engine runs experiments and keeps their results.
type Engine struct {
	tracer      trace.Tracer
	out         io.Writer
	interval    time.Duration
	experiments []Experiment
	results     []Result
	mu          sync.Mutex
}

// NewEngine returns an engine that prints progress to out.
func NewEngine(out io.Writer) *Engine {
	return &Engine{
		tracer:   otel.Tracer("librarian/chaos"),
		out:      out,
		interval: time.Second,
	}
}

func (e *Engine) RegisterExperiment(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Experiment(nil), e.experiments...)
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Result(nil), e.results...)
}

// RunExperiment validates the steady state, runs the method, samples the
// steady-state metrics and evaluates the assertions against the last sample.
func (e *Engine) RunExperiment(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		ExperimentName: exp.Name,
		StartTime:      time.Now(),
		Observations:   make(map[string][]DataPoint),
	}

	span.AddEvent("validating_steady_state")
	if valid, violations := e.validateSteadyState(ctx, exp.SteadyState); !valid {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	observed := append(append([]Metric(nil), exp.SteadyState...), exp.Observe...)
	e.sample(ctx, observed, result)
	if exp.Duration > 0 {
		observeCtx, cancel := context.WithTimeout(ctx, exp.Duration)
		defer cancel()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
	observe:
		for {
			select {
			case <-observeCtx.Done():
				break observe
			case <-ticker.C:
				e.sample(ctx, observed, result)
			}
		}
	}

	span.AddEvent("validating_assertions")
	result.Failures = e.validateAssertions(exp.Validation, result)
	result.HypothesisHeld = len(result.Failures) == 0 && len(result.ErrorEvents) == 0
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

func (e *Engine) sample(ctx context.Context, metrics []Metric, result *Result) {
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: metric.Name,
			})
			continue
		}
		result.Observations[metric.Name] = append(result.Observations[metric.Name],
			DataPoint{Timestamp: time.Now(), Value: value})

		if metric.Threshold.Operator != "" && !evaluateThreshold(value, metric.Threshold) {
			result.Violations = append(result.Violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
}

func (e *Engine) validateSteadyState(ctx context.Context, metrics []Metric) (bool, []MetricViolation) {
	var violations []MetricViolation
	for _, metric := range metrics {
		value, err := metric.Query(ctx)
		if err != nil {
			value = -1
		}
		if err != nil || !evaluateThreshold(value, metric.Threshold) {
			violations = append(violations, MetricViolation{
				MetricName: metric.Name,
				Expected:   metric.Threshold.Value,
				Actual:     value,
				Timestamp:  time.Now(),
			})
		}
	}
	return len(violations) == 0, violations
}

func evaluateThreshold(value float64, threshold Threshold) bool {
	switch threshold.Operator {
	case ">":
		return value > threshold.Value
	case "<":
		return value < threshold.Value
	case ">=":
		return value >= threshold.Value
	case "<=":
		return value <= threshold.Value
	case "==":
		return value == threshold.Value
	default:
		return false
	}
}

// validateAssertions returns the message of every assertion that failed.
func (e *Engine) validateAssertions(assertions []Assertion, result *Result) []string {
	var failures []string
	for _, a := range assertions {
		observations := result.Observations[a.Metric]
		if len(observations) == 0 {
			failures = append(failures, fmt.Sprintf("%s: no observations", a.Message))
			continue
		}
		final := observations[len(observations)-1].Value
		if !a.Condition(final) {
			failures = append(failures, fmt.Sprintf("%s: observed %g", a.Message, final))
		}
	}
	return failures
}

// GameDay is a named series of experiments.
type GameDay struct {
	Name      string
	Date      time.Time
	Scenarios []Experiment
	// Pause separates consecutive experiments.
	Pause time.Duration
}

// ExecuteGameDay runs every scenario and reports whether all hypotheses held.
func (e *Engine) ExecuteGameDay(ctx context.Context, gameDay GameDay) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", gameDay.Name)),
	)
	defer span.End()

	fmt.Fprintf(e.out, "Starting game day: %s\n", gameDay.Name)
	fmt.Fprintf(e.out, "Date: %s\n", gameDay.Date.Format(time.RFC1123))

	allHeld := true
	for i, scenario := range gameDay.Scenarios {
		if i > 0 && gameDay.Pause > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(gameDay.Pause):
			}
		}

		fmt.Fprintf(e.out, "\nExperiment %d/%d: %s\n", i+1, len(gameDay.Scenarios), scenario.Name)
		fmt.Fprintf(e.out, "Hypothesis: %s\n", scenario.Hypothesis)

		result, err := e.RunExperiment(ctx, scenario)
		if err != nil {
			fmt.Fprintf(e.out, "Experiment aborted: %v\n", err)
			allHeld = false
			continue
		}
		e.printResult(result)
		allHeld = allHeld && result.HypothesisHeld
	}
	return allHeld, nil
}

func (e *Engine) printResult(result *Result) {
	if result.HypothesisHeld {
		fmt.Fprintln(e.out, "PASS: hypothesis held")
	} else {
		fmt.Fprintln(e.out, "FAIL: hypothesis violated")
	}
	for _, f := range result.Failures {
		fmt.Fprintf(e.out, "   - %s\n", f)
	}
	for _, ev := range result.ErrorEvents {
		fmt.Fprintf(e.out, "   - error in %s: %s\n", ev.Component, ev.Error)
	}
	if len(result.Violations) > 0 {
		fmt.Fprintf(e.out, "Violations detected: %d\n", len(result.Violations))
		for _, v := range result.Violations {
			fmt.Fprintf(e.out, "   - %s: expected %.2f, got %.2f\n", v.MetricName, v.Expected, v.Actual)
		}
	}
	fmt.Fprintf(e.out, "Duration: %s\n", result.Duration.Round(time.Millisecond))
}
