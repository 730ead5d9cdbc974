package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"
)

// --- goal types shared by the solvers ---

// GoalStatus is the terminal outcome of a solve loop.
type GoalStatus string

const (
	GoalCompleted GoalStatus = "completed"
	GoalFailed    GoalStatus = "failed"
)

// Step is one thought/action/observation triple in a solve history. The
// simple solver fills only Thought; the ReAct solver fills all three on
// acting iterations.
type Step struct {
	Thought     string `json:"thought,omitempty"`
	Action      string `json:"action,omitempty"`
	Observation string `json:"observation,omitempty"`
}

// Solution is the result of a solve loop: terminal status, a final
// summary, the per-iteration history, and the iteration count at exit.
type Solution struct {
	Status     GoalStatus `json:"status"`
	Summary    string     `json:"summary"`
	Reason     string     `json:"reason,omitempty"` // failure reason, empty on success
	History    []Step     `json:"history"`
	Iterations int        `json:"iterations"`
}

// GoalSolver drives a goal to a terminal Solution. Solver and ReActSolver
// both satisfy it; SolverSubscriber wraps either for event-driven use.
type GoalSolver interface {
	Solve(ctx context.Context, query string) (Solution, error)
}

// --- simple solver ---

// Word-boundary terminators, so "failed", "undone", or "abandoned" in
// prose do not end the loop.
var (
	doneRe = regexp.MustCompile(`(?i)\bdone\b`)
	failRe = regexp.MustCompile(`(?i)\bfail\b`)
)

const defaultSolverIterations = 5

const solverSystemPrompt = `You are an autonomous problem solver. Work on the user's goal step by step, using the available tools when they help. When the goal is fully achieved, reply with the single word DONE. If the goal cannot be achieved, reply with the single word FAIL.`

const solverSummaryPrompt = `Summarize in one short paragraph what was attempted toward the goal and what the outcome was.`

// SolverOption configures a Solver.
type SolverOption func(*Solver)

// WithSolverIterations sets the iteration cap (default 5).
func WithSolverIterations(n int) SolverOption {
	return func(s *Solver) { s.maxIterations = n }
}

// WithSolverSystemPrompt overrides the default system prompt.
func WithSolverSystemPrompt(prompt string) SolverOption {
	return func(s *Solver) { s.systemPrompt = prompt }
}

// WithSolverLogger sets a structured logger. If not set, no output.
func WithSolverLogger(l *slog.Logger) SolverOption {
	return func(s *Solver) { s.logger = l }
}

// WithSolverTracer sets the tracer (default NopTracer).
func WithSolverTracer(t Tracer) SolverOption {
	return func(s *Solver) { s.tracer = t }
}

// Solver is the simple iterative loop: each round asks the broker for the
// next step and scans the reply for standalone DONE or FAIL tokens.
// Whatever the outcome, a final summary prompt is always issued after the
// loop exits.
type Solver struct {
	broker        *Broker
	tools         []Tool
	maxIterations int
	systemPrompt  string
	logger        *slog.Logger
	tracer        Tracer
}

// NewSolver creates a solver over broker with the given tools.
func NewSolver(broker *Broker, tools []Tool, opts ...SolverOption) *Solver {
	s := &Solver{
		broker:        broker,
		tools:         tools,
		maxIterations: defaultSolverIterations,
		systemPrompt:  solverSystemPrompt,
		logger:        nopLogger,
		tracer:        NopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Solve iterates until the broker's reply contains DONE (completed), FAIL
// (failed), or the iteration cap is reached (failed). LLM errors end the
// loop as a failed Solution with the error returned alongside it.
func (s *Solver) Solve(ctx context.Context, query string) (Solution, error) {
	ctx, span := s.tracer.Start(ctx, "solver.solve",
		IntAttr("max_iterations", s.maxIterations))
	defer span.End()

	sol := Solution{Status: GoalFailed}
	messages := []ChatMessage{
		SystemMessage(s.systemPrompt),
		UserMessage(query),
	}

	terminated := false
	for sol.Iterations < s.maxIterations {
		reply, err := s.broker.Generate(ctx, messages, s.tools, nil)
		if err != nil {
			span.Error(err)
			sol.Reason = err.Error()
			sol.Summary = s.summarize(ctx, messages, sol.Status)
			return sol, err
		}
		sol.Iterations++
		sol.History = append(sol.History, Step{Thought: reply})
		messages = append(messages, AssistantMessage(reply))

		if doneRe.MatchString(reply) {
			sol.Status = GoalCompleted
			terminated = true
			break
		}
		if failRe.MatchString(reply) {
			sol.Reason = "solver reported failure"
			terminated = true
			break
		}
		messages = append(messages, UserMessage("Continue with the next step."))
	}
	if !terminated {
		sol.Reason = fmt.Sprintf("iteration cap of %d reached", s.maxIterations)
		s.logger.Info("relay: solver hit iteration cap", "max", s.maxIterations)
	}

	span.SetAttr(
		StringAttr("status", string(sol.Status)),
		IntAttr("iterations", sol.Iterations))
	sol.Summary = s.summarize(ctx, messages, sol.Status)
	return sol, nil
}

// summarize issues the closing summary prompt. On error it falls back to
// a synthesized line so callers always get a non-empty summary.
func (s *Solver) summarize(ctx context.Context, messages []ChatMessage, status GoalStatus) string {
	prompt := append(append([]ChatMessage{}, messages...), UserMessage(solverSummaryPrompt))
	summary, err := s.broker.Generate(ctx, prompt, nil, nil)
	if err != nil || summary == "" {
		s.logger.Warn("relay: summary generation failed", "error", err)
		return fmt.Sprintf("solver finished with status %s", status)
	}
	return summary
}

var _ GoalSolver = (*Solver)(nil)

// --- event-driven wrapper ---

const defaultSolveTimeout = 300 * time.Second

// GoalPayload is the payload shape SolverSubscriber expects on incoming
// events.
type GoalPayload struct {
	Query string `json:"query"`
}

// SolverSubscriberOption configures a SolverSubscriber.
type SolverSubscriberOption func(*SolverSubscriber)

// WithSolveTimeout bounds a single solve (default 300s).
func WithSolveTimeout(timeout time.Duration) SolverSubscriberOption {
	return func(s *SolverSubscriber) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// SolverSubscriber adapts a GoalSolver to the event-driven core: it
// consumes goal events and emits one result event per goal, carrying the
// Solution as payload. A solve that outlives the timeout yields a
// synthetic failed Solution rather than an error, so the result event is
// still emitted.
type SolverSubscriber struct {
	solver     GoalSolver
	source     string
	resultKind EventKind
	timeout    time.Duration
}

// NewSolverSubscriber wraps solver; result events carry resultKind and
// name source as their origin.
func NewSolverSubscriber(solver GoalSolver, source string, resultKind EventKind, opts ...SolverSubscriberOption) *SolverSubscriber {
	s := &SolverSubscriber{
		solver:     solver,
		source:     source,
		resultKind: resultKind,
		timeout:    defaultSolveTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReceiveEvent decodes the goal, solves it under the timeout, and returns
// the result event. Correlation is preserved from the incoming event.
func (s *SolverSubscriber) ReceiveEvent(ctx context.Context, ev Event) ([]Event, error) {
	var goal GoalPayload
	if err := ev.DecodePayload(&goal); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sol, err := s.solver.Solve(ctx, goal.Query)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		sol = Solution{
			Status:  GoalFailed,
			Reason:  fmt.Sprintf("solve timed out after %s", s.timeout),
			Summary: "the goal was abandoned because the solver ran out of time",
		}
	} else if err != nil && sol.Status != GoalFailed {
		sol.Status = GoalFailed
		sol.Reason = err.Error()
	}

	out, err := NewEvent(s.resultKind, s.source, sol)
	if err != nil {
		return nil, err
	}
	out.CorrelationID = ev.CorrelationID
	return []Event{out}, nil
}

var _ Subscriber = (*SolverSubscriber)(nil)
