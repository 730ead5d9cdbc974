package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// ReActState is a phase of the reason/act loop.
type ReActState string

const (
	StateThinking  ReActState = "thinking"
	StateDeciding  ReActState = "deciding"
	StateActing    ReActState = "acting"
	StateFinishing ReActState = "finishing"
	StateFailed    ReActState = "failed"
)

const defaultReActIterations = 10

// reactDecision is the structured output the model returns while
// deciding. Decision selects the transition; the other fields are
// decision-specific.
type reactDecision struct {
	Decision string          `json:"decision"` // PLAN, ACT, or FINISH
	Thought  string          `json:"thought,omitempty"`
	Plan     []string        `json:"plan,omitempty"`
	Tool     string          `json:"tool,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

var reactDecisionSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "decision": {"type": "string", "enum": ["PLAN", "ACT", "FINISH"]},
    "thought": {"type": "string"},
    "plan": {"type": "array", "items": {"type": "string"}},
    "tool": {"type": "string"},
    "args": {"type": "object"},
    "reason": {"type": "string"}
  },
  "required": ["decision", "thought"]
}`)

const reactSystemPrompt = `You solve goals through an iterative reason/act loop. Each turn, return a JSON decision:
- PLAN: revise the step-wise plan (set "plan" to the new list of steps).
- ACT: execute one tool (set "tool" to its name and "args" to its arguments).
- FINISH: the goal is achieved or cannot progress (set "reason").
Always explain yourself in "thought". Only use tools from the provided list.`

// ReActOption configures a ReActSolver.
type ReActOption func(*ReActSolver)

// WithReActIterations sets the acting-iteration cap (default 10).
func WithReActIterations(n int) ReActOption {
	return func(r *ReActSolver) { r.maxIterations = n }
}

// WithReActLogger sets a structured logger. If not set, no output.
func WithReActLogger(l *slog.Logger) ReActOption {
	return func(r *ReActSolver) { r.logger = l }
}

// WithReActTracer sets the tracer (default NopTracer).
func WithReActTracer(t Tracer) ReActOption {
	return func(r *ReActSolver) { r.tracer = t }
}

// ReActSolver drives think/decide/act/observe cycles using structured
// decisions from the broker. State transitions:
//
//	Thinking  -> Deciding                       (a plan exists)
//	Deciding  -> Acting | Thinking | Finishing  (ACT / PLAN / FINISH)
//	Acting    -> Deciding                       (observation recorded)
//	Deciding  -> Failed                         (invalid decision, unknown
//	                                             tool, or iteration cap)
//	Finishing -> terminal                       (summarizer produces answer)
//
// Tool failures do not fail the loop; they become observations the model
// sees on the next turn.
type ReActSolver struct {
	broker        *Broker
	tools         []Tool
	maxIterations int
	logger        *slog.Logger
	tracer        Tracer
}

// NewReActSolver creates a ReAct solver over broker with the given tools.
func NewReActSolver(broker *Broker, tools []Tool, opts ...ReActOption) *ReActSolver {
	r := &ReActSolver{
		broker:        broker,
		tools:         tools,
		maxIterations: defaultReActIterations,
		logger:        nopLogger,
		tracer:        NopTracer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Solve runs the loop until FINISH, a failure, or the iteration cap.
func (r *ReActSolver) Solve(ctx context.Context, query string) (Solution, error) {
	ctx, span := r.tracer.Start(ctx, "react.solve",
		IntAttr("max_iterations", r.maxIterations),
		IntAttr("tools", len(r.tools)))
	defer span.End()

	sol := Solution{Status: GoalFailed}
	var plan []string
	state := StateThinking

	for {
		switch state {
		case StateThinking, StateDeciding:
			if sol.Iterations >= r.maxIterations {
				sol.Reason = fmt.Sprintf("iteration cap of %d reached", r.maxIterations)
				if n := len(sol.History); n > 0 {
					sol.Reason += "; last observation: " + sol.History[n-1].Observation
				}
				state = StateFailed
				continue
			}
			dec, err := r.decide(ctx, query, plan, sol.History)
			if err != nil {
				span.Error(err)
				sol.Reason = err.Error()
				state = StateFailed
				continue
			}
			span.Event("react.decision",
				StringAttr("decision", dec.Decision),
				IntAttr("iteration", sol.Iterations))

			switch strings.ToUpper(dec.Decision) {
			case "PLAN":
				plan = dec.Plan
				state = StateDeciding
			case "ACT":
				if _, ok := findTool(r.tools, dec.Tool); !ok {
					sol.Reason = fmt.Sprintf("unknown tool %q requested", dec.Tool)
					state = StateFailed
					continue
				}
				sol.History = append(sol.History, r.act(ctx, span, dec))
				sol.Iterations++
				state = StateDeciding
			case "FINISH":
				sol.History = append(sol.History, Step{Thought: dec.Thought})
				state = StateFinishing
			default:
				sol.Reason = fmt.Sprintf("invalid decision %q", dec.Decision)
				state = StateFailed
			}

		case StateActing:
			// Acting is folded into the ACT branch above.
			state = StateDeciding

		case StateFinishing:
			summary, err := r.finish(ctx, query, sol.History)
			if err != nil {
				span.Error(err)
				sol.Reason = err.Error()
				state = StateFailed
				continue
			}
			sol.Status = GoalCompleted
			sol.Summary = summary
			span.SetAttr(StringAttr("status", string(sol.Status)),
				IntAttr("iterations", sol.Iterations))
			return sol, nil

		case StateFailed:
			sol.Summary = "the goal was not achieved: " + sol.Reason
			r.logger.Warn("relay: react solve failed", "reason", sol.Reason)
			span.SetAttr(StringAttr("status", string(sol.Status)),
				IntAttr("iterations", sol.Iterations))
			return sol, nil
		}
	}
}

// decide asks the broker for the next structured decision.
func (r *ReActSolver) decide(ctx context.Context, query string, plan []string, history []Step) (reactDecision, error) {
	messages := []ChatMessage{
		SystemMessage(reactSystemPrompt + "\n\nAvailable tools:\n" + r.toolList()),
		UserMessage(renderGoalContext(query, plan, history)),
	}
	raw, err := r.broker.GenerateObject(ctx, messages, reactDecisionSchema, nil)
	if err != nil {
		return reactDecision{}, err
	}
	var dec reactDecision
	if err := json.Unmarshal(raw, &dec); err != nil {
		return reactDecision{}, &ErrSerialization{Message: "decoding decision: " + err.Error()}
	}
	return dec, nil
}

// act executes the decided tool call and records the triple. Failures are
// captured in the observation so the loop continues.
func (r *ReActSolver) act(ctx context.Context, span Span, dec reactDecision) Step {
	step := Step{
		Thought: dec.Thought,
		Action:  fmt.Sprintf("%s(%s)", dec.Tool, string(dec.Args)),
	}
	tool, _ := findTool(r.tools, dec.Tool)
	result, err := tool.Execute(ctx, dec.Tool, dec.Args)
	switch {
	case err != nil:
		step.Observation = "tool error: " + err.Error()
	case result.Error != "":
		step.Observation = "tool error: " + result.Error
	default:
		step.Observation = result.Content
	}
	span.Event("react.observation",
		StringAttr("tool", dec.Tool),
		BoolAttr("failed", err != nil || result.Error != ""))
	if err != nil || result.Error != "" {
		r.logger.Warn("relay: tool failed, recorded as observation",
			"tool", dec.Tool,
			"error", step.Observation)
	}
	return step
}

// finish issues the summarizer call that produces the final answer.
func (r *ReActSolver) finish(ctx context.Context, query string, history []Step) (string, error) {
	messages := []ChatMessage{
		SystemMessage("Write the final answer to the user's goal based on the work below. Be direct and complete."),
		UserMessage(renderGoalContext(query, nil, history)),
	}
	return r.broker.Generate(ctx, messages, nil, nil)
}

func (r *ReActSolver) toolList() string {
	var b strings.Builder
	for _, def := range definitions(r.tools) {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return b.String()
}

// renderGoalContext formats the goal, current plan, and history for a
// prompt.
func renderGoalContext(query string, plan []string, history []Step) string {
	var b strings.Builder
	b.WriteString("Goal: " + query + "\n")
	if len(plan) > 0 {
		b.WriteString("\nPlan:\n")
		for i, step := range plan {
			fmt.Fprintf(&b, "%d. %s\n", i+1, step)
		}
	}
	if len(history) > 0 {
		b.WriteString("\nHistory:\n")
		for _, h := range history {
			if h.Thought != "" {
				b.WriteString("Thought: " + h.Thought + "\n")
			}
			if h.Action != "" {
				b.WriteString("Action: " + h.Action + "\n")
			}
			if h.Observation != "" {
				b.WriteString("Observation: " + h.Observation + "\n")
			}
		}
	}
	return b.String()
}

var _ GoalSolver = (*ReActSolver)(nil)
