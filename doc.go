// Package relay is the concurrent substrate of a multi-agent LLM
// orchestration framework: it routes typed events between subscribers,
// accumulates partial results keyed by correlation id, and coordinates
// iterative problem-solving loops over a pluggable LLM gateway.
//
// # Quick Start
//
// Wire a pipeline with a router, a dispatcher, and an aggregator:
//
//	router := relay.NewRouter()
//	router.AddRoute("ticket.opened", relay.SubscriberFunc(classify))
//	router.AddRoute("ticket.opened", relay.SubscriberFunc(enrich))
//
//	agg := relay.NewAggregator([]relay.EventKind{"classified", "enriched"}, reduce)
//	router.AddRoute("classified", agg)
//	router.AddRoute("enriched", agg)
//
//	d := relay.NewDispatcher(router)
//	d.Dispatch(ev)
//	out, err := agg.WaitForEvents(ctx, ev.CorrelationID, 5*time.Second)
//
// Drive a reasoning loop over an LLM gateway:
//
//	gw := ollama.New(ollama.WithModel("llama3.2"))
//	broker := relay.NewBroker(gw, "llama3.2")
//	solver := relay.NewReActSolver(broker, relay.WithSolverTools(tools...))
//	result, err := solver.Solve(ctx, "find the release date of Go 1.25")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Subscriber] — handler registered in the Router for one or more event kinds
//   - [Gateway] — provider-specific LLM client (complete, structured, streaming)
//   - [Tool] — pluggable capability for LLM function calling
//   - [Tracer] — pluggable span emitter; [NopTracer] is the default
//   - [SessionStore] — chat session history persistence
//
// # Included Implementations
//
// Gateways: gateway/ollama (Ollama native API).
// Storage: store/sqlite (local, pure Go), store/postgres (pgx).
// Tools: tools/datetool, tools/file.
// Observability: observer (OTel traces, metrics, logs).
//
// See the cmd/relay directory for a complete reference application.
package relay
