// Command relay runs a goal through the event-driven coordination core:
// an Ollama-backed broker, a ReAct solver wrapped as a dispatcher
// subscriber, and an aggregator that collects the result.
//
// Usage:
//
//	relay "what day of the week is it in 10 days?"
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	relay "github.com/nevindra/relay"
	"github.com/nevindra/relay/gateway/ollama"
	"github.com/nevindra/relay/internal/config"
	"github.com/nevindra/relay/observer"
	"github.com/nevindra/relay/store/postgres"
	"github.com/nevindra/relay/store/sqlite"
	"github.com/nevindra/relay/tools/datetool"
	"github.com/nevindra/relay/tools/file"
)

const (
	kindGoal   = relay.EventKind("goal")
	kindResult = relay.EventKind("goal.result")
	// kindSolution has no route; it exists only for WaitForEvents callers.
	kindSolution = relay.EventKind("solution")
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: relay <goal>")
		os.Exit(2)
	}
	goal := strings.Join(os.Args[1:], " ")

	cfg := config.Load(os.Getenv("RELAY_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	// 1. Gateway with retry, optionally instrumented.
	var gwOpts []ollama.Option
	if cfg.LLM.Host != "" {
		gwOpts = append(gwOpts, ollama.WithHost(cfg.LLM.Host))
	}
	gwOpts = append(gwOpts, ollama.WithEmbedModel(cfg.LLM.EmbedModel))
	var gw relay.Gateway = ollama.New(gwOpts...)

	tracer := relay.Tracer(relay.NopTracer{})
	tools := []relay.Tool{
		datetool.New(),
		file.New(cfg.Workspace.Path),
	}
	if cfg.Observer.Enabled {
		inst, shutdown, err := observer.Init(ctx)
		if err != nil {
			log.Fatalf("observer init: %v", err)
		}
		defer shutdown(ctx)
		gw = observer.WrapGateway(gw, inst)
		for i, t := range tools {
			tools[i] = observer.WrapTool(t, inst)
		}
		tracer = observer.NewTracer()
		logger.Info("observability enabled")
	}
	gw = relay.WithRetry(gw, relay.RetryLogger(logger))

	// 2. Session store (full transcript, independent of window trimming).
	store := openStore(ctx, cfg)
	if store != nil {
		defer store.Close()
	}

	// 3. Broker + solver.
	broker := relay.NewBroker(gw, cfg.LLM.Model,
		relay.WithBrokerLogger(logger),
		relay.WithBrokerTracer(tracer))
	solver := relay.NewReActSolver(broker, tools,
		relay.WithReActIterations(cfg.Solver.MaxIterations),
		relay.WithReActLogger(logger),
		relay.WithReActTracer(tracer))

	// 4. Event pipeline: goal -> solver -> aggregator -> solution.
	agg := relay.NewAggregator([]relay.EventKind{kindResult},
		func(events []relay.Event, state any) ([]relay.Event, any, error) {
			out := make([]relay.Event, len(events))
			for i, ev := range events {
				out[i] = ev
				out[i].Kind = kindSolution
			}
			return out, state, nil
		},
		relay.WithAggregatorLogger(logger),
		relay.WithAggregatorTracer(tracer))

	router := relay.NewRouter()
	router.AddRoute(kindGoal, relay.NewSolverSubscriber(solver, "react", kindResult,
		relay.WithSolveTimeout(cfg.Solver.Timeout())))
	router.AddRoute(kindResult, agg)

	dispatcher := relay.NewDispatcher(router,
		relay.WithBatchSize(cfg.Dispatcher.BatchSize),
		relay.WithTickInterval(cfg.Dispatcher.TickInterval()),
		relay.WithDispatcherLogger(logger),
		relay.WithDispatcherTracer(tracer))

	ev, err := relay.NewEvent(kindGoal, "cli", relay.GoalPayload{Query: goal})
	if err != nil {
		log.Fatalf("build goal event: %v", err)
	}
	ev.CorrelationID = relay.NewID()
	if store != nil {
		if _, err := store.CreateSession(ctx, ev.CorrelationID, goal); err != nil {
			logger.Warn("create session failed", "error", err)
		} else {
			_ = store.AppendMessage(ctx, ev.CorrelationID, relay.UserMessage(goal))
		}
	}

	if err := dispatcher.Dispatch(ev); err != nil {
		log.Fatalf("dispatch: %v", err)
	}

	// 5. Wait for the solution and print it.
	results, err := agg.WaitForEvents(ctx, ev.CorrelationID, cfg.Solver.Timeout()+10*time.Second)
	if err != nil {
		log.Fatalf("wait for result: %v", err)
	}
	for _, res := range results {
		var sol relay.Solution
		if err := res.DecodePayload(&sol); err != nil {
			continue
		}
		fmt.Printf("status: %s (%d iterations)\n\n%s\n", sol.Status, sol.Iterations, sol.Summary)
		if store != nil {
			_ = store.AppendMessage(ctx, ev.CorrelationID, relay.AssistantMessage(sol.Summary))
		}
	}

	_ = dispatcher.Stop(5 * time.Second)
}

// openStore opens the configured session store, or returns nil when
// persistence is disabled or unavailable.
func openStore(ctx context.Context, cfg config.Config) relay.SessionStore {
	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			log.Printf("postgres pool: %v (continuing without persistence)", err)
			return nil
		}
		s := postgres.New(pool)
		if err := s.Init(ctx); err != nil {
			log.Printf("postgres init: %v (continuing without persistence)", err)
			pool.Close()
			return nil
		}
		return s
	case "sqlite":
		s := sqlite.New(cfg.Database.Path)
		if err := s.Init(ctx); err != nil {
			log.Printf("sqlite init: %v (continuing without persistence)", err)
			_ = s.Close()
			return nil
		}
		return s
	default:
		return nil
	}
}
