package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.LLM.Model != "qwen3" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	if cfg.Dispatcher.BatchSize != 5 || cfg.Dispatcher.TickInterval() != 100*time.Millisecond {
		t.Fatalf("dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.Solver.MaxIterations != 10 || cfg.Solver.Timeout() != 300*time.Second {
		t.Fatalf("solver = %+v", cfg.Solver)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
}

func TestLoadTOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	data := `
[llm]
host = "http://ollama.internal:11434"
model = "llama3"

[dispatcher]
batch_size = 2
tick_interval_ms = 50

[solver]
max_iterations = 4
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := Load(path)
	if cfg.LLM.Host != "http://ollama.internal:11434" || cfg.LLM.Model != "llama3" {
		t.Fatalf("llm = %+v", cfg.LLM)
	}
	if cfg.Dispatcher.BatchSize != 2 || cfg.Dispatcher.TickInterval() != 50*time.Millisecond {
		t.Fatalf("dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.Solver.MaxIterations != 4 {
		t.Fatalf("solver = %+v", cfg.Solver)
	}
	// Sections absent from the file keep their defaults.
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "relay.toml")
	os.WriteFile(path, []byte("[llm]\nmodel = \"from-file\"\n"), 0644)

	t.Setenv("RELAY_LLM_MODEL", "from-env")
	t.Setenv("RELAY_DB_DRIVER", "postgres")
	t.Setenv("RELAY_SOLVER_MAX_ITERATIONS", "7")
	t.Setenv("RELAY_OBSERVER_ENABLED", "true")

	cfg := Load(path)
	if cfg.LLM.Model != "from-env" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Solver.MaxIterations != 7 {
		t.Fatalf("max iterations = %d", cfg.Solver.MaxIterations)
	}
	if !cfg.Observer.Enabled {
		t.Fatal("observer not enabled from env")
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if cfg.LLM.Model != "qwen3" {
		t.Fatalf("model = %q", cfg.LLM.Model)
	}
}

func TestInvalidEnvIterationsIgnored(t *testing.T) {
	t.Setenv("RELAY_SOLVER_MAX_ITERATIONS", "not-a-number")
	cfg := Load(filepath.Join(t.TempDir(), "none.toml"))
	if cfg.Solver.MaxIterations != 10 {
		t.Fatalf("max iterations = %d", cfg.Solver.MaxIterations)
	}
}
