package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
budget:
  max_matches: 100
  max_bytes: 1048576
  max_duration: 2s
guard:
  max_depth: 50
  max_array_size: 1000
ndjson:
  max_line_length: 65536
  skip_errors: true
workers: 4
ordering: relaxed
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	if cfg.Budget.MaxMatches != 100 {
		t.Errorf("max_matches: got %d", cfg.Budget.MaxMatches)
	}
	if cfg.Budget.MaxBytes != 1048576 {
		t.Errorf("max_bytes: got %d", cfg.Budget.MaxBytes)
	}
	if cfg.Budget.MaxDuration != 2*time.Second {
		t.Errorf("max_duration: got %s", cfg.Budget.MaxDuration)
	}
	if cfg.Guard.MaxDepth != 50 || cfg.Guard.MaxArraySize != 1000 || cfg.Guard.MaxObjectKeys != 0 {
		t.Errorf("guard: got %+v", cfg.Guard)
	}
	if cfg.NDJSON.MaxLineLength != 65536 || !cfg.NDJSON.SkipErrors {
		t.Errorf("ndjson: got %+v", cfg.NDJSON)
	}
	if cfg.Workers != 4 || cfg.Ordering != OrderingRelaxed {
		t.Errorf("workers/ordering: got %d %q", cfg.Workers, cfg.Ordering)
	}
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("zero config expected, got %+v", cfg)
	}
	if cfg.EngineBudget() != nil {
		t.Error("EngineBudget: expected nil for zero config")
	}
	if cfg.EngineGuard() != nil {
		t.Error("EngineGuard: expected nil for zero config")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "budget: [", "decode config"},
		{"negative workers", "workers: -1", "workers"},
		{"bad ordering", "ordering: sorted", "ordering"},
		{"negative budget", "budget:\n  max_matches: -5", "budget"},
		{"negative guard", "guard:\n  max_depth: -2", "guard"},
		{"negative line length", "ndjson:\n  max_line_length: -1", "max_line_length"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func TestEngineBudget(t *testing.T) {
	cfg, err := Parse([]byte("budget:\n  max_matches: 7"))
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	budget := cfg.EngineBudget()
	if budget == nil || budget.MaxMatches != 7 || budget.MaxBytes != 0 {
		t.Errorf("EngineBudget: got %+v", budget)
	}
}

func TestEngineGuardFillsDefaults(t *testing.T) {
	cfg, err := Parse([]byte("guard:\n  max_depth: 10"))
	if err != nil {
		t.Fatalf("Parse: %s", err)
	}
	guard := cfg.EngineGuard()
	if guard == nil {
		t.Fatal("EngineGuard: nil")
	}
	if guard.MaxDepth != 10 {
		t.Errorf("MaxDepth: got %d", guard.MaxDepth)
	}
	if guard.MaxArraySize != 100000 || guard.MaxObjectKeys != 10000 {
		t.Errorf("unset limits should take defaults, got %+v", guard)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %s", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.Workers != 4 {
		t.Errorf("workers: got %d", cfg.Workers)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
