package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := "server:\n  port: \"9090\"\npostgres:\n  url: postgres://localhost/examprep\n  timeout: 3s\nsubmit:\n  max_retries: 5\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Postgres.URL == "" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.SubmitMaxRetries() != 5 {
		t.Fatalf("explicit max_retries overridden: %d", cfg.SubmitMaxRetries())
	}
	if cfg.Log.Mode != "dev" || cfg.AMQP.Exchange != "examprep.events" || cfg.Rollup.ReplayBatch != 100 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if got := Duration(cfg.Postgres.Timeout, time.Second); got != 3*time.Second {
		t.Fatalf("expected 3s, got %v", got)
	}
}

func TestDurationFallback(t *testing.T) {
	if got := Duration("", time.Minute); got != time.Minute {
		t.Fatalf("empty: got %v", got)
	}
	if got := Duration("soon", time.Minute); got != time.Minute {
		t.Fatalf("invalid: got %v", got)
	}
}

func TestSubmitMaxRetries(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{name: "absent", raw: "server:\n  port: \"8080\"\n", want: DefaultMaxRetries},
		{name: "zero disables", raw: "submit:\n  max_retries: 0\n", want: 0},
		{name: "negative clamps", raw: "submit:\n  max_retries: -2\n", want: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tc.raw), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			cfg, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if got := cfg.SubmitMaxRetries(); got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
	if got := (Config{}).SubmitMaxRetries(); got != DefaultMaxRetries {
		t.Fatalf("zero config: expected %d, got %d", DefaultMaxRetries, got)
	}
}
