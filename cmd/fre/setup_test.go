package main

import (
	"testing"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/gitsource"
	"mercator-hq/fre/pkg/rule"
)

func TestEngineConfig(t *testing.T) {
	zero := 0
	tests := []struct {
		name  string
		cfg   config.EngineConfig
		depth int
		pol   engine.OverflowPolicy
		dup   rule.DuplicatePolicy
	}{
		{"defaults", config.EngineConfig{}, 16, engine.OverflowDrop, rule.DuplicateError},
		{"explicit zero depth", config.EngineConfig{MaxCascadeDepth: &zero}, 0, engine.OverflowDrop, rule.DuplicateError},
		{"keep and suffix", config.EngineConfig{OverflowPolicy: "keep", DuplicateIDs: "suffix"}, 16, engine.OverflowKeep, rule.DuplicateSuffix},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engineConfig(tt.cfg)
			if got.MaxCascadeDepth != tt.depth || got.OverflowPolicy != tt.pol || got.DuplicatePolicy != tt.dup {
				t.Errorf("engineConfig() = %+v", got)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestNewRuleSource(t *testing.T) {
	cfg := config.NewDefault()
	cfg.Rules.Paths = []string{"testdata/rules"}
	src, err := newRuleSource(cfg, nil)
	if err != nil {
		t.Fatalf("file mode: %v", err)
	}
	sets, err := src.LoadRuleSets(t.Context())
	if err != nil || len(sets) != 2 {
		t.Fatalf("LoadRuleSets() = %d sets, %v", len(sets), err)
	}

	cfg.Rules.Mode = "git"
	cfg.Rules.Git.Repository = "https://example.com/rules.git"
	src, err = newRuleSource(cfg, nil)
	if err != nil {
		t.Fatalf("git mode: %v", err)
	}
	if _, ok := src.(*gitsource.Source); !ok {
		t.Errorf("git mode built %T", src)
	}

	cfg.Rules.Mode = "s3"
	if _, err := newRuleSource(cfg, nil); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("unknown mode error = %v, want config error", err)
	}
}

func TestLoadConfigLogLevel(t *testing.T) {
	defer func() { cfgFile, logLevel = "", "" }()

	logLevel = "debug"
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("level = %q", cfg.Telemetry.Logging.Level)
	}

	logLevel = "loud"
	if _, err := loadConfig(); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("bad level error = %v, want config error", err)
	}

	logLevel = ""
	cfgFile = "testdata/missing.yaml"
	if _, err := loadConfig(); cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("missing file error = %v, want config error", err)
	}
}
