package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/gitsource"
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/ruleset/validator"
	"mercator-hq/fre/pkg/telemetry/logging"
)

// loadConfig reads --config with FRE_* overrides and applies --log-level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if logLevel != "" {
		if _, err := logging.ParseLevel(logLevel); err != nil {
			return nil, cli.NewConfigError("log-level", err.Error())
		}
		cfg.Telemetry.Logging.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(logging.FromConfig(cfg, w))
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	return logger, nil
}

// engineConfig converts the file configuration. Validation has already
// rejected unknown policies.
func engineConfig(cfg config.EngineConfig) *engine.Config {
	out := engine.DefaultConfig()
	if cfg.MaxCascadeDepth != nil {
		out.MaxCascadeDepth = *cfg.MaxCascadeDepth
	}
	if cfg.OverflowPolicy != "" {
		out.OverflowPolicy = engine.OverflowPolicy(cfg.OverflowPolicy)
	}
	if cfg.DuplicateIDs != "" {
		out.DuplicatePolicy = rule.DuplicatePolicy(cfg.DuplicateIDs)
	}
	out.MaxPendingEvents = cfg.MaxPendingEvents
	return out
}

func newValidator(cfg config.EngineConfig) *validator.Validator {
	v := validator.NewValidator().WithStrictMode(cfg.Strict)
	if len(cfg.KnownActions) > 0 {
		v.WithKnownActions(cfg.KnownActions...)
	}
	if cfg.DuplicateIDs != "" {
		v.WithDuplicatePolicy(rule.DuplicatePolicy(cfg.DuplicateIDs))
	}
	return v
}

// newRuleSource builds the file or git source selected by rules.mode.
func newRuleSource(cfg *config.Config, logger *slog.Logger) (engine.RuleSource, error) {
	v := newValidator(cfg.Engine)
	switch cfg.Rules.Mode {
	case "", "file":
		return source.NewFileSource(cfg.Rules.Paths, logger).
			WithExtensions(cfg.Rules.Extensions...).
			WithValidator(v, cfg.Engine.Strict), nil
	case "git":
		repo, err := gitsource.NewRepository(&cfg.Rules.Git)
		if err != nil {
			return nil, cli.NewConfigError("rules.git", err.Error())
		}
		src := gitsource.NewSource(repo, logger).WithExtensions(cfg.Rules.Extensions...)
		src.Files().WithValidator(v, cfg.Engine.Strict)
		return src, nil
	default:
		return nil, cli.NewConfigError("rules.mode", fmt.Sprintf("unknown mode %q", cfg.Rules.Mode))
	}
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
