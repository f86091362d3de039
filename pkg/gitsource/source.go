package gitsource

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/engine/source"
	"mercator-hq/fre/pkg/rule"
)

// Source is an engine.RuleSource backed by a git repository. Rule files are
// read from the checkout with a source.FileSource; Watch polls the remote
// and reports a change only when a pull touched rule files.
type Source struct {
	repo       *Repository
	files      *source.FileSource
	extensions []string
	interval   time.Duration
	logger     *slog.Logger
}

// NewSource creates a git rule source. The repository is cloned on the
// first LoadRuleSets if it is not open yet.
func NewSource(repo *Repository, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	interval := repo.Config().PollInterval
	if interval <= 0 {
		interval = config.DefaultGitPollInterval
	}
	return &Source{
		repo:       repo,
		files:      source.NewFileSource([]string{repo.RulesPath()}, logger),
		extensions: source.DefaultExtensions,
		interval:   interval,
		logger:     logger,
	}
}

// WithExtensions sets the rule file extensions.
func (s *Source) WithExtensions(exts ...string) *Source {
	if len(exts) > 0 {
		s.extensions = exts
		s.files.WithExtensions(exts...)
	}
	return s
}

// WithPollInterval overrides the configured poll interval.
func (s *Source) WithPollInterval(d time.Duration) *Source {
	if d > 0 {
		s.interval = d
	}
	return s
}

// Files returns the file source reading the checkout, for setting the
// parser or validator.
func (s *Source) Files() *source.FileSource {
	return s.files
}

// Repository returns the underlying repository.
func (s *Source) Repository() *Repository {
	return s.repo
}

// LoadRuleSets loads every rule file of the checkout. Each set's Version
// is set to the head commit when the file does not declare one.
func (s *Source) LoadRuleSets(ctx context.Context) ([]*rule.Set, error) {
	if !s.repo.Cloned() {
		if err := s.repo.Clone(ctx); err != nil {
			return nil, err
		}
	}
	sets, err := s.files.LoadRuleSets(ctx)
	if err != nil {
		return nil, err
	}
	if head, err := s.repo.HeadCommit(); err == nil {
		for _, set := range sets {
			if set.Version == "" {
				set.Version = shortSHA(head.SHA)
			}
		}
	}
	return sets, nil
}

// Watch polls the remote every interval. The channel is closed when ctx is
// cancelled.
func (s *Source) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	if !s.repo.Cloned() {
		return nil, ErrNotCloned
	}
	out := make(chan engine.SourceEvent, 1)
	go s.poll(ctx, out)
	return out, nil
}

func (s *Source) poll(ctx context.Context, out chan<- engine.SourceEvent) {
	defer close(out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cfg := s.repo.Config()
	s.logger.Info("Git rule source polling",
		"repository", cfg.Repository,
		"branch", cfg.Branch,
		"poll_interval", s.interval,
	)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ev, ok := s.check(ctx)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// check pulls once and reports whether an event should be sent.
func (s *Source) check(ctx context.Context) (engine.SourceEvent, bool) {
	res, err := s.repo.Pull(ctx)
	if err != nil {
		return engine.SourceEvent{Error: fmt.Errorf("git poll: %w", err)}, true
	}
	if !res.HadChanges {
		return engine.SourceEvent{}, false
	}

	relevant := s.ruleFiles(res.ChangedFiles)
	if len(relevant) == 0 {
		s.logger.Debug("Git changes do not touch rule files, skipping reload",
			"from", shortSHA(res.FromSHA),
			"to", shortSHA(res.ToSHA),
			"changed", len(res.ChangedFiles),
		)
		return engine.SourceEvent{}, false
	}
	s.logger.Info("Git rule files changed",
		"from", shortSHA(res.FromSHA),
		"to", shortSHA(res.ToSHA),
		"files", relevant,
	)
	return engine.SourceEvent{Type: engine.SourceEventModified, Path: relevant[0]}, true
}

// ruleFiles filters repository-relative paths down to rule files inside
// the configured rules directory.
func (s *Source) ruleFiles(changed []string) []string {
	dir := path.Clean(strings.TrimPrefix(s.repo.Config().Path, "./"))
	var out []string
	for _, f := range changed {
		if dir != "." && !strings.HasPrefix(f, dir+"/") {
			continue
		}
		if slices.Contains(s.extensions, path.Ext(f)) {
			out = append(out, f)
		}
	}
	return out
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
