package source

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/rule"
	"mercator-hq/fre/pkg/ruleset/parser"
	"mercator-hq/fre/pkg/ruleset/validator"
)

// DefaultExtensions are the rule file extensions loaded when none are set.
var DefaultExtensions = []string{".yaml", ".yml"}

// FileSource loads rule sets from YAML files on disk.
type FileSource struct {
	paths      []string
	extensions []string
	parser     *parser.Parser
	validator  *validator.Validator
	strict     bool
	logger     *slog.Logger
}

// NewFileSource creates a file-based rule source. Each path can be a single
// file or a directory; directories are walked recursively.
func NewFileSource(paths []string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		paths:      slices.Clone(paths),
		extensions: DefaultExtensions,
		parser:     parser.NewParser(),
		validator:  validator.NewValidator(),
		logger:     logger,
	}
}

// WithExtensions sets the file extensions treated as rule files.
func (s *FileSource) WithExtensions(exts ...string) *FileSource {
	if len(exts) > 0 {
		s.extensions = exts
	}
	return s
}

// WithParser replaces the default parser.
func (s *FileSource) WithParser(p *parser.Parser) *FileSource {
	s.parser = p
	return s
}

// WithValidator replaces the default validator. In strict mode validator
// warnings fail the load.
func (s *FileSource) WithValidator(v *validator.Validator, strict bool) *FileSource {
	s.validator = v
	s.strict = strict
	return s
}

// Paths returns the configured paths.
func (s *FileSource) Paths() []string {
	return slices.Clone(s.paths)
}

// Files lists the rule files currently under the configured paths, sorted.
// A path naming a file is returned as is, whatever its extension.
func (s *FileSource) Files() ([]string, error) {
	var files []string
	for _, root := range s.paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path %q: %w", root, err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && isHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && hasExtension(path, s.extensions) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %q: %w", root, err)
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// LoadRuleSets parses and validates every rule file. Sets are validated
// together so id collisions across files are caught.
func (s *FileSource) LoadRuleSets(ctx context.Context) ([]*rule.Set, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.logger.Warn("no rule files found", "paths", s.paths)
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sets, err := s.parser.ParseMulti(files)
	if err != nil {
		return nil, err
	}

	list := s.validator.Check(sets...)
	for _, w := range validator.Warnings(list) {
		s.logger.Warn("rule validation warning",
			"location", w.Location.String(),
			"message", w.Message,
		)
	}
	if failures := validator.Failures(list, s.strict); failures.HasErrors() {
		return nil, failures
	}

	rules := 0
	for _, set := range sets {
		rules += len(set.Rules)
		s.logger.Debug("loaded rule file",
			"path", set.SourceFile,
			"set", set.Name,
			"rule_count", len(set.Rules),
		)
	}
	s.logger.Info("loaded rule sets from source",
		"paths", s.paths,
		"file_count", len(sets),
		"rule_count", rules,
	)
	return sets, nil
}

// Watch reports changes to rule files under the configured paths. The
// channel is closed when ctx is cancelled.
func (s *FileSource) Watch(ctx context.Context) (<-chan engine.SourceEvent, error) {
	w, err := NewFileWatcher(&WatcherConfig{
		Paths:      s.paths,
		Extensions: s.extensions,
		SkipHidden: true,
	}, s.logger)
	if err != nil {
		return nil, err
	}
	return w.Start(ctx)
}

func hasExtension(path string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
