package gitsource

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"mercator-hq/fre/pkg/config"
	"mercator-hq/fre/pkg/telemetry/logging"
)

const doorRules = `name: doors
facts:
  door_open: false
rules:
  - id: open_door
    event: use_door
    modifications:
      - op: toggle
        key: door_open
`

const lightRules = `name: lights
rules:
  - id: lamp
    event: use_lamp
    actions: [lamp_on]
`

// requireGit skips tests that clone through the local file transport,
// which runs the git binaries.
func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
}

// commitFile writes content to name inside the repository at dir and
// commits it.
func commitFile(t *testing.T, repo *gogit.Repository, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("failed to get worktree: %v", err)
	}
	if _, err := worktree.Add(name); err != nil {
		t.Fatalf("failed to add file: %v", err)
	}
	_, err = worktree.Commit("update "+name, &gogit.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
			When:  time.Now(),
		},
	})
	if err != nil {
		t.Fatalf("failed to commit: %v", err)
	}
}

// createOrigin creates a repository with rules/doors.yaml committed.
func createOrigin(t *testing.T) (*gogit.Repository, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("failed to init repo: %v", err)
	}
	commitFile(t, repo, dir, "rules/doors.yaml", doorRules)
	return repo, dir
}

func testConfig(t *testing.T, origin string) *config.GitConfig {
	return &config.GitConfig{
		Repository:  origin,
		Branch:      "master",
		Path:        "rules",
		LocalPath:   t.TempDir(),
		PollTimeout: 10 * time.Second,
		Auth:        config.GitAuthConfig{Type: "none"},
	}
}

func TestNewRepository(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.GitConfig
		wantErr bool
	}{
		{"nil config", nil, true},
		{"empty repository", &config.GitConfig{}, true},
		{"unknown auth", &config.GitConfig{Repository: "https://example.com/r.git", Auth: config.GitAuthConfig{Type: "kerberos"}}, true},
		{"token without token", &config.GitConfig{Repository: "https://example.com/r.git", Auth: config.GitAuthConfig{Type: "token"}}, true},
		{"defaults", &config.GitConfig{Repository: "https://example.com/r.git"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := NewRepository(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewRepository() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			cfg := repo.Config()
			if cfg.Branch != config.DefaultGitBranch || cfg.PollTimeout != config.DefaultGitPollTimeout || cfg.LocalPath == "" {
				t.Errorf("defaults not applied: %+v", cfg)
			}
		})
	}
}

func TestNewAuthProvider(t *testing.T) {
	tests := []struct {
		cfg      config.GitAuthConfig
		wantType string
		wantErr  bool
	}{
		{config.GitAuthConfig{}, "none", false},
		{config.GitAuthConfig{Type: "none"}, "none", false},
		{config.GitAuthConfig{Type: "token", Token: "ghp_x"}, "token", false},
		{config.GitAuthConfig{Type: "ssh", SSHKeyPath: "/keys/id"}, "ssh", false},
		{config.GitAuthConfig{Type: "ssh"}, "", true},
		{config.GitAuthConfig{Type: "ldap"}, "", true},
	}
	for _, tt := range tests {
		p, err := NewAuthProvider(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewAuthProvider(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			continue
		}
		if err == nil && p.Type() != tt.wantType {
			t.Errorf("Type() = %q, want %q", p.Type(), tt.wantType)
		}
	}
}

func TestTokenAuth(t *testing.T) {
	auth, err := NewTokenAuth("secret").GetAuth()
	if err != nil || auth == nil {
		t.Fatalf("GetAuth() = %v, %v", auth, err)
	}
	if _, err := NewTokenAuth("").GetAuth(); err == nil {
		t.Error("empty token should fail")
	}
}

func TestSSHAuth_Permissions(t *testing.T) {
	key := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(key, []byte("not a key"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSSHAuth(key, "").GetAuth(); err == nil {
		t.Error("world readable key should be rejected")
	}
	if _, err := NewSSHAuth(filepath.Join(t.TempDir(), "missing"), "").GetAuth(); err == nil {
		t.Error("missing key should be rejected")
	}
}

func TestRepository_BeforeClone(t *testing.T) {
	repo, err := NewRepository(&config.GitConfig{Repository: "https://example.com/r.git", LocalPath: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Pull(context.Background()); err != ErrNotCloned {
		t.Errorf("Pull() error = %v, want ErrNotCloned", err)
	}
	if _, err := repo.HeadCommit(); err != ErrNotCloned {
		t.Errorf("HeadCommit() error = %v, want ErrNotCloned", err)
	}
	if repo.Cloned() {
		t.Error("Cloned() = true before Clone")
	}
}

func TestRepository_CloneAndPull(t *testing.T) {
	requireGit(t)
	origin, originDir := createOrigin(t)
	cfg := testConfig(t, originDir)

	repo, err := NewRepository(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Clone(context.Background()); err != nil {
		t.Fatalf("Clone() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo.RulesPath(), "doors.yaml")); err != nil {
		t.Errorf("rules file missing from checkout: %v", err)
	}

	head, err := repo.HeadCommit()
	if err != nil {
		t.Fatal(err)
	}
	if head.Author != "Test User" || head.Branch != "master" || head.SHA == "" {
		t.Errorf("HeadCommit() = %+v", head)
	}

	res, err := repo.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if res.HadChanges {
		t.Error("up to date pull reported changes")
	}

	commitFile(t, origin, originDir, "rules/lights.yaml", lightRules)
	res, err = repo.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if !res.HadChanges || !slices.Equal(res.ChangedFiles, []string{"rules/lights.yaml"}) {
		t.Errorf("Pull() = %+v", res)
	}
	if s := repo.Stats(); s.SuccessfulPulls != 2 || s.LastCommitSHA != res.ToSHA {
		t.Errorf("Stats() = %+v", s)
	}

	// a second manager over the same checkout reopens it
	again, _ := NewRepository(cfg)
	if err := again.Clone(context.Background()); err != nil {
		t.Fatalf("reopen Clone() error = %v", err)
	}
}

func TestSource_LoadRuleSets(t *testing.T) {
	requireGit(t)
	_, originDir := createOrigin(t)
	repo, err := NewRepository(testConfig(t, originDir))
	if err != nil {
		t.Fatal(err)
	}

	src := NewSource(repo, logging.Discard())
	sets, err := src.LoadRuleSets(context.Background())
	if err != nil {
		t.Fatalf("LoadRuleSets() error = %v", err)
	}
	if len(sets) != 1 || sets[0].Name != "doors" {
		t.Fatalf("sets = %v", sets)
	}
	head, _ := repo.HeadCommit()
	if sets[0].Version != shortSHA(head.SHA) {
		t.Errorf("Version = %q, want %q", sets[0].Version, shortSHA(head.SHA))
	}
}

func TestSource_RuleFiles(t *testing.T) {
	tests := []struct {
		path    string
		changed []string
		want    []string
	}{
		{"rules", []string{"rules/a.yaml", "README.md", "other/b.yaml", "rules/x/c.yml"}, []string{"rules/a.yaml", "rules/x/c.yml"}},
		{"./rules/", []string{"rules/a.yaml", "rulesets/b.yaml"}, []string{"rules/a.yaml"}},
		{".", []string{"a.yaml", "docs/b.md", "c/d.yml"}, []string{"a.yaml", "c/d.yml"}},
	}
	for _, tt := range tests {
		repo, _ := NewRepository(&config.GitConfig{Repository: "https://example.com/r.git", Path: tt.path})
		src := NewSource(repo, logging.Discard())
		if got := src.ruleFiles(tt.changed); !slices.Equal(got, tt.want) {
			t.Errorf("path %q: ruleFiles() = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestSource_Watch(t *testing.T) {
	requireGit(t)
	origin, originDir := createOrigin(t)
	repo, _ := NewRepository(testConfig(t, originDir))
	src := NewSource(repo, logging.Discard()).WithPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := src.Watch(ctx); err != ErrNotCloned {
		t.Errorf("Watch() before clone error = %v, want ErrNotCloned", err)
	}
	if _, err := src.LoadRuleSets(ctx); err != nil {
		t.Fatal(err)
	}
	events, err := src.Watch(ctx)
	if err != nil {
		t.Fatal(err)
	}

	commitFile(t, origin, originDir, "README.md", "docs only")
	time.Sleep(100 * time.Millisecond)
	commitFile(t, origin, originDir, "rules/lights.yaml", lightRules)

	select {
	case ev := <-events:
		if ev.Error != nil {
			t.Fatalf("watch error: %v", ev.Error)
		}
		if ev.Path != "rules/lights.yaml" {
			t.Errorf("event path = %q, want rules/lights.yaml", ev.Path)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	cancel()
	for range events {
	}
}
