// Package gitsource serves rule sets from a git repository.
//
// Repository clones (or reopens) the rules repository and pulls the tracked
// branch; Source adapts it to engine.RuleSource so the manager can load
// and hot reload from git exactly as it does from a directory:
//
//	repo, _ := gitsource.NewRepository(&cfg.Rules.Git)
//	src := gitsource.NewSource(repo, logger)
//	mgr, _ := manager.New(src, eng)
//
// Polling only reports a change when a pull touched files with a rule
// extension under the configured path, so commits to docs or CI files do
// not trigger reloads. Authentication supports tokens, SSH keys and
// anonymous access.
package gitsource
