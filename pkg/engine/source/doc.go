// Package source provides rule sources for the engine.
//
// A rule source loads rule sets and reports when they may have changed. This
// package provides a file-based source and an in-memory one.
//
// # File Source
//
// The file source parses and validates every rule file under its paths.
// Directories are walked recursively; hidden entries are skipped:
//
//	src := source.NewFileSource([]string{"rules/"}, logger)
//	sets, err := src.LoadRuleSets(ctx)
//
// Loading is all-or-nothing: one bad file fails the whole load, and the
// returned error lists every problem found.
//
// # Watching
//
// Watch reports file system changes through fsnotify. Events are not
// debounced here; the manager coalesces bursts before reloading:
//
//	events, err := src.Watch(ctx)
//	for ev := range events {
//	    if ev.Error != nil {
//	        logger.Error("watch error", "error", ev.Error)
//	        continue
//	    }
//	    sets, err := src.LoadRuleSets(ctx)
//	}
//
// # In-Memory Source
//
// The in-memory source serves prebuilt sets and is mostly useful in tests:
//
//	src := source.NewMemorySource(sets...)
//	src.SetRuleSets(next) // notifies watchers
package source
