// Package manager keeps an engine's rule sets in sync with a rule source.
//
// Load installs the source's sets before the engine starts; Reload stages a
// replacement that the engine swaps in at the next tick boundary, so a
// reload never races a drain pass. Every load is all-or-nothing and a
// failure keeps the previous sets active.
//
// Watch consumes the source's change channel (fsnotify for files, polling
// for git) and coalesces bursts with a Debouncer:
//
//	mgr, _ := manager.New(src, eng,
//		manager.WithLogger(logger),
//		manager.WithDebounce(cfg.Rules.Debounce),
//		manager.WithReloadHook(func(r manager.ReloadResult) {
//			collector.RecordReload(r.Duration, r.Rules, r.Err)
//		}),
//	)
//	if err := mgr.Load(ctx); err != nil { ... }
//	go mgr.Watch(ctx)
package manager
