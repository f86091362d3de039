// Package journal records rule activity in a SQLite database.
//
// A Store is an engine.Observer. Firings, rule errors and cascade
// overflows are buffered while a tick runs and written in a single
// transaction when the tick completes, so the drain loop never waits on
// more than one commit per tick. Records get uuid ids and can be queried
// by kind, rule, event and time range:
//
//	store, _ := journal.Open(&cfg.Journal, logger)
//	eng, _ := engine.New(engCfg, engine.WithObserver(engine.MultiObserver{logObs, store}))
//	recs, _ := store.Query(ctx, &journal.Filter{RuleID: "death", Limit: 20})
//
// The database runs in WAL mode through the pure Go modernc.org/sqlite
// driver.
package journal
