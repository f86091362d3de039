// Package engine runs rules against a layered fact database in response to
// named events.
//
// # Evaluation Flow
//
//	Emit(event) → intake queue
//	       ↓
//	Tick: install staged rule sets, take the queue snapshot
//	       ↓
//	Drain pass (depth 0, 1, ...):
//	  For each event, in intake order:
//	    For each rule on the event (global scope, then active contexts):
//	      Evaluate condition → true?
//	        Yes → apply modifications (rolled back on error)
//	              dispatch actions
//	              queue outputs for the next pass
//	              consume_event? → stop matching this event
//	        No / error → next rule
//	       ↓
//	Outputs left and depth > MaxCascadeDepth → CascadeDepthError, once per tick
//	       ↓
//	TickReport (passes, fired rules, errors, overflow)
//
// # Basic Usage
//
//	eng, err := engine.New(engine.DefaultConfig(), engine.WithActions(actions))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := eng.LoadRuleSets(sets); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng.Emit("hit", nil)
//	report := eng.Tick(ctx)
//
// # Errors
//
// Condition and modification failures (unknown fact, type mismatch,
// division by zero) are local to one rule: the rule does not fire and the
// pass continues. They reach the host through the Observer, never as a
// return value of Tick.
//
// # Thread Safety
//
// Emit and StageRuleSets may be called from any goroutine. Tick,
// EnterContext, ExitContext and LoadRuleSets must be serialized by the host.
package engine
