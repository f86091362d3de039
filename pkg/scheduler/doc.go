// Package scheduler emits engine events on cron schedules.
//
// Schedules come from the schedules section of the configuration:
//
//	schedules:
//	  - name: regen
//	    cron: "@every 5s"
//	    event: regen_tick
//	  - cron: "0 3 * * *"
//	    event: daily_reset
//	    payload: {reason: nightly}
//
// Each firing calls Emit on the engine, which is safe for concurrent use;
// the event waits in the intake queue for the next tick.
package scheduler
