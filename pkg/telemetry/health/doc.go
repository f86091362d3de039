// Package health provides liveness and readiness probes for the fre runtime.
//
// Components register checks by name; the runtime registers "rules" (a rule
// set is installed and the last reload succeeded) and, when the journal is
// enabled, "journal" (the database answers a ping). The handlers are mounted
// next to the metrics endpoint:
//
//	GET /healthz  liveness, always 200
//	GET /readyz   readiness, 200 or 503
package health
