// Package errors provides located, suggestion-carrying errors for rule file
// loading and validation.
//
// Loaders and validators accumulate problems in an ErrorList instead of
// stopping at the first one, so a single lint run reports everything wrong
// with a file:
//
//	[structural] Unknown modification op "incremnt"
//	  --> rules/combat.yaml:14:11
//	  |
//	   13 |       - key: player_health
//	-> 14 |         op: incremnt
//	      |           ^
//	  |
//	  = suggestion: Did you mean 'increment'?
package errors
