// Package parser loads YAML rule files into rule.Set values.
//
// A rule file looks like:
//
//	name: combat
//	scope: global
//	facts:
//	  player_health: 100
//	  enemy_count: 3
//	rules:
//	  - id: damage_on_hit
//	    event: hit
//	    condition: "player_health > 0"
//	    modifications:
//	      - op: subtract
//	        key: player_health
//	        value: 10
//	    actions: [play_hurt_sound]
//	    outputs: [check_death]
//
// Conditions are either an expression string or a structured mapping
// (all, any, not, fact/op/value, exists, not_exists, is_true, is_false,
// always). A list of conditions is an implicit "all". Every expression is
// parsed at load time, and all problems in a file are reported together
// with their line and column.
package parser
