package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/engine"
	"mercator-hq/fre/pkg/rule"
)

// errQuit ends the console loop.
var errQuit = errors.New("quit")

const consoleHelp = `commands:
  emit <event> [key=value ...]  queue an event for the next tick
  tick [n]                      run n ticks now (default 1)
  enter <context>               enter a context
  exit <context>                exit the innermost context
  facts [prefix]                list facts
  contexts                      list entered contexts
  status                        show rule source status
  reload                        reload rule sets at the next tick
  help                          show this help
  quit                          stop
`

// command is one parsed console line.
type command struct {
	name    string
	args    []string
	payload map[string]string
}

// parseCommand splits a console line. Arguments of emit after the event
// name are key=value payload entries.
func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	cmd := command{name: strings.ToLower(fields[0]), args: fields[1:]}

	switch cmd.name {
	case "emit":
		if len(cmd.args) == 0 {
			return cmd, fmt.Errorf("usage: emit <event> [key=value ...]")
		}
		for _, kv := range cmd.args[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return cmd, fmt.Errorf("payload entry %q is not key=value", kv)
			}
			if cmd.payload == nil {
				cmd.payload = make(map[string]string)
			}
			cmd.payload[k] = v
		}
		cmd.args = cmd.args[:1]
	case "tick":
		if len(cmd.args) > 1 {
			return cmd, fmt.Errorf("usage: tick [n]")
		}
		if len(cmd.args) == 1 {
			if n, err := strconv.Atoi(cmd.args[0]); err != nil || n < 1 {
				return cmd, fmt.Errorf("tick count must be a positive integer, got %q", cmd.args[0])
			}
		}
	case "enter", "exit":
		if len(cmd.args) != 1 {
			return cmd, fmt.Errorf("usage: %s <context>", cmd.name)
		}
	case "facts":
		if len(cmd.args) > 1 {
			return cmd, fmt.Errorf("usage: facts [prefix]")
		}
	case "contexts", "status", "reload", "help", "quit":
		if len(cmd.args) > 0 {
			return cmd, fmt.Errorf("%s takes no arguments", cmd.name)
		}
	default:
		return cmd, fmt.Errorf("unknown command %q (try help)", cmd.name)
	}
	return cmd, nil
}

// execute runs cmd against the host and writes the result to w. Tick,
// enter and exit must run on the goroutine that owns the engine.
func (rt *host) execute(ctx context.Context, cmd command, w io.Writer) error {
	switch cmd.name {
	case "":
		return nil
	case "emit":
		id, err := rt.engine.Emit(cmd.args[0], cmd.payload)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "queued %s (%s)\n", cmd.args[0], id)
	case "tick":
		n := 1
		if len(cmd.args) == 1 {
			n, _ = strconv.Atoi(cmd.args[0])
		}
		for range n {
			printReport(w, rt.tick(ctx))
		}
	case "enter":
		if err := rt.engine.EnterContext(rule.Scope(cmd.args[0])); err != nil {
			return err
		}
		fmt.Fprintf(w, "entered %s\n", cmd.args[0])
	case "exit":
		if err := rt.engine.ExitContext(rule.Scope(cmd.args[0])); err != nil {
			return err
		}
		fmt.Fprintf(w, "exited %s\n", cmd.args[0])
	case "facts":
		prefix := ""
		if len(cmd.args) == 1 {
			prefix = cmd.args[0]
		}
		return cli.NewFormatter(cli.FormatText).FormatTo(w, factTable(rt.engine, prefix))
	case "contexts":
		scopes := rt.engine.ActiveContexts()
		if len(scopes) == 0 {
			fmt.Fprintln(w, "no contexts entered")
			return nil
		}
		for i, s := range scopes {
			fmt.Fprintf(w, "%d  %s\n", i+1, s)
		}
	case "status":
		s := rt.manager.Status()
		fmt.Fprintf(w, "version %d: %d rule sets, %d rules, %d pending events\n",
			s.Version, s.RuleSets, s.Rules, rt.engine.Pending())
		if s.LastError != nil {
			fmt.Fprintf(w, "last reload failed: %v\n", s.LastError)
		}
	case "reload":
		if err := rt.manager.Reload(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "rule sets staged for the next tick")
	case "help":
		fmt.Fprint(w, consoleHelp)
	case "quit":
		return errQuit
	}
	return nil
}

func factTable(eng *engine.Engine, prefix string) *cli.Table {
	table := &cli.Table{Headers: []string{"KEY", "TYPE", "VALUE"}}
	db := eng.Facts()
	for _, k := range db.Keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		v, _ := db.Get(k)
		table.Append(k, v.Kind().String(), v.String())
	}
	return table
}

// printReport writes a one-line summary of a tick that processed events.
func printReport(w io.Writer, r *engine.TickReport) {
	if r.Events == 0 {
		fmt.Fprintf(w, "tick %d: idle\n", r.Tick)
		return
	}
	fmt.Fprintf(w, "tick %d: %d events, %d passes", r.Tick, r.Events, r.Passes)
	if fired := r.FiredRules(); len(fired) > 0 {
		fmt.Fprintf(w, ", fired %s", strings.Join(fired, " "))
	}
	if actions := r.Actions(); len(actions) > 0 {
		fmt.Fprintf(w, ", actions %s", strings.Join(actions, " "))
	}
	fmt.Fprintln(w)
	for _, err := range r.Errors {
		fmt.Fprintf(w, "  error [%s]: %v\n", engine.Kind(err), err)
	}
	if r.Overflow != nil {
		fmt.Fprintf(w, "  overflow: %v\n", r.Overflow)
	}
}
