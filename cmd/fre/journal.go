package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/fre/pkg/cli"
	"mercator-hq/fre/pkg/journal"
	"mercator-hq/fre/pkg/telemetry/logging"
)

var journalFlags struct {
	path      string
	kind      string
	rule      string
	event     string
	since     string
	until     string
	limit     int
	format    string
	olderThan time.Duration
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the activation journal",
	Long: `Query and prune the SQLite activation journal written by fre run when
journal.enabled is set.

Subcommands:
  query   - List recorded firings, rule errors and cascade overflows
  prune   - Delete old records`,
}

var journalQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query journal records",
	Long: `Query journal records, newest first.

Time Format:
  --since and --until take RFC3339 timestamps or a duration back from now.
  Example: --since 1h, --since 2026-01-01T00:00:00Z

Examples:
  # Last 20 firings of one rule
  fre journal query --kind firing --rule death --limit 20

  # Rule errors of the last hour as CSV
  fre journal query --kind error --since 1h --format csv`,
	RunE: queryJournal,
}

var journalPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old journal records",
	RunE:  pruneJournal,
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalQueryCmd, journalPruneCmd)

	journalCmd.PersistentFlags().StringVar(&journalFlags.path, "path", "", "journal database (default: journal.path from config)")

	journalQueryCmd.Flags().StringVar(&journalFlags.kind, "kind", "", "record kind: firing, error, overflow")
	journalQueryCmd.Flags().StringVar(&journalFlags.rule, "rule", "", "filter by rule id")
	journalQueryCmd.Flags().StringVar(&journalFlags.event, "event", "", "filter by event name")
	journalQueryCmd.Flags().StringVar(&journalFlags.since, "since", "", "records at or after this time")
	journalQueryCmd.Flags().StringVar(&journalFlags.until, "until", "", "records before this time")
	journalQueryCmd.Flags().IntVar(&journalFlags.limit, "limit", journal.DefaultLimit, "max results")
	journalQueryCmd.Flags().StringVar(&journalFlags.format, "format", "text", "output format: text, json, csv")

	journalPruneCmd.Flags().DurationVar(&journalFlags.olderThan, "older-than", 30*24*time.Hour, "delete records older than this")
}

func openJournal() (*journal.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	jcfg := cfg.Journal
	if journalFlags.path != "" {
		jcfg.Path = journalFlags.path
	}
	store, err := journal.Open(&jcfg, logging.Discard())
	if err != nil {
		return nil, cli.NewCommandError("journal", err)
	}
	return store, nil
}

func queryJournal(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(journalFlags.format)
	if err != nil {
		return err
	}
	filter := &journal.Filter{
		Kind:   journal.Kind(journalFlags.kind),
		RuleID: journalFlags.rule,
		Event:  journalFlags.event,
		Limit:  journalFlags.limit,
	}
	now := time.Now()
	if filter.Since, err = parseTime(journalFlags.since, now); err != nil {
		return cli.NewConfigError("since", err.Error())
	}
	if filter.Until, err = parseTime(journalFlags.until, now); err != nil {
		return cli.NewConfigError("until", err.Error())
	}
	if err := filter.Validate(); err != nil {
		return cli.NewConfigError("filter", err.Error())
	}

	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Query(commandContext(cmd), filter)
	if err != nil {
		return cli.NewCommandError("journal query", err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(format).FormatTo(out, records)
	}
	if len(records) == 0 && format == cli.FormatText {
		fmt.Fprintln(out, "No records found")
		return nil
	}
	return cli.NewFormatter(format).FormatTo(out, recordTable(records))
}

func recordTable(records []*journal.Record) *cli.Table {
	table := &cli.Table{Headers: []string{"TIME", "TICK", "KIND", "RULE", "EVENT", "DETAIL"}}
	for _, r := range records {
		detail := r.Message
		if r.Kind == journal.KindFiring {
			var parts []string
			if len(r.Actions) > 0 {
				parts = append(parts, "actions="+strings.Join(r.Actions, ","))
			}
			if len(r.Outputs) > 0 {
				parts = append(parts, "outputs="+strings.Join(r.Outputs, ","))
			}
			detail = strings.Join(parts, " ")
		}
		table.Append(
			r.RecordedAt.Format(time.RFC3339),
			strconv.FormatUint(r.Tick, 10),
			string(r.Kind),
			r.RuleID,
			r.Event,
			detail,
		)
	}
	return table
}

func pruneJournal(cmd *cobra.Command, args []string) error {
	if journalFlags.olderThan <= 0 {
		return cli.NewConfigError("older-than", "must be positive")
	}
	store, err := openJournal()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(commandContext(cmd), time.Now().Add(-journalFlags.olderThan))
	if err != nil {
		return cli.NewCommandError("journal prune", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d record(s)\n", n)
	return nil
}

// parseTime accepts RFC3339 or a duration back from now. Empty is the zero
// time.
func parseTime(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC3339 nor a duration", s)
	}
	return t, nil
}
