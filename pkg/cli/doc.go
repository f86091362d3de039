/*
Package cli provides the helpers shared by the fre commands.

Output Formatting:

Command results are written as text, JSON or CSV. Tabular results use Table,
which every formatter understands:

	table := &cli.Table{Headers: []string{"RULE", "EVENT"}}
	table.Append("death", "damage")
	if err := cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, table); err != nil {
		return err
	}

Errors and Exit Codes:

ConfigError and CommandError carry the exit status of the process. ExitCode
maps any error returned by a command to the code main should exit with.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
