/*
Package cli provides the output formatting, error types and signal handling
shared by the covenant commands.

Output Formatting:

Results print as aligned text, JSON, YAML or CSV. Results that implement
Tabular render as columns in text mode and are the only values CSV accepts:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Exit Codes:

Commands return errors and main maps them with ExitCode. A blocked
enforcement exits with ExitBlocked, configuration problems with ExitConfig.

Signal Handling:

	ctx, stop := cli.SetupSignalHandler(context.Background())
	defer stop()
*/
package cli
