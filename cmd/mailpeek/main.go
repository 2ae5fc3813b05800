// Command mailpeek prints a short summary of every INBOX message matching an
// IMAP search query.
//
// Connection settings come from IMAP_HOST, IMAP_PORT, IMAP_USERNAME,
// IMAP_PASSWORD and IMAP_SEARCH, optionally pre-populated from a .env file.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mailpeek/mailpeek/config"
	"github.com/mailpeek/mailpeek/imap"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mailpeek: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile       string
	configFile    string
	verbose       bool
	missingDate   string
	previewLength int
}

func newRootCmd(out io.Writer) *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "mailpeek",
		Short:         "Search INBOX and print subject, date and a body preview of each match",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.execute(cmd, out)
		},
	}
	cmd.Flags().StringVar(&o.envFile, "env-file", ".env", "File to pre-populate the environment from")
	cmd.Flags().StringVar(&o.configFile, "config", "", "Optional settings file (yaml, toml, json or env)")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Log IMAP commands and responses")
	cmd.Flags().StringVar(&o.missingDate, "missing-date", "", "What to do with a message without a date: abort or skip")
	cmd.Flags().IntVar(&o.previewLength, "preview-length", 0, "Body preview length in characters")
	return cmd
}

func (o *options) execute(cmd *cobra.Command, out io.Writer) error {
	zl, err := newLogger(o.verbose)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	log := zapLogger{s: zl.Sugar()}
	imap.SetLogger(log)
	imap.Verbose = o.verbose

	settings, err := config.Load(cmd.Context(), config.Options{
		EnvFile:         o.envFile,
		EnvFileRequired: cmd.Flags().Changed("env-file"),
		ConfigFile:      o.configFile,
	})
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("missing-date") {
		if settings.MissingDate, err = config.ParseMissingDatePolicy(o.missingDate); err != nil {
			return err
		}
	}
	if cmd.Flags().Changed("preview-length") {
		if o.previewLength < 0 {
			return fmt.Errorf("%w: --preview-length=%d is negative", config.ErrInvalid, o.previewLength)
		}
		settings.PreviewLength = o.previewLength
	}

	imap.DialRetries = settings.DialRetries
	imap.DialTimeout = settings.DialTimeout
	imap.CommandTimeout = settings.CommandTimeout
	imap.TLSSkipVerify = settings.TLSSkipVerify

	r := &runner{settings: settings, out: out, log: log}
	return r.run()
}
