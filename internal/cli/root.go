package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/andreyvit/sdstore"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Color   string // "auto" | "always" | "never"
}

// NewRootCommand creates the root command of sdtool.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sdtool",
		Short: "Inspect and convert SD trace files",
		Long:  "sdtool dumps, compares and imports SD files, the typed binary containers of simulation traces.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch opts.Color {
			case "auto", "always", "never":
				return nil
			default:
				return NewExitError(ExitCommandError, "invalid --color "+opts.Color+": must be auto, always or never")
			}
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log container operations to stderr")
	cmd.PersistentFlags().StringVar(&opts.Color, "color", "auto", "colorize output (auto|always|never)")

	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewImportCommand(opts))

	return cmd
}

func (opts *RootOptions) fileOptions(cmd *cobra.Command) sdstore.Options {
	var o sdstore.Options
	if opts.Verbose {
		o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	} else {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}
