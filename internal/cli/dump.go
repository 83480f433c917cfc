package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreyvit/sdstore"
)

func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	var noValues bool
	cmd := &cobra.Command{
		Use:           "dump <file>",
		Short:         "Print types, elements and samples of an SD file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := sdstore.DumpAll
			if noValues {
				flags = sdstore.DumpTypes | sdstore.DumpElements
			}
			text, err := dumpFile(args[0], flags, rootOpts.fileOptions(cmd))
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), text)
			return err
		},
	}
	cmd.Flags().BoolVar(&noValues, "no-values", false, "omit samples")
	return cmd
}

func dumpFile(path string, flags sdstore.DumpFlags, opt sdstore.Options) (string, error) {
	f, err := sdstore.Open(path, opt)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "cannot open "+path, err)
	}
	text := f.Dump(flags)
	if err := f.Close(); err != nil {
		return "", WrapExitError(ExitCommandError, "cannot close "+path, err)
	}
	return text, nil
}
