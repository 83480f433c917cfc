package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	diffpatch "github.com/sergi/go-diff/diffmatchpatch"

	"github.com/andreyvit/sdstore"
)

func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <a> <b>",
		Short: "Compare the contents of two SD files",
		Long: `Compare two SD files by their textual dumps.

Exits with 0 when the files hold the same types, elements and samples,
1 when they differ and 2 on errors.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := dumpFile(args[0], sdstore.DumpAll, rootOpts.fileOptions(cmd))
			if err != nil {
				return err
			}
			b, err := dumpFile(args[1], sdstore.DumpAll, rootOpts.fileOptions(cmd))
			if err != nil {
				return err
			}
			if a == b {
				return nil
			}
			w := cmd.OutOrStdout()
			writeLineDiff(w, a, b, useColor(rootOpts.Color, w))
			return NewExitError(ExitFailure, fmt.Sprintf("%s and %s differ", args[0], args[1]))
		},
	}
	return cmd
}

func useColor(mode string, w io.Writer) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// writeLineDiff prints a and b line by line, prefixing removed lines with
// "-", added ones with "+" and unchanged ones with " ".
func writeLineDiff(w io.Writer, a, b string, colored bool) {
	del := color.New(color.FgRed)
	ins := color.New(color.FgGreen)
	if colored {
		del.EnableColor()
		ins.EnableColor()
	} else {
		del.DisableColor()
		ins.DisableColor()
	}

	dmp := diffpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)
	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			line = strings.TrimSuffix(line, "\n")
			switch d.Type {
			case diffpatch.DiffDelete:
				del.Fprintln(w, "-"+line)
			case diffpatch.DiffInsert:
				ins.Fprintln(w, "+"+line)
			case diffpatch.DiffEqual:
				fmt.Fprintln(w, " "+line)
			}
		}
	}
}
