package cli

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/sdstore"
	"github.com/andreyvit/sdstore/mmap"
)

func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "import <csv> <out>",
		Short: "Convert a CSV trace into a new SD file",
		Long: `Convert a CSV trace into a new SD file.

The header row names one element per column as "name:type", where type is a
scalar type such as int8, uint32, float64, bool or char. Each following row
holds the samples of one cycle; an empty cell records an absent sample.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := sdstore.ParseKind(kindName)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --kind", err)
			}
			n, err := importCSV(args[0], args[1], kind, rootOpts.fileOptions(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d cycles into %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "kind", sdstore.KindSignal.String(), "kind of the created elements")
	return cmd
}

type importColumn struct {
	elem *sdstore.Element
	typ  *sdstore.ScalarType
}

func importCSV(csvPath, outPath string, kind sdstore.Kind, opt sdstore.Options) (rows int, err error) {
	m, err := mmap.Open(csvPath, mmap.SequentialAccess)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "cannot read "+csvPath, err)
	}
	defer m.Close()

	r := csv.NewReader(bytes.NewReader(m.Bytes()))
	r.ReuseRecord = true
	header, err := r.Read()
	if err == io.EOF {
		return 0, NewExitError(ExitCommandError, csvPath+": missing header row")
	} else if err != nil {
		return 0, WrapExitError(ExitCommandError, "cannot parse "+csvPath, err)
	}
	header = append([]string(nil), header...)

	f, err := sdstore.Create(outPath, opt)
	if err != nil {
		return 0, WrapExitError(ExitCommandError, "cannot create "+outPath, err)
	}
	defer func() {
		cerr := f.Close()
		if err != nil {
			os.Remove(outPath)
		} else if cerr != nil {
			err = WrapExitError(ExitCommandError, "cannot write "+outPath, cerr)
		}
	}()

	cols := make([]importColumn, len(header))
	for i, h := range header {
		name, typeName, ok := strings.Cut(h, ":")
		if !ok {
			return 0, NewExitError(ExitCommandError, fmt.Sprintf("column %d: header %q is not name:type", i+1, h))
		}
		st := sdstore.ScalarByName(strings.TrimSpace(typeName))
		if st == nil {
			return 0, NewExitError(ExitCommandError, fmt.Sprintf("column %d: unknown scalar type %q", i+1, typeName))
		}
		e, err := f.AddElement(strings.TrimSpace(name), st, kind)
		if err != nil {
			return 0, WrapExitError(ExitCommandError, fmt.Sprintf("column %d", i+1), err)
		}
		cols[i] = importColumn{e, st}
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return rows, WrapExitError(ExitCommandError, "cannot parse "+csvPath, err)
		}
		rows++
		for i, cell := range record {
			v, err := parseCell(cols[i].typ, cell)
			if err == nil {
				err = cols[i].elem.AppendValue(v)
			}
			if err != nil {
				return rows, WrapExitError(ExitCommandError, fmt.Sprintf("row %d, column %d", rows+1, i+1), err)
			}
		}
	}
	return rows, nil
}

// parseCell converts a CSV cell into a sample of st; empty cells are absent.
func parseCell(st *sdstore.ScalarType, cell string) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch st.ScalarKind() {
	case sdstore.ScalarChar:
		return cell, nil
	case sdstore.ScalarBool:
		return strconv.ParseBool(strings.TrimSpace(cell))
	case sdstore.ScalarInt8, sdstore.ScalarInt16, sdstore.ScalarInt32, sdstore.ScalarInt64:
		return strconv.ParseInt(strings.TrimSpace(cell), 10, 64)
	case sdstore.ScalarUint8, sdstore.ScalarUint16, sdstore.ScalarUint32, sdstore.ScalarUint64:
		return strconv.ParseUint(strings.TrimSpace(cell), 10, 64)
	default:
		return strconv.ParseFloat(strings.TrimSpace(cell), st.Bits())
	}
}
