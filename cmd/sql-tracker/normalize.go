package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"sql-tracker/pkg/tracker"

	"github.com/spf13/cobra"
)

func newNormalizeCmd() *cobra.Command {
	var showID bool

	cmd := &cobra.Command{
		Use:   "normalize [SQL...]",
		Short: "Print the cleaned form of SQL statements",
		Long: `Print the cleaned form of each argument, or of each line read from stdin
when no arguments are given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			emit := func(sql string) {
				cleaned := tracker.CleanSQLQuery(sql)
				if showID {
					fmt.Fprintf(out, "%s\t%s\n", tracker.FingerprintID(strings.ToLower(cleaned)), cleaned)
					return
				}
				fmt.Fprintln(out, cleaned)
			}

			if len(args) > 0 {
				for _, a := range args {
					emit(a)
				}
				return nil
			}
			return eachLine(cmd.InOrStdin(), emit)
		},
	}

	cmd.Flags().BoolVar(&showID, "id", false, "Prefix each line with its fingerprint id")
	return cmd
}

func eachLine(r io.Reader, fn func(string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			fn(line)
		}
	}
	return sc.Err()
}

// openInput opens path, or returns stdin for "" and "-".
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}
