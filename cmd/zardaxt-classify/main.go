package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"

	"github.com/Xxx-Bin/zardaxt/internal/osfp"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "zardaxt-classify:", err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		inputFile  string
		outputFile string
		dbFile     string
		top        int
		workers    int
		full       bool
		verbose    bool
		cpuprofile string
	)

	cmd := &cobra.Command{
		Use:   "zardaxt-classify --db database.json [-i fingerprints.json] [-o results.jsonl]",
		Short: "Classify a saved fingerprint log against the reference database",
		Example: `
  zardaxt-classify --db database/combined.json -i fingerprints.json
  zardaxt-classify --db database/combined.json -i fingerprints.json --full -o classified.jsonl`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("cpuprofile: %w", err)
				}
				pprof.StartCPUProfile(f)
				defer pprof.StopCPUProfile()
			}

			db, err := osfp.LoadDatabase(dbFile)
			if err != nil {
				return err
			}

			var reader io.Reader = os.Stdin
			if inputFile != "" && inputFile != "-" {
				f, err := os.Open(inputFile)
				if err != nil {
					return fmt.Errorf("error opening input: %w", err)
				}
				defer f.Close()
				reader = f
			}

			var writer io.Writer = cmd.OutOrStdout()
			if outputFile != "" {
				f, err := os.Create(outputFile)
				if err != nil {
					return fmt.Errorf("error creating output: %w", err)
				}
				defer f.Close()
				writer = f
			}

			st, err := classifyLog(reader, writer, db, options{Top: top, Workers: workers, Full: full})
			if err != nil {
				return err
			}
			if verbose {
				w := cmd.ErrOrStderr()
				fmt.Fprintf(w, "---\n")
				fmt.Fprintf(w, "fingerprints: %d\n", st.Total)
				fmt.Fprintf(w, "exact:        %d (%.1f%%)\n", st.Exact, pct(st.Exact, st.Total))
				fmt.Fprintf(w, "db entries:   %d\n", db.Len())
				fmt.Fprintf(w, "workers:      %d\n", st.Workers)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&inputFile, "input", "i", "", "fingerprint log (default stdin)")
	flags.StringVarP(&outputFile, "output", "o", "", "output JSONL file (default stdout)")
	flags.StringVar(&dbFile, "db", "database/combined.json", "reference fingerprint database")
	flags.IntVar(&top, "top", osfp.DefaultTopN, "number of best guesses to keep")
	flags.IntVarP(&workers, "workers", "w", runtime.NumCPU(), "number of parallel workers")
	flags.BoolVar(&full, "full", false, "write full classifications instead of result records")
	flags.BoolVarP(&verbose, "verbose", "v", false, "print match stats to stderr")
	flags.StringVar(&cpuprofile, "cpuprofile", "", "write CPU profile to file")
	return cmd
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
