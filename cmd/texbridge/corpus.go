package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"texbridge/internal/corpus"
)

var corpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Convert a directory of templates and track the results",
	Long: `Corpus converts every .tex and .typ file under a directory and stores the
per-document results in a SQLite index. Each run is compared with the previous
run of the same documents; changed output is reported as drift.`,
}

var corpusRunCmd = &cobra.Command{
	Use:   "run <dir>",
	Short: "Convert every document under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpusStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		opts, err := cfgManager.ToOptions()
		if err != nil {
			return err
		}
		concurrency := cfgManager.GetConfig().Corpus.Concurrency
		if cmd.Flags().Changed("concurrency") {
			concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		summary, err := corpus.NewRunner(store, opts, concurrency).Run(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printSummary(cmd, summary)
	},
}

var corpusWatchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-convert documents under a directory when they change",
	Long: `Watch converts changed .tex and .typ files once they have been quiet for
the debounce interval. Each batch is stored as a run and printed, so drift is
reported against the previous version of every changed document.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpusStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		opts, err := cfgManager.ToOptions()
		if err != nil {
			return err
		}
		debounce, _ := cmd.Flags().GetDuration("debounce")
		runner := corpus.NewRunner(store, opts, cfgManager.GetConfig().Corpus.Concurrency)

		w, err := corpus.NewWatcher(runner, args[0], debounce, func(s *corpus.Summary) {
			if err := printSummary(cmd, s); err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(os.Stderr, "watching %s, press Ctrl-C to stop\n", args[0])
		return w.Run(ctx)
	},
}

var corpusReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show a stored corpus run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpusStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		runID, _ := cmd.Flags().GetString("run")
		summary, err := corpus.Report(store, runID)
		if err != nil {
			return err
		}
		return printSummary(cmd, summary)
	},
}

var corpusRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored corpus runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openCorpusStore(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.ListRuns(limit)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tSTARTED\tROOT\tDOCUMENTS\tFAILURES")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n",
				r.ID, r.StartedAt.Format(time.RFC3339), r.Root, r.Documents, r.Failures)
		}
		return tw.Flush()
	},
}

func init() {
	corpusCmd.PersistentFlags().String("db", "", "corpus index database (default: corpus.database from config)")
	corpusCmd.PersistentFlags().Bool("json", false, "print the summary as JSON")

	corpusRunCmd.Flags().Int("concurrency", corpus.DefaultConcurrency, "number of documents converted in parallel")
	corpusWatchCmd.Flags().Duration("debounce", corpus.DefaultDebounce, "quiet period before a changed file is converted")
	corpusReportCmd.Flags().String("run", "", "run ID (default: latest run)")
	corpusRunsCmd.Flags().Int("limit", 20, "maximum number of runs to list, 0 for all")

	corpusCmd.AddCommand(corpusRunCmd, corpusWatchCmd, corpusReportCmd, corpusRunsCmd)
	rootCmd.AddCommand(corpusCmd)
}

func openCorpusStore(cmd *cobra.Command) (*corpus.Store, error) {
	path, _ := cmd.Flags().GetString("db")
	if path == "" {
		path = cfgManager.GetConfig().Corpus.Database
	}
	return corpus.NewStore(path)
}

func printSummary(cmd *cobra.Command, s *corpus.Summary) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	return corpus.WriteSummary(os.Stdout, s)
}
