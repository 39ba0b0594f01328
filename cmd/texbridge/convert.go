package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"texbridge/internal/loss"
	"texbridge/internal/pipeline"
	"texbridge/internal/repair"
	"texbridge/internal/table"
	"texbridge/internal/types"
)

// EnvRepairCommand names the repair command when --ai-cmd is not given.
const EnvRepairCommand = "TEXBRIDGE_AI_CMD"

var convertCmd = &cobra.Command{
	Use:   "convert [file]",
	Short: "Convert a LaTeX or Typst document",
	Long: `Convert translates a document to the language given by --to. The source
language is the other one. Input is read from the file argument or from stdin,
output goes to stdout unless -o is given.

Constructs that cannot be carried over are reported on stderr and, with
--loss-log, written as JSON. They never make the command fail; only input
that does not parse does.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().String("to", "", "target language: typst or latex")
	convertCmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	convertCmd.Flags().Bool("math", false, "treat the input as a single math formula")
	convertCmd.Flags().Bool("fragment", false, "emit only the body, without document preamble")
	convertCmd.Flags().String("loss-log", "", "write the loss report JSON to this path")
	convertCmd.Flags().Int("max-macro-depth", 0, "macro expansion depth cap")
	convertCmd.Flags().Int("max-loop-iterations", 0, "Typst loop iteration cap")
	convertCmd.Flags().StringSlice("features", nil, "enabled features: tables, graphics, references (default: all)")
	convertCmd.Flags().Bool("no-loss-comments", false, "do not embed loss markers in the output")
	convertCmd.Flags().Bool("auto-repair", false, "repair lossy output (requires --ai-cmd, "+EnvRepairCommand+" or --ai-agent)")
	convertCmd.Flags().String("ai-cmd", "", "repair command: reads JSON on stdin, writes the target text on stdout")
	convertCmd.Flags().Bool("ai-agent", false, "repair with the built-in OpenAI agent instead of a command")
	convertCmd.Flags().Bool("allow-no-gain", false, "accept a repair that does not reduce loss markers")
	convertCmd.Flags().Duration("repair-timeout", 0, "time limit for one repair attempt")
	convertCmd.Flags().BoolP("quiet", "q", false, "do not print losses to stderr")
	convertCmd.Flags().Bool("strict", false, "exit with an error when any loss was recorded")
	_ = convertCmd.MarkFlagRequired("to")

	rootCmd.AddCommand(convertCmd)
}

// lossLog is the JSON written by --loss-log.
type lossLog struct {
	RunID    string          `json:"run_id"`
	Report   loss.Report     `json:"report"`
	Metrics  loss.Metrics    `json:"metrics"`
	Coverage *table.Coverage `json:"table_coverage,omitempty"`
	Repair   *repair.Outcome `json:"repair,omitempty"`
}

func runConvert(cmd *cobra.Command, args []string) error {
	to, _ := cmd.Flags().GetString("to")
	dir, err := types.ParseDirection(strings.ToLower(to))
	if err != nil {
		return err
	}

	if err := applyConvertFlags(cmd); err != nil {
		return err
	}
	opts, err := cfgManager.ToOptions()
	if err != nil {
		return err
	}
	opts.MathOnly, _ = cmd.Flags().GetBool("math")
	opts.Fragment, _ = cmd.Flags().GetBool("fragment")
	if d, _ := cmd.Flags().GetDuration("repair-timeout"); d > 0 {
		opts.RepairTimeout = d
	}

	input, err := readInput(args)
	if err != nil {
		return err
	}

	res, err := pipeline.Convert(cmd.Context(), input, dir, opts)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if err := writeOutput(output, ensureNewline(res.Output)); err != nil {
		return err
	}

	if path, _ := cmd.Flags().GetString("loss-log"); path != "" {
		if err := writeLossLog(path, res); err != nil {
			return err
		}
	}

	if quiet, _ := cmd.Flags().GetBool("quiet"); !quiet {
		printLosses(res)
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict && len(res.Report.Losses) > 0 {
		return fmt.Errorf("%d construct(s) could not be converted", len(res.Report.Losses))
	}
	return nil
}

// applyConvertFlags copies the flags that were set onto the loaded config.
func applyConvertFlags(cmd *cobra.Command) error {
	cfg := cfgManager.GetConfig()
	flags := cmd.Flags()

	if flags.Changed("max-macro-depth") {
		cfg.MaxMacroDepth, _ = flags.GetInt("max-macro-depth")
	}
	if flags.Changed("max-loop-iterations") {
		cfg.MaxLoopIterations, _ = flags.GetInt("max-loop-iterations")
	}
	if flags.Changed("features") {
		cfg.Features, _ = flags.GetStringSlice("features")
	}
	if off, _ := flags.GetBool("no-loss-comments"); off {
		cfg.LossComments = false
	}
	if flags.Changed("allow-no-gain") {
		cfg.Repair.AllowNoGain, _ = flags.GetBool("allow-no-gain")
	}

	autoRepair, _ := flags.GetBool("auto-repair")
	if !autoRepair {
		return nil
	}
	cfg.Repair.Enabled = true
	if agent, _ := flags.GetBool("ai-agent"); agent {
		cfg.Repair.UseAgent = true
		return nil
	}
	if c, _ := flags.GetString("ai-cmd"); c != "" {
		cfg.Repair.Command = c
	} else if c := os.Getenv(EnvRepairCommand); c != "" && cfg.Repair.Command == "" {
		cfg.Repair.Command = c
	}
	if strings.TrimSpace(cfg.Repair.Command) == "" && !cfg.Repair.UseAgent {
		return types.NewAppError(types.ErrConfig, "--auto-repair requires --ai-cmd, "+EnvRepairCommand+" or --ai-agent", nil)
	}
	return nil
}

func writeLossLog(path string, res *pipeline.Result) error {
	data, err := json.MarshalIndent(lossLog{
		RunID:    res.RunID,
		Report:   res.Report,
		Metrics:  res.Metrics,
		Coverage: res.Coverage,
		Repair:   res.Repair,
	}, "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to encode loss report", err)
	}
	return writeOutput(path, string(data)+"\n")
}

func printLosses(res *pipeline.Result) {
	p := stderrPalette()
	for _, r := range res.Report.Losses {
		fmt.Fprintln(os.Stderr, p.Warn(fmt.Sprintf("loss: [%s] %s", r.Kind, r.Message)))
	}
	for _, w := range res.Report.Warnings {
		fmt.Fprintln(os.Stderr, p.Dim("warning: "+w))
	}
	if res.Repair != nil {
		if res.Repair.Accepted {
			fmt.Fprintln(os.Stderr, p.OK(fmt.Sprintf("repair (%s): accepted", res.Repair.Strategy)))
		} else {
			fmt.Fprintln(os.Stderr, p.Error(fmt.Sprintf("repair (%s): rejected", res.Repair.Strategy)))
		}
	}
}

func ensureNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
