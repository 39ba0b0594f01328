package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"texbridge/internal/analysis"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics [file]",
	Short: "Print the structural metrics of a source as JSON",
	Long: `Metrics counts headings, equations, figures, tables, citations, references,
labels, list items, loss markers and parse errors. These are the numbers the
repair gate compares before and after a repair.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		lang, err := sourceLang(cmd, args)
		if err != nil {
			return err
		}
		input, err := readInput(args)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(analysis.Measure(lang, input), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	metricsCmd.Flags().String("lang", "", "source language: typst or latex (default: from the file extension)")

	rootCmd.AddCommand(metricsCmd)
}
