package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"texbridge/internal/validator"
)

var lintCmd = &cobra.Command{
	Use:   "lint [file]",
	Short: "Check a LaTeX or Typst source for problems",
	Long: `Lint reports unbalanced delimiters and unclosed environments, which stop a
conversion, plus document-level warnings such as undefined references.`,
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

		result := validator.Lint(lang, input)
		out := stdoutPalette()
		fmt.Println(out.Lines(validator.FormatIssues(result.Issues)))
		fmt.Println(out.Lines(result.Summary))
		if !result.Valid {
			return fmt.Errorf("%s source does not parse", lang)
		}
		return nil
	},
}

func init() {
	lintCmd.Flags().String("lang", "", "source language: typst or latex (default: from the file extension)")

	rootCmd.AddCommand(lintCmd)
}
