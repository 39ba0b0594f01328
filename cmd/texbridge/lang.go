package main

import (
	"strings"

	"github.com/spf13/cobra"

	"texbridge/internal/types"
)

// sourceLang resolves --lang, falling back to the input file extension.
func sourceLang(cmd *cobra.Command, args []string) (types.Lang, error) {
	if name, _ := cmd.Flags().GetString("lang"); name != "" {
		return types.ParseLang(strings.ToLower(name))
	}
	if lang, ok := langFromArgs(args); ok {
		return lang, nil
	}
	return "", types.NewAppError(types.ErrInvalidInput, "cannot tell the input language, pass --lang", nil)
}
