package main

import (
	"os"
	"path/filepath"

	"texbridge/internal/logger"
	"texbridge/internal/source"
	"texbridge/internal/types"
)

// readInput reads the file named by the first argument, or stdin when there
// is none or it is "-".
func readInput(args []string) (string, error) {
	var (
		text string
		enc  source.Encoding
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		text, enc, err = source.Read(os.Stdin)
	} else {
		text, enc, err = source.ReadFile(args[0])
	}
	if err != nil {
		return "", err
	}
	logger.Debug("input read", logger.String("encoding", string(enc)), logger.Int("length", len(text)))
	return text, nil
}

// writeOutput writes text to path, or to stdout when path is empty.
func writeOutput(path, text string) error {
	if path == "" {
		_, err := os.Stdout.WriteString(text)
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return types.NewAppError(types.ErrIO, "failed to create output directory", err)
		}
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return types.NewAppError(types.ErrIO, "failed to write "+path, err)
	}
	return nil
}

// langFromArgs guesses the language from the input file extension.
func langFromArgs(args []string) (types.Lang, bool) {
	if len(args) == 0 || args[0] == "-" {
		return "", false
	}
	lang, err := types.ParseLang(filepath.Ext(args[0]))
	return lang, err == nil
}
