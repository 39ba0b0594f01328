// Package types defines core data types and enums shared across the texbridge packages.
package types

import "fmt"

// Lang 源/目标语言
type Lang string

const (
	LangLaTeX Lang = "latex"
	LangTypst Lang = "typst"
)

// Direction 转换方向
type Direction string

const (
	LaTeXToTypst Direction = "latex-to-typst"
	TypstToLaTeX Direction = "typst-to-latex"
)

// Source returns the language the direction reads.
func (d Direction) Source() Lang {
	if d == TypstToLaTeX {
		return LangTypst
	}
	return LangLaTeX
}

// Target returns the language the direction writes.
func (d Direction) Target() Lang {
	if d == TypstToLaTeX {
		return LangLaTeX
	}
	return LangTypst
}

// Valid reports whether d is one of the two supported directions.
func (d Direction) Valid() bool {
	return d == LaTeXToTypst || d == TypstToLaTeX
}

// ParseDirection maps a target language name ("typst", "latex") or a full
// direction name to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "typst", string(LaTeXToTypst):
		return LaTeXToTypst, nil
	case "latex", "tex", string(TypstToLaTeX):
		return TypstToLaTeX, nil
	}
	return "", NewAppError(ErrInvalidInput, fmt.Sprintf("unknown direction %q", s), nil)
}

// ParseLang maps a language name or file extension to a Lang.
func ParseLang(s string) (Lang, error) {
	switch s {
	case "latex", "tex", ".tex":
		return LangLaTeX, nil
	case "typst", "typ", ".typ":
		return LangTypst, nil
	}
	return "", NewAppError(ErrInvalidInput, fmt.Sprintf("unknown language %q", s), nil)
}

// Config 应用配置
type Config struct {
	MaxMacroDepth     int          `mapstructure:"max_macro_depth" yaml:"max_macro_depth"`
	MaxLoopIterations int          `mapstructure:"max_loop_iterations" yaml:"max_loop_iterations"`
	Features          []string     `mapstructure:"features" yaml:"features"`
	LossComments      bool         `mapstructure:"loss_comments" yaml:"loss_comments"`
	Repair            RepairConfig `mapstructure:"repair" yaml:"repair"`
	Log               LogConfig    `mapstructure:"log" yaml:"log"`
	Corpus            CorpusConfig `mapstructure:"corpus" yaml:"corpus"`
}

// RepairConfig 修复配置
type RepairConfig struct {
	Enabled       bool   `mapstructure:"enabled" yaml:"enabled"`
	Command       string `mapstructure:"command" yaml:"command"`
	UseAgent      bool   `mapstructure:"use_agent" yaml:"use_agent"`
	TimeoutSecond int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	AllowNoGain   bool   `mapstructure:"allow_no_gain" yaml:"allow_no_gain"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key" yaml:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url"`
	OpenAIModel   string `mapstructure:"openai_model" yaml:"openai_model"`
	MaxSteps      int    `mapstructure:"max_steps" yaml:"max_steps"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// CorpusConfig 语料库批处理配置
type CorpusConfig struct {
	Database    string `mapstructure:"database" yaml:"database"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// ValidationResult 语法验证结果
type ValidationResult struct {
	IsValid bool          `json:"is_valid"`
	Errors  []SyntaxError `json:"errors"`
}

// SyntaxError 语法错误
type SyntaxError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e SyntaxError) String() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrParse        ErrorCode = "PARSE_ERROR"
	ErrIO           ErrorCode = "IO_ERROR"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrRepair       ErrorCode = "REPAIR_ERROR"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrStorage      ErrorCode = "STORAGE_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}
