package validator

import (
	"fmt"
	"regexp"
	"strings"

	"texbridge/internal/logger"
	"texbridge/internal/types"
)

// Issue is a lint finding. Syntax errors become issues with severity
// "error"; the other checks only produce warnings.
type Issue struct {
	Severity string // "error", "warning"
	Line     int
	Message  string
	Details  string
}

// LintResult contains the results of a lint run.
type LintResult struct {
	Valid   bool
	Issues  []Issue
	Summary string
}

// Lint validates content and adds document-level warnings on top of the
// syntax errors.
func Lint(lang types.Lang, content string) *LintResult {
	logger.Info("linting source", logger.String("lang", string(lang)), logger.Int("contentLength", len(content)))

	res := Validate(lang, content)
	result := &LintResult{Valid: res.IsValid, Issues: []Issue{}}
	for _, e := range res.Errors {
		result.Issues = append(result.Issues, Issue{
			Severity: "error",
			Line:     e.Line,
			Message:  e.Message,
			Details:  fmt.Sprintf("column %d (%s)", e.Column, e.Type),
		})
	}

	switch lang {
	case types.LangLaTeX:
		masked := maskLaTeX(content)
		checkDocumentStructure(content, masked, result)
		checkCommandDefinitions(masked, result)
		checkLaTeXReferences(masked, result)
	case types.LangTypst:
		checkTypstHeadings(content, result)
		checkTypstReferences(content, result)
	}

	generateSummary(result)
	logger.Info("lint completed", logger.Bool("valid", result.Valid), logger.Int("issues", len(result.Issues)))
	return result
}

// checkDocumentStructure checks the \documentclass and document environment
// layout. Fragments without \begin{document} are not checked.
func checkDocumentStructure(content, masked string, result *LintResult) {
	begin := strings.Index(masked, `\begin{document}`)
	if begin < 0 {
		return
	}
	class := strings.Index(masked, `\documentclass`)
	if class < 0 || class > begin {
		line, _ := getLineAndColumn(masked, begin)
		result.Issues = append(result.Issues, Issue{
			Severity: "warning",
			Line:     line,
			Message:  "Missing \\documentclass before \\begin{document}",
		})
	}

	end := strings.LastIndex(masked, `\end{document}`)
	if end < 0 {
		return
	}
	after := strings.TrimSpace(masked[end+len(`\end{document}`):])
	if after != "" {
		line, _ := getLineAndColumn(masked, end)
		raw := strings.TrimSpace(content[end+len(`\end{document}`):])
		result.Issues = append(result.Issues, Issue{
			Severity: "warning",
			Line:     line,
			Message:  "Content after \\end{document}",
			Details:  fmt.Sprintf("Found %d characters after \\end{document}: %s", len(raw), truncate(raw, 50)),
		})
	}
}

var definitionPattern = regexp.MustCompile(`\\(?:re)?newcommand\*?\s*\{?\\([A-Za-z@]+)\}?`)

// checkCommandDefinitions warns about commands defined twice with
// \newcommand. A \renewcommand is expected to redefine.
func checkCommandDefinitions(masked string, result *LintResult) {
	seen := make(map[string]bool)
	for _, m := range definitionPattern.FindAllStringSubmatchIndex(masked, -1) {
		name := masked[m[2]:m[3]]
		renew := strings.HasPrefix(masked[m[0]:], `\renew`)
		if seen[name] && !renew {
			line, _ := getLineAndColumn(masked, m[0])
			result.Issues = append(result.Issues, Issue{
				Severity: "warning",
				Line:     line,
				Message:  fmt.Sprintf("\\%s defined more than once", name),
				Details:  "use \\renewcommand to redefine",
			})
		}
		seen[name] = true
	}
}

var (
	latexLabelPattern = regexp.MustCompile(`\\label\{([^}]+)\}`)
	latexRefPattern   = regexp.MustCompile(`\\(?:ref|eqref|autoref|cref|Cref|pageref)\{([^}]+)\}`)
	typstLabelPattern = regexp.MustCompile(`<([A-Za-z0-9_:.\-]+)>`)
	typstRefPattern   = regexp.MustCompile(`(?:^|[^\w@])@([A-Za-z0-9_:\-]+(?:\.[A-Za-z0-9_:\-]+)*)`)
)

func checkLaTeXReferences(masked string, result *LintResult) {
	labels := make(map[string]bool)
	for _, m := range latexLabelPattern.FindAllStringSubmatch(masked, -1) {
		labels[m[1]] = true
	}
	for _, m := range latexRefPattern.FindAllStringSubmatchIndex(masked, -1) {
		for _, key := range strings.Split(masked[m[2]:m[3]], ",") {
			key = strings.TrimSpace(key)
			if key == "" || labels[key] {
				continue
			}
			line, _ := getLineAndColumn(masked, m[0])
			result.Issues = append(result.Issues, Issue{
				Severity: "warning",
				Line:     line,
				Message:  fmt.Sprintf("reference to undefined label %q", key),
			})
		}
	}
}

// checkTypstReferences warns about @key references without a matching
// label. Documents with a bibliography are skipped since the key may be a
// citation.
func checkTypstReferences(content string, result *LintResult) {
	if strings.Contains(content, "#bibliography(") {
		return
	}
	labels := make(map[string]bool)
	for _, m := range typstLabelPattern.FindAllStringSubmatch(content, -1) {
		labels[m[1]] = true
	}
	for _, m := range typstRefPattern.FindAllStringSubmatchIndex(content, -1) {
		key := content[m[2]:m[3]]
		if labels[key] {
			continue
		}
		line, _ := getLineAndColumn(content, m[2]-1)
		result.Issues = append(result.Issues, Issue{
			Severity: "warning",
			Line:     line,
			Message:  fmt.Sprintf("reference to undefined label %q", key),
		})
	}
}

// checkTypstHeadings warns about "=Title" lines, which Typst reads as text.
func checkTypstHeadings(content string, result *LintResult) {
	inRaw := false
	for n, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inRaw = !inRaw
			continue
		}
		if inRaw || !strings.HasPrefix(trimmed, "=") {
			continue
		}
		rest := strings.TrimLeft(trimmed, "=")
		if rest != "" && rest[0] != ' ' && rest[0] != '=' && rest[0] != '>' {
			result.Issues = append(result.Issues, Issue{
				Severity: "warning",
				Line:     n + 1,
				Message:  "heading marker without a following space",
				Details:  truncate(trimmed, 60),
			})
		}
	}
}

// generateSummary creates a human-readable summary of lint results
func generateSummary(result *LintResult) {
	if result.Valid && len(result.Issues) == 0 {
		result.Summary = "✓ validation passed with no issues"
		return
	}

	errorCount := 0
	warningCount := 0
	for _, issue := range result.Issues {
		if issue.Severity == "error" {
			errorCount++
		} else {
			warningCount++
		}
	}

	if errorCount > 0 {
		result.Summary = fmt.Sprintf("✗ Validation failed: %d error(s), %d warning(s)", errorCount, warningCount)
	} else {
		result.Summary = fmt.Sprintf("⚠ Validation passed with %d warning(s)", warningCount)
	}
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// FormatIssues formats lint issues for display
func FormatIssues(issues []Issue) string {
	if len(issues) == 0 {
		return "No issues found"
	}

	var sb strings.Builder
	for i, issue := range issues {
		icon := "⚠"
		if issue.Severity == "error" {
			icon = "✗"
		}

		sb.WriteString(fmt.Sprintf("%s [%s] %s", icon, strings.ToUpper(issue.Severity), issue.Message))
		if issue.Line > 0 {
			sb.WriteString(fmt.Sprintf(" (line: %d)", issue.Line))
		}
		if issue.Details != "" {
			sb.WriteString(fmt.Sprintf("\n  Details: %s", issue.Details))
		}
		if i < len(issues)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
