package main

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// palette colors single lines for one output stream. Colors are dropped
// when the stream is not a terminal or --no-color is set.
type palette struct {
	plain bool
	err   lipgloss.Style
	warn  lipgloss.Style
	ok    lipgloss.Style
	dim   lipgloss.Style
}

func newPalette(w io.Writer, plain bool) *palette {
	r := lipgloss.NewRenderer(w)
	return &palette{
		plain: plain,
		err:   r.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
		warn:  r.NewStyle().Foreground(lipgloss.Color("#e0af68")),
		ok:    r.NewStyle().Foreground(lipgloss.Color("#9ece6a")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("#565f89")),
	}
}

func stdoutPalette() *palette { return newPalette(os.Stdout, noColor()) }
func stderrPalette() *palette { return newPalette(os.Stderr, noColor()) }

func noColor() bool {
	off, _ := rootCmd.PersistentFlags().GetBool("no-color")
	return off || os.Getenv("NO_COLOR") != ""
}

func (p *palette) paint(s lipgloss.Style, line string) string {
	if p.plain || line == "" {
		return line
	}
	return s.Render(line)
}

func (p *palette) Error(line string) string { return p.paint(p.err, line) }
func (p *palette) Warn(line string) string  { return p.paint(p.warn, line) }
func (p *palette) OK(line string) string    { return p.paint(p.ok, line) }
func (p *palette) Dim(line string) string   { return p.paint(p.dim, line) }

// Lines colors lint output by its leading marker.
func (p *palette) Lines(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "✗"):
			lines[i] = p.Error(line)
		case strings.HasPrefix(line, "⚠"):
			lines[i] = p.Warn(line)
		case strings.HasPrefix(line, "✓"):
			lines[i] = p.OK(line)
		case strings.HasPrefix(line, "  "):
			lines[i] = p.Dim(line)
		}
	}
	return strings.Join(lines, "\n")
}
