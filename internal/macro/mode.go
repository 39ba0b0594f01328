package macro

import "texbridge/internal/latex"

// textArgCommands take a text-mode argument even inside math.
var textArgCommands = map[string]bool{
	"text": true, "mbox": true, "hbox": true, "textrm": true, "textup": true, "textit": true,
	"textbf": true, "texttt": true, "textsf": true, "textnormal": true, "intertext": true,
}

type envMode struct {
	name     string
	prevMath bool
	raw      bool
}

// modeTracker follows math/text mode over the emitted token stream so that
// \ifmmode can be decided where the parser would see it.
type modeTracker struct {
	math    bool
	textArg bool
	raw     int
	groups  []bool
	envs    []envMode
}

func (m *modeTracker) snapshot() modeTracker {
	s := *m
	s.groups = append([]bool(nil), m.groups...)
	s.envs = append([]envMode(nil), m.envs...)
	return s
}

func (m *modeTracker) observe(t latex.Token) {
	switch t.Kind {
	case latex.Space:
		return
	case latex.MathShift:
		if m.raw == 0 {
			m.math = !m.math
		}
	case latex.BeginGroup:
		m.groups = append(m.groups, m.math)
		if m.textArg {
			m.math = false
		}
	case latex.EndGroup:
		if n := len(m.groups); n > 0 {
			m.math = m.groups[n-1]
			m.groups = m.groups[:n-1]
		}
	case latex.Command:
		switch t.Text {
		case "(", "[":
			m.math = true
		case ")", "]":
			m.math = false
		default:
			if m.math && textArgCommands[t.Text] {
				m.textArg = true
				return
			}
		}
	}
	m.textArg = false
}

func (m *modeTracker) beginEnv(name string) {
	switch {
	case latex.IsRawEnvironment(name):
		m.envs = append(m.envs, envMode{name: name, prevMath: m.math, raw: true})
		m.raw++
	case latex.IsMathEnvironment(name):
		m.envs = append(m.envs, envMode{name: name, prevMath: m.math})
		m.math = true
	}
}

func (m *modeTracker) endEnv(name string) {
	n := len(m.envs)
	if n == 0 || m.envs[n-1].name != name {
		return
	}
	top := m.envs[n-1]
	m.envs = m.envs[:n-1]
	m.math = top.prevMath
	if top.raw {
		m.raw--
	}
}

func (m *modeTracker) context() string {
	if m.math {
		return "math"
	}
	return "text"
}
