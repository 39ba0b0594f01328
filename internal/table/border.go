package table

import "texbridge/internal/ast"

// Stroke weights of the booktabs idiom in Typst.
const (
	HeavyRule = "0.08em"
	LightRule = "0.05em"
)

// Classify derives the border idiom of a table from its rules.
func Classify(t *ast.Table) ast.BorderStyle {
	var booktabs, full, partial int
	count := func(rules []ast.Rule) {
		for _, r := range rules {
			switch r.Kind {
			case ast.RuleTop, ast.RuleMid, ast.RuleBottom:
				booktabs++
			case ast.RuleFull:
				full++
			case ast.RulePartial:
				partial++
			}
		}
	}
	for _, row := range t.Rows {
		count(row.RulesAbove)
	}
	count(t.RulesBelow)

	switch {
	case booktabs+full+partial == 0 && len(t.VRules) == 0:
		return ast.BorderNone
	case booktabs > 0 && full == 0 && len(t.VRules) == 0:
		return ast.BorderRuled
	case isGrid(t):
		return ast.BorderGrid
	}
	return ast.BorderCustom
}

// isGrid reports whether every row and column boundary carries a full rule.
func isGrid(t *ast.Table) bool {
	if len(t.Rows) == 0 || len(t.VRules) != t.Columns+1 {
		return false
	}
	hasFull := func(rules []ast.Rule) bool {
		for _, r := range rules {
			if r.Kind == ast.RuleFull {
				return true
			}
		}
		return false
	}
	for _, row := range t.Rows {
		if !hasFull(row.RulesAbove) {
			return false
		}
	}
	return hasFull(t.RulesBelow)
}

// ApplyGrid gives t full rules on every boundary, the meaning of Typst's
// default table stroke.
func ApplyGrid(t *ast.Table) {
	t.VRules = t.VRules[:0]
	for c := 0; c <= t.Columns; c++ {
		t.VRules = append(t.VRules, c)
	}
	for _, row := range t.Rows {
		row.RulesAbove = []ast.Rule{{Kind: ast.RuleFull}}
	}
	t.RulesBelow = []ast.Rule{{Kind: ast.RuleFull}}
	t.Border = ast.BorderGrid
}

// RuleStroke returns the Typst stroke weight for a rule, "" for the default.
func RuleStroke(k ast.RuleKind) string {
	switch k {
	case ast.RuleTop, ast.RuleBottom:
		return HeavyRule
	case ast.RuleMid, ast.RulePartial:
		return LightRule
	}
	return ""
}

// RuleFromStroke maps a Typst hline back to a rule kind. first and last
// tell whether the line sits above the first row or below the last one.
// mapped is false for weights outside the booktabs idiom.
func RuleFromStroke(stroke string, partial, first, last bool) (kind ast.RuleKind, mapped bool) {
	if partial {
		return ast.RulePartial, stroke == "" || stroke == LightRule
	}
	switch stroke {
	case HeavyRule:
		if first {
			return ast.RuleTop, true
		}
		if last {
			return ast.RuleBottom, true
		}
		return ast.RuleMid, false
	case LightRule:
		return ast.RuleMid, true
	case "":
		return ast.RuleFull, true
	}
	return ast.RuleFull, false
}

// AlignFromSpec maps a LaTeX column letter to an alignment.
func AlignFromSpec(letter byte) (ast.Align, bool) {
	switch letter {
	case 'l':
		return ast.AlignLeft, true
	case 'c':
		return ast.AlignCenter, true
	case 'r':
		return ast.AlignRight, true
	case 'p', 'm', 'b', 'X':
		return ast.AlignLeft, true
	}
	return ast.AlignDefault, false
}

// SpecLetter maps an alignment to a LaTeX column letter.
func SpecLetter(a ast.Align) string {
	switch a {
	case ast.AlignCenter:
		return "c"
	case ast.AlignRight:
		return "r"
	}
	return "l"
}

// AlignFromName maps a Typst alignment keyword.
func AlignFromName(name string) (ast.Align, bool) {
	switch name {
	case "left", "start":
		return ast.AlignLeft, true
	case "center":
		return ast.AlignCenter, true
	case "right", "end":
		return ast.AlignRight, true
	}
	return ast.AlignDefault, false
}
