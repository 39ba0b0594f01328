package loss

import (
	"fmt"
	"strings"

	"texbridge/internal/types"
)

// MarkerPrefix starts every inline loss marker.
const MarkerPrefix = "texbridge:loss:"

// MarkerText renders the body of an inline marker for r, without comment
// delimiters. The name is appended when it adds information.
func MarkerText(r Record) string {
	s := fmt.Sprintf("%s%d %s", MarkerPrefix, r.ID, r.Kind)
	if r.Name != "" {
		s += " " + sanitize(r.Name)
	}
	return s
}

// MarkerComment wraps a marker body in lang's comment syntax.
func MarkerComment(body string, lang types.Lang) string {
	if lang == types.LangLaTeX {
		return "% " + body
	}
	return "/* " + body + " */"
}

// CountMarkers counts inline markers in text.
func CountMarkers(text string) int {
	return strings.Count(text, MarkerPrefix)
}

// Reconcile leaves exactly one marker per record in text, which is written
// in lang. Repeated markers after the first are removed. Records that have
// no marker, such as macro argument mismatches, get one appended on its own
// line at the end.
func Reconcile(text string, records []Record, lang types.Lang) string {
	var missing []string
	for _, r := range records {
		body := MarkerText(r)
		i := strings.Index(text, body)
		if i < 0 {
			missing = append(missing, MarkerComment(body, lang))
			continue
		}
		head, rest := text[:i+len(body)], text[i+len(body):]
		if !strings.Contains(rest, body) {
			continue
		}
		comment := MarkerComment(body, lang)
		rest = strings.ReplaceAll(rest, comment+" ", "")
		rest = strings.ReplaceAll(rest, comment+"\n", "")
		rest = strings.ReplaceAll(rest, comment, "")
		text = head + strings.ReplaceAll(rest, body, "")
	}
	if len(missing) == 0 {
		return text
	}
	if text != "" && !strings.HasSuffix(text, "\n") {
		text += "\n"
	}
	return text + strings.Join(missing, "\n") + "\n"
}

// sanitize keeps marker bodies on one line and free of comment terminators.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "*/", "* /")
	return s
}
