package latex

// headingLevels maps sectioning commands to heading levels.
var headingLevels = map[string]int{
	"part":          1,
	"chapter":       1,
	"section":       1,
	"subsection":    2,
	"subsubsection": 3,
	"paragraph":     4,
	"subparagraph":  5,
}

// HeadingCommand returns the sectioning command for a heading level.
func HeadingCommand(level int) string {
	switch level {
	case 1:
		return "section"
	case 2:
		return "subsection"
	case 3:
		return "subsubsection"
	case 4:
		return "paragraph"
	}
	return "subparagraph"
}

var refCommands = map[string]bool{
	"ref": true, "eqref": true, "autoref": true, "cref": true, "Cref": true, "pageref": true,
}

// citeModes maps citation commands to a cite mode: "" for plain, "p" for
// parenthetical, "t" for textual.
var citeModes = map[string]string{
	"cite": "", "citep": "p", "parencite": "p", "autocite": "p",
	"citet": "t", "textcite": "t", "nocite": "n",
}

var inlineCommands = map[string]bool{
	"textbf": true, "textit": true, "emph": true, "underline": true, "texttt": true,
	"textsc": true, "textsf": true, "textrm": true, "textup": true, "textmd": true, "textnormal": true,
	"href": true, "url": true, "footnote": true, "includegraphics": true, "label": true,
	"caption": true, "item": true, "bibitem": true, "newline": true, "linebreak": true,
	"text": true, "mbox": true, "hbox": true, "thanks": true, "and": true, "mathnormal": true,
}

var blockCommands = map[string]bool{
	"begin": true, "end": true, "par": true, "vspace": true, "hspace": true, "newpage": true,
	"clearpage": true, "cleardoublepage": true, "pagebreak": true, "title": true, "author": true,
	"date": true, "maketitle": true, "bibliography": true, "bibliographystyle": true,
	"addbibresource": true, "printbibliography": true, "tableofcontents": true,
}

// ignoredCommands carry layout or preamble state with no counterpart in the
// document tree. The parser consumes them together with their arguments.
var ignoredCommands = map[string]int{
	"documentclass": 1, "usepackage": 1, "RequirePackage": 1, "centering": 0, "noindent": 0,
	"indent": 0, "relax": 0, "protect": 0, "nobreak": 0, "raggedright": 0, "raggedleft": 0,
	"setlength": 2, "addtolength": 2, "setcounter": 2, "geometry": 1, "hypersetup": 1, "numberwithin": 2,
	"pagestyle": 1, "thispagestyle": 1, "graphicspath": 1, "makeatletter": 0, "makeatother": 0,
	"small": 0, "footnotesize": 0, "scriptsize": 0, "tiny": 0, "normalsize": 0, "large": 0,
	"Large": 0, "LARGE": 0, "huge": 0, "Huge": 0, "hfill": 0, "vfill": 0, "smallskip": 0,
	"medskip": 0, "bigskip": 0, "nonumber": 0, "notag": 0, "displaystyle": 0, "textstyle": 0,
	"scriptstyle": 0, "limits": 0, "nolimits": 0, "left": 0, "right": 0, "big": 0, "Big": 0,
	"bigg": 0, "Bigg": 0, "bigl": 0, "bigr": 0, "Bigl": 0, "Bigr": 0, "middle": 0,
	"else": 0, "fi": 0, "or": 0, "newif": 0,
}

// declarations switch the font for the rest of the enclosing group.
var declarations = map[string]string{
	"bfseries": "strong", "bf": "strong", "itshape": "emph", "it": "emph", "em": "emph",
	"ttfamily": "code", "tt": "code",
}

// tableCommands are only meaningful inside tabular bodies.
var tableCommands = map[string]bool{
	"hline": true, "toprule": true, "midrule": true, "bottomrule": true, "cline": true,
	"cmidrule": true, "multicolumn": true, "multirow": true, "cellcolor": true, "rowcolor": true,
	"tabularnewline": true, "addlinespace": true, "arraybackslash": true,
}

// lengthCommands appear as values in option lists.
var lengthCommands = map[string]bool{
	"textwidth": true, "linewidth": true, "columnwidth": true, "textheight": true,
	"paperwidth": true, "baselineskip": true, "parindent": true,
}

// controlSymbols handled by the parser itself.
var controlSymbols = map[string]bool{
	`\`: true, "(": true, ")": true, "[": true, "]": true, "-": true, "/": true, "@": true,
}

// IsStructural reports whether the parser gives name a meaning of its own,
// so the command is neither a macro nor a mapped symbol yet still known.
func IsStructural(name string) bool {
	if _, ok := headingLevels[name]; ok {
		return true
	}
	if _, ok := citeModes[name]; ok {
		return true
	}
	if _, ok := ignoredCommands[name]; ok {
		return true
	}
	if _, ok := declarations[name]; ok {
		return true
	}
	return refCommands[name] || inlineCommands[name] || blockCommands[name] ||
		tableCommands[name] || lengthCommands[name] || controlSymbols[name] ||
		name == "document" || name == "verb"
}

// rawEnvironments hold a foreign sub-language. Their commands are not LaTeX
// document markup and are never reported as unknown.
var rawEnvironments = map[string]bool{
	"tikzpicture": true,
	"pgfpicture":  true,
	"tikzcd":      true,
	"scope":       true,
}

// IsRawEnvironment reports whether env holds drawing code.
func IsRawEnvironment(env string) bool {
	return rawEnvironments[env]
}

// mathEnvironments start display math in text mode.
var mathEnvironments = map[string]bool{
	"equation": true, "equation*": true, "align": true, "align*": true, "gather": true,
	"gather*": true, "multline": true, "multline*": true, "flalign": true, "flalign*": true,
	"displaymath": true, "math": true, "eqnarray": true, "eqnarray*": true, "alignat": true,
	"alignat*": true,
}

// IsMathEnvironment reports whether env switches to math mode.
func IsMathEnvironment(env string) bool {
	return mathEnvironments[env]
}

// matrixEnvironments are math-mode environments with rows and cells.
var matrixEnvironments = map[string]string{
	"matrix":      "",
	"pmatrix":     "(",
	"bmatrix":     "[",
	"Bmatrix":     "{",
	"vmatrix":     "|",
	"Vmatrix":     "||",
	"smallmatrix": "",
	"cases":       "{",
	"aligned":     "",
	"gathered":    "",
	"split":       "",
	"array":       "",
}

// MatrixDelim returns the delimiter of a matrix environment and whether env
// is one.
func MatrixDelim(env string) (string, bool) {
	d, ok := matrixEnvironments[env]
	return d, ok
}

// MatrixEnvironment returns the environment for a delimiter, the inverse of
// MatrixDelim for the delimited matrix forms.
func MatrixEnvironment(delim string) string {
	switch delim {
	case "(":
		return "pmatrix"
	case "[":
		return "bmatrix"
	case "{":
		return "Bmatrix"
	case "|":
		return "vmatrix"
	case "||":
		return "Vmatrix"
	}
	return "matrix"
}

var tableEnvironments = map[string]bool{
	"tabular": true, "tabular*": true, "tabularx": true, "longtable": true, "tabulary": true,
}

var listEnvironments = map[string]bool{
	"itemize": true, "enumerate": true, "description": true,
}
