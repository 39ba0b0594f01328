package macro

import "texbridge/internal/latex"

// frame is a token list being read. Expansion pushes the substituted body as
// a new frame on top of the input, so arguments are read across frame
// boundaries exactly as TeX reads them.
type frame struct {
	toks  []latex.Token
	pos   int
	depth int
}

type reader struct {
	frames []*frame
}

func newReader(toks []latex.Token) *reader {
	return &reader{frames: []*frame{{toks: toks}}}
}

func (r *reader) base() *frame { return r.frames[0] }

// settle drops exhausted frames above the base.
func (r *reader) settle() {
	for len(r.frames) > 1 {
		f := r.frames[len(r.frames)-1]
		if f.pos < len(f.toks) {
			return
		}
		r.frames = r.frames[:len(r.frames)-1]
	}
}

// atBase reports whether no expansion is in progress.
func (r *reader) atBase() bool {
	r.settle()
	return len(r.frames) == 1
}

func (r *reader) push(toks []latex.Token, depth int) {
	if len(toks) == 0 {
		return
	}
	r.frames = append(r.frames, &frame{toks: toks, depth: depth})
}

// next returns the next token and the expansion depth it was read at.
func (r *reader) next() (latex.Token, int, bool) {
	r.settle()
	f := r.frames[len(r.frames)-1]
	if f.pos >= len(f.toks) {
		return latex.Token{}, 0, false
	}
	t := f.toks[f.pos]
	f.pos++
	return t, f.depth, true
}

func (r *reader) peek() (latex.Token, bool) {
	return r.peekSkipping(false)
}

// peekNonSpace returns the next token that is not a Space without consuming
// anything.
func (r *reader) peekNonSpace() (latex.Token, bool) {
	return r.peekSkipping(true)
}

func (r *reader) peekSkipping(spaces bool) (latex.Token, bool) {
	for i := len(r.frames) - 1; i >= 0; i-- {
		f := r.frames[i]
		for p := f.pos; p < len(f.toks); p++ {
			if spaces && f.toks[p].Kind == latex.Space {
				continue
			}
			return f.toks[p], true
		}
	}
	return latex.Token{}, false
}

func (r *reader) skipSpaces() {
	for {
		t, ok := r.peek()
		if !ok || t.Kind != latex.Space {
			return
		}
		r.next()
	}
}

// balanced reads up to the EndGroup matching an already consumed
// BeginGroup. The closing brace is consumed but not returned. ok is false
// when input ends first.
func (r *reader) balanced() (toks []latex.Token, ok bool) {
	depth := 0
	for {
		t, _, more := r.next()
		if !more {
			return toks, false
		}
		switch t.Kind {
		case latex.BeginGroup:
			depth++
		case latex.EndGroup:
			if depth == 0 {
				return toks, true
			}
			depth--
		}
		toks = append(toks, t)
	}
}

// arg reads an undelimited argument: a brace group or one token, after
// skipping spaces. It returns false without consuming anything meaningful
// when a closing brace, a paragraph break or the end of input comes first.
func (r *reader) arg() ([]latex.Token, bool) {
	r.skipSpaces()
	t, ok := r.peek()
	if !ok || t.Kind == latex.EndGroup || t.Kind == latex.ParBreak {
		return nil, false
	}
	r.next()
	if t.Kind == latex.BeginGroup {
		body, _ := r.balanced()
		if body == nil {
			body = []latex.Token{}
		}
		return body, true
	}
	return []latex.Token{t}, true
}

// optional reads a bracketed argument if one follows. Brackets nested in
// braces or in inner brackets do not close it.
func (r *reader) optional() ([]latex.Token, bool) {
	t, ok := r.peekNonSpace()
	if !ok || !t.IsChar("[") {
		return nil, false
	}
	r.skipSpaces()
	r.next()

	var toks []latex.Token
	braces, brackets := 0, 0
	for {
		t, _, more := r.next()
		if !more {
			return toks, true
		}
		switch {
		case t.Kind == latex.BeginGroup:
			braces++
		case t.Kind == latex.EndGroup:
			braces--
		case braces == 0 && t.IsChar("["):
			brackets++
		case braces == 0 && t.IsChar("]"):
			if brackets == 0 {
				if toks == nil {
					toks = []latex.Token{}
				}
				return toks, true
			}
			brackets--
		}
		toks = append(toks, t)
	}
}

// star consumes a * directly following a command.
func (r *reader) star() bool {
	t, ok := r.peek()
	if ok && t.IsChar("*") {
		r.next()
		return true
	}
	return false
}
