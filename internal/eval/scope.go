package eval

// frame is one static scope: an insertion-ordered set of bindings.
type frame struct {
	names []string
	vals  map[string]Value
}

func newFrame() *frame { return &frame{vals: make(map[string]Value)} }

func (f *frame) define(name string, v Value) {
	if _, ok := f.vals[name]; !ok {
		f.names = append(f.names, name)
	}
	f.vals[name] = v
}

// Scope is the stack of frames visible at a point of evaluation. Bindings
// in an inner frame shadow outer ones until the frame is popped.
type Scope struct {
	frames []*frame
}

func NewScope() *Scope { return &Scope{frames: []*frame{newFrame()}} }

func (s *Scope) Push() { s.frames = append(s.frames, newFrame()) }

func (s *Scope) Pop() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth is the number of frames on the stack.
func (s *Scope) Depth() int { return len(s.frames) }

// Define binds name in the innermost frame.
func (s *Scope) Define(name string, v Value) {
	s.frames[len(s.frames)-1].define(name, v)
}

// Lookup finds the innermost binding of name.
func (s *Scope) Lookup(name string) (Value, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].vals[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// snapshot flattens the visible bindings into one frame.
func (s *Scope) snapshot() *frame {
	f := newFrame()
	for _, fr := range s.frames {
		for _, name := range fr.names {
			f.define(name, fr.vals[name])
		}
	}
	return f
}

// withFrames swaps in a scope made of base plus a fresh frame, runs fn and
// restores the previous stack.
func (s *Scope) withFrames(base *frame, fn func()) {
	saved := s.frames
	s.frames = []*frame{base, newFrame()}
	defer func() { s.frames = saved }()
	fn()
}
