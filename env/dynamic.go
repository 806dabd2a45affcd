package env

// DynamicScope is a stack of named values visible to everything rendered
// while they are pushed. Lookup walks from the top of the stack down.
type DynamicScope struct {
	frames []map[string]any
}

// NewDynamicScope returns a dynamic scope holding one empty frame.
func NewDynamicScope() *DynamicScope {
	return &DynamicScope{frames: []map[string]any{{}}}
}

// Push adds an empty frame.
func (d *DynamicScope) Push() {
	d.frames = append(d.frames, map[string]any{})
}

// Pop removes the top frame. It reports false if only the base frame is
// left, which is never popped.
func (d *DynamicScope) Pop() bool {
	if len(d.frames) <= 1 {
		return false
	}
	d.frames[len(d.frames)-1] = nil
	d.frames = d.frames[:len(d.frames)-1]
	return true
}

// Depth returns the number of frames, the base frame included.
func (d *DynamicScope) Depth() int {
	return len(d.frames)
}

// Set binds a name in the top frame.
func (d *DynamicScope) Set(name string, value any) {
	d.frames[len(d.frames)-1][name] = value
}

// Get looks a name up from the top frame down.
func (d *DynamicScope) Get(name string) (any, bool) {
	for i := len(d.frames) - 1; i >= 0; i-- {
		if v, ok := d.frames[i][name]; ok {
			return v, true
		}
	}
	return nil, false
}
