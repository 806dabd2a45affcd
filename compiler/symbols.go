package compiler

// symbolTable assigns scope-frame slots for one compiled unit. Slot 0 is
// always "this". Arguments ("@name") and blocks ("&default", "&inverse") get
// one shared slot per name so the VM can bind them by name; locals introduced
// by block parameters and let bindings get a fresh slot per binding and are
// only visible while their binding scope is open.
type symbolTable struct {
	names  []string
	shared map[string]uint32
	locals []map[string]uint32
}

func newSymbolTable() *symbolTable {
	return &symbolTable{
		names:  []string{"this"},
		shared: map[string]uint32{"this": 0},
	}
}

func (s *symbolTable) slot(name string) uint32 {
	s.names = append(s.names, name)
	return uint32(len(s.names) - 1)
}

// named returns the shared slot for an argument or block name.
func (s *symbolTable) named(name string) uint32 {
	if idx, ok := s.shared[name]; ok {
		return idx
	}
	idx := s.slot(name)
	s.shared[name] = idx
	return idx
}

// pushLocals opens a binding scope and returns a fresh slot per name.
func (s *symbolTable) pushLocals(names []string) []uint32 {
	scope := make(map[string]uint32, len(names))
	slots := make([]uint32, len(names))
	for i, name := range names {
		slots[i] = s.slot(name)
		scope[name] = slots[i]
	}
	s.locals = append(s.locals, scope)
	return slots
}

func (s *symbolTable) popLocals() {
	s.locals = s.locals[:len(s.locals)-1]
}

// local resolves a name against the open binding scopes, innermost first.
func (s *symbolTable) local(name string) (uint32, bool) {
	for i := len(s.locals) - 1; i >= 0; i-- {
		if idx, ok := s.locals[i][name]; ok {
			return idx, true
		}
	}
	return 0, false
}

func (s *symbolTable) count() int {
	return len(s.names)
}
