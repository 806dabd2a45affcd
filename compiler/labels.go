package compiler

import (
	"sort"

	"github.com/deepnoodle-ai/rehydra/errors"
	"github.com/hashicorp/go-multierror"
)

// labelTarget is an operand that refers to a label not yet resolved.
type labelTarget struct {
	at      int // instruction offset
	operand int // operand slot within the instruction
	label   string
}

// labelScope holds the labels placed and referenced by one structural
// construct. Scopes are private: a jump site can only resolve against labels
// of the scope that was open when the site was emitted.
type labelScope struct {
	labels  map[string]int
	targets []labelTarget
}

// labelTable is the compile-time stack of label scopes.
type labelTable struct {
	scopes []*labelScope
}

func (t *labelTable) depth() int {
	return len(t.scopes)
}

func (t *labelTable) push() {
	t.scopes = append(t.scopes, &labelScope{labels: map[string]int{}})
}

func (t *labelTable) current() (*labelScope, error) {
	if len(t.scopes) == 0 {
		return nil, errors.NewCompileError(errors.E2003, "no label scope is open")
	}
	return t.scopes[len(t.scopes)-1], nil
}

// place records the offset of a label in the current scope.
func (t *labelTable) place(name string, offset int) error {
	scope, err := t.current()
	if err != nil {
		return err
	}
	if _, exists := scope.labels[name]; exists {
		return errors.NewCompileError(errors.E2002, "label %q is already placed in this scope", name)
	}
	scope.labels[name] = offset
	return nil
}

// reference records an operand that must be patched with a label's offset
// when the current scope is popped.
func (t *labelTable) reference(at, operand int, name string) error {
	scope, err := t.current()
	if err != nil {
		return err
	}
	scope.targets = append(scope.targets, labelTarget{at: at, operand: operand, label: name})
	return nil
}

// pop closes the current scope and patches every reference made within it.
// All references to labels that were never placed are reported together.
func (t *labelTable) pop(patch func(at, operand int, offset uint32)) error {
	scope, err := t.current()
	if err != nil {
		return err
	}
	t.scopes = t.scopes[:len(t.scopes)-1]

	var result *multierror.Error
	for _, target := range scope.targets {
		offset, ok := scope.labels[target.label]
		if !ok {
			cerr := errors.NewCompileError(errors.E2001, "undefined label %q", target.label)
			cerr.Offset = target.at
			cerr.Suggestions = errors.SuggestSimilar(target.label, scope.names())
			result = multierror.Append(result, cerr)
			continue
		}
		patch(target.at, target.operand, uint32(offset))
	}
	if result != nil {
		result.ErrorFormat = errors.ListFormat
	}
	return result.ErrorOrNil()
}

func (s *labelScope) names() []string {
	names := make([]string, 0, len(s.labels))
	for name := range s.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
