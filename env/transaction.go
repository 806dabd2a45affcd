package env

import (
	"github.com/deepnoodle-ai/rehydra/errors"
)

// Hook is work deferred until a transaction commits.
type Hook func() error

// Transaction collects hooks scheduled while structure is being assembled.
// Committing a nested transaction hands its hooks to the parent; committing
// the outermost one runs them all, in the order they were scheduled.
type Transaction struct {
	parent    *Transaction
	hooks     []Hook
	committed bool
}

// NewTransaction starts an outermost transaction.
func NewTransaction() *Transaction {
	return &Transaction{}
}

// Begin starts a transaction nested in t.
func (t *Transaction) Begin() *Transaction {
	return &Transaction{parent: t}
}

// Parent returns the enclosing transaction, or nil for the outermost one.
func (t *Transaction) Parent() *Transaction {
	return t.parent
}

// Len returns the number of pending hooks.
func (t *Transaction) Len() int {
	return len(t.hooks)
}

// Schedule queues a hook.
func (t *Transaction) Schedule(hook Hook) {
	t.hooks = append(t.hooks, hook)
}

// Commit ends the transaction and returns its parent. The first hook error
// stops the remaining hooks and is returned as is.
func (t *Transaction) Commit() (*Transaction, error) {
	if t.committed {
		return t.parent, errors.NewRenderError(errors.E3006, "transaction committed twice")
	}
	t.committed = true
	hooks := t.hooks
	t.hooks = nil
	if t.parent != nil {
		t.parent.hooks = append(t.parent.hooks, hooks...)
		return t.parent, nil
	}
	for _, hook := range hooks {
		if err := hook(); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
