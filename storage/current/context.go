// Package current implements the current-state context of spec.md §4.1
// (C2): a stack of stores and transaction frames providing scoped
// acquisition of the active store, one stack per goroutine running a
// transaction.
//
// Go has no true thread-local storage; the teacher's analogous pattern
// threads a single sdk.Context through every call instead. Per the
// REDESIGN FLAG in spec.md §9 ("Thread-local current store... implement
// as an explicit stack owned by the executor task"), this package keeps
// an explicit *Context value that the executor creates once per
// transaction and passes by reference, rather than simulating TLS with
// a goroutine-id-keyed global map.
package current

import (
	"errors"

	"github.com/oasisprotocol/oasis-core-rofl/storage"
)

// ErrReentrant is returned when With is called while another With scope
// for the same Context is already active.
var ErrReentrant = errors.New("current: reentrant call to With")

// TransactionResult tells WithTransaction whether to commit or roll
// back the frame it pushed.
type TransactionResult struct {
	commit bool
	value  interface{}
	err    error
}

// Commit wraps a successful result for WithTransaction to commit.
func Commit(value interface{}) TransactionResult {
	return TransactionResult{commit: true, value: value}
}

// Rollback wraps a failed result for WithTransaction to discard.
func Rollback(err error) TransactionResult {
	return TransactionResult{commit: false, err: err}
}

// Context owns the store stack for a single transaction's execution.
// It must not be shared across goroutines or outlive the transaction
// that created it; no component may keep a long-lived pointer to a
// Store obtained from it (spec.md §4.1).
type Context struct {
	stack  []storage.Store
	active bool
}

// NewContext creates a Context rooted at root.
func NewContext(root storage.Store) *Context {
	return &Context{stack: []storage.Store{root}}
}

// With gives scoped access to the topmost store. Re-entering With from
// inside fn is forbidden and fails loudly (spec.md §4.1).
func (c *Context) With(fn func(store storage.Store)) error {
	if c.active {
		return ErrReentrant
	}
	c.active = true
	defer func() { c.active = false }()

	fn(c.top())
	return nil
}

// WithTransaction pushes a new OverlayStore frame, runs fn, and commits
// or rolls it back atomically based on fn's TransactionResult.
func (c *Context) WithTransaction(fn func() TransactionResult) (interface{}, error) {
	if c.active {
		return nil, ErrReentrant
	}

	overlay := storage.NewOverlayStore(c.top())
	c.stack = append(c.stack, overlay)
	defer func() {
		c.stack = c.stack[:len(c.stack)-1]
	}()

	result := fn()
	if result.commit {
		overlay.Commit()
		return result.value, nil
	}
	overlay.Rollback()
	return nil, result.err
}

// Depth reports the number of frames currently on the stack, including
// the root. Used by callers that want to bound transaction nesting.
func (c *Context) Depth() int {
	return len(c.stack)
}

func (c *Context) top() storage.Store {
	return c.stack[len(c.stack)-1]
}
