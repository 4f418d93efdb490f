// Package handoff provides a single-slot rendezvous between one producer and
// one consumer, plus an unguarded variant used to show what goes wrong
// without one.
package handoff

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Put and Take once the cell has been closed and the
// operation can no longer complete.
var ErrClosed = errors.New("handoff: cell closed")

// Slot is the common surface of Cell and UnsafeCell.
type Slot[T any] interface {
	Put(v T) error
	Take() (T, error)
}

// Cell holds at most one value. Put blocks while the slot is full and Take
// blocks while it is empty, so the slot strictly alternates between the two
// states.
type Cell[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	value    T
	writable bool
	closed   bool
}

// NewCell returns an empty cell.
func NewCell[T any]() *Cell[T] {
	c := &Cell[T]{writable: true}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Put stores v once the previous value has been taken.
func (c *Cell[T]) Put(v T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for !c.writable && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return ErrClosed
	}
	c.value = v
	c.writable = false
	c.cond.Broadcast()
	return nil
}

// Take waits for a value, empties the slot and returns the value. A value
// stored before Close is still delivered.
func (c *Cell[T]) Take() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.writable && !c.closed {
		c.cond.Wait()
	}
	var zero T
	if c.writable {
		return zero, ErrClosed
	}
	v := c.value
	c.value = zero
	c.writable = true
	c.cond.Broadcast()
	return v, nil
}

// Close wakes every waiter. Further Puts fail; Take fails once the slot is
// empty. Close is idempotent.
func (c *Cell[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Full reports whether the slot currently holds an untaken value.
func (c *Cell[T]) Full() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.writable
}

// UnsafeCell has the same API as Cell but never waits: Put overwrites whatever
// is in the slot and Take returns whatever is there, taken or not. Each field
// is accessed atomically, so the memory model is respected while the
// handoff protocol is not.
type UnsafeCell[T any] struct {
	value    atomic.Pointer[T]
	writable atomic.Bool
}

// NewUnsafeCell returns an empty unguarded cell.
func NewUnsafeCell[T any]() *UnsafeCell[T] {
	c := &UnsafeCell[T]{}
	c.writable.Store(true)
	return c
}

// Put always succeeds, replacing any value not yet taken.
func (c *UnsafeCell[T]) Put(v T) error {
	c.value.Store(&v)
	c.writable.Store(false)
	return nil
}

// Take returns the current value, or the zero value if nothing was ever put.
func (c *UnsafeCell[T]) Take() (T, error) {
	c.writable.Store(true)
	if p := c.value.Load(); p != nil {
		return *p, nil
	}
	var zero T
	return zero, nil
}
