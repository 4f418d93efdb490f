// Package tasklocal keeps per-task values in an explicit map keyed by task
// identity, in place of implicit goroutine-local storage.
package tasklocal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Task identifies one unit of concurrent work.
type Task struct {
	ID     uuid.UUID
	Name   string
	Parent *Task
}

// NewTask returns a root task with a fresh identity.
func NewTask(name string) *Task {
	return &Task{ID: uuid.New(), Name: name}
}

// Child returns a new task whose parent is t.
func (t *Task) Child(name string) *Task {
	return &Task{ID: uuid.New(), Name: name, Parent: t}
}

type taskKey struct{}

// WithTask attaches t to ctx.
func WithTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey{}, t)
}

// FromContext returns the task attached to ctx, if any.
func FromContext(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(taskKey{}).(*Task)
	return t, ok
}

// Store holds one value of type T per task.
type Store[T any] struct {
	mu     sync.Mutex
	values map[uuid.UUID]T
	init   func(*Task) T
}

// NewStore returns a store. If init is non-nil, Get on a task with no value
// calls it once, under the store's lock, and keeps the result.
func NewStore[T any](init func(*Task) T) *Store[T] {
	return &Store[T]{values: make(map[uuid.UUID]T), init: init}
}

// Get returns t's value. ok is false when t has no value and the store has no
// initializer.
func (s *Store[T]) Get(t *Task) (v T, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok = s.values[t.ID]; ok {
		return v, true
	}
	if s.init == nil {
		return v, false
	}
	v = s.init(t)
	s.values[t.ID] = v
	return v, true
}

// Set replaces t's value.
func (s *Store[T]) Set(t *Task, v T) {
	s.mu.Lock()
	s.values[t.ID] = v
	s.mu.Unlock()
}

// Delete drops t's value; the next Get re-initializes it.
func (s *Store[T]) Delete(t *Task) {
	s.mu.Lock()
	delete(s.values, t.ID)
	s.mu.Unlock()
}

// Len returns the number of tasks holding a value.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.values)
}

// Inheritable is a Store whose values flow from parent to child tasks when
// the child is spawned through it.
type Inheritable[T any] struct {
	*Store[T]
}

// NewInheritable returns an empty inheritable store.
func NewInheritable[T any]() *Inheritable[T] {
	return &Inheritable[T]{Store: NewStore[T](nil)}
}

// Spawn creates a child of parent and copies parent's value, if any, into it.
// Later changes on either side are not shared.
func (s *Inheritable[T]) Spawn(parent *Task, name string) *Task {
	child := parent.Child(name)
	if v, ok := s.Get(parent); ok {
		s.Set(child, v)
	}
	return child
}
