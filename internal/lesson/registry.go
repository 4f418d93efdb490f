package lesson

import "fmt"

// Registry holds lessons in registration order.
type Registry struct {
	order  []Lesson
	byName map[string]Lesson
}

// NewRegistry returns a registry holding ls. Duplicate names panic.
func NewRegistry(ls ...Lesson) *Registry {
	r := &Registry{byName: make(map[string]Lesson)}
	for _, l := range ls {
		r.Register(l)
	}
	return r
}

// Register adds l. Duplicate names panic.
func (r *Registry) Register(l Lesson) {
	if _, dup := r.byName[l.Name()]; dup {
		panic(fmt.Sprintf("lesson %q registered twice", l.Name()))
	}
	r.byName[l.Name()] = l
	r.order = append(r.order, l)
}

// Lookup returns the lesson called name.
func (r *Registry) Lookup(name string) (Lesson, error) {
	l, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLesson, name)
	}
	return l, nil
}

// All returns every lesson in registration order.
func (r *Registry) All() []Lesson {
	return append([]Lesson(nil), r.order...)
}

// Builtin returns a registry with every lesson threadlab ships.
func Builtin() *Registry {
	return NewRegistry(
		lessonFunc{"name", "start a named goroutine and wait for it", runName},
		lessonFunc{"pi-wrong", "read a worker's result before it has finished", runPiWrong},
		lessonFunc{"pi-poll", "poll a worker until it is no longer alive, then read", runPiPoll},
		lessonFunc{"pi-join", "join a worker, then read its result", runPiJoin},
		lessonFunc{"daemon", "user work keeps the run alive; daemon work is dropped with main (any arg selects daemon)", runDaemon},
		lessonFunc{"boxes", "a stoppable runner drawing random boxes", runBoxes},
		lessonFunc{"schedule", "two CPU-bound workers interleave at the scheduler's whim", runSchedule},
		lessonFunc{"priority", "an input echo worker and a busy summing worker; Go has no priorities", runPriority},
		lessonFunc{"yield", "an observer watches a counter; main yields each step (any arg disables yielding)", runYield},
		lessonFunc{"prodcons", "producer and consumer hand letters through a guarded single slot", runProdCons},
		lessonFunc{"prodcons-wrong", "the same hand-off through an unguarded slot loses and repeats letters", runProdConsWrong},
		lessonFunc{"bank-nosync", "two workers write a shared transaction with no lock", runBankNoSync},
		lessonFunc{"bank-sync", "both workers lock the transaction around their critical section", runBankSync},
		lessonFunc{"bank-method", "both workers call the transaction's self-locking Update", runBankMethod},
		lessonFunc{"bank-wronglock", "each worker locks its own mutex, which protects nothing", runBankWrongLock},
		lessonFunc{"bank-deadlock", "two workers take two locks in opposite order", runBankDeadlock},
		lessonFunc{"threadlocal", "per-task serials initialised lazily from a shared counter", runTaskLocal},
		lessonFunc{"threadlocal-setter", "each task sets its own serial, then reads it back", runTaskLocalSetter},
		lessonFunc{"threadlocal-inherit", "children see inheritable values but not plain ones", runTaskLocalInherit},
		lessonFunc{"interrupt", "interrupt a group of waiting tasks", runInterrupt},
	)
}
