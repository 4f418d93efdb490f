package lesson

import (
	"context"
	"strconv"
	"sync"

	"github.com/Heman10x-NGU/threadlab/internal/tasklocal"
)

var taskNames = []string{"A", "B", "C"}

// eachTask runs fn for every name on its own goroutine and waits for all.
func eachTask(ctx context.Context, names []string, fn func(ctx context.Context, t *tasklocal.Task)) {
	var wg sync.WaitGroup
	for _, name := range names {
		t := tasklocal.NewTask(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(tasklocal.WithTask(ctx, t), t)
		}()
	}
	wg.Wait()
}

func runTaskLocal(ctx context.Context, env *Env) error {
	serial := env.Config.LocalSerial
	store := tasklocal.NewStore(func(*tasklocal.Task) int {
		v := serial
		serial++
		return v
	})

	eachTask(ctx, taskNames, func(ctx context.Context, t *tasklocal.Task) {
		for range env.Config.LocalReads {
			v, _ := store.Get(t)
			env.Printf("%s %d\n", t.Name, v)
		}
	})
	env.Report.Set("tasks", store.Len())
	return ctx.Err()
}

func runTaskLocalSetter(ctx context.Context, env *Env) error {
	var (
		mu     sync.Mutex
		serial = env.Config.LocalSerial
	)
	store := tasklocal.NewStore[string](nil)

	eachTask(ctx, taskNames, func(ctx context.Context, t *tasklocal.Task) {
		mu.Lock()
		store.Set(t, strconv.Itoa(serial))
		serial++
		mu.Unlock()

		for range env.Config.LocalReads {
			v, _ := store.Get(t)
			env.Printf("%s %s\n", t.Name, v)
		}
	})
	env.Report.Set("tasks", store.Len())
	return ctx.Err()
}

func runTaskLocalInherit(ctx context.Context, env *Env) error {
	inherited := tasklocal.NewInheritable[string]()
	plain := tasklocal.NewStore[string](nil)

	parent := tasklocal.NewTask("main")
	inherited.Set(parent, "parent task-local value passed to child")
	plain.Set(parent, "parent task-local value not passed to child")

	// Children only get a context; they recover their task from it.
	child := func(ctx context.Context) {
		t, ok := tasklocal.FromContext(ctx)
		if !ok {
			return
		}
		v, ok := inherited.Get(t)
		env.Printf("%s\n", valueOr(v, ok))
		if ok {
			env.Report.Add("inherited", 1)
		}
		v, ok = plain.Get(t)
		env.Printf("%s\n", valueOr(v, ok))
		if !ok {
			env.Report.Add("plain_unset", 1)
		}
	}

	var wg sync.WaitGroup
	for _, name := range []string{"child-1", "child-2"} {
		childCtx := tasklocal.WithTask(ctx, inherited.Spawn(parent, name))
		wg.Add(1)
		go func() {
			defer wg.Done()
			child(childCtx)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func valueOr(v string, ok bool) string {
	if !ok {
		return "<unset>"
	}
	return v
}
