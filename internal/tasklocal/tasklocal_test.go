package tasklocal

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStoreInitializesOncePerTask(t *testing.T) {
	serial := 100
	store := NewStore(func(*Task) int {
		serial++
		return serial - 1
	})

	tasks := []*Task{NewTask("A"), NewTask("B"), NewTask("C")}

	var wg sync.WaitGroup
	seen := make([][]int, len(tasks))
	for i, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				v, ok := store.Get(task)
				if ok {
					seen[i] = append(seen[i], v)
				}
			}
		}()
	}
	wg.Wait()

	got := map[int]bool{}
	for i, vals := range seen {
		require.Len(t, vals, 10, "task %s", tasks[i].Name)
		for _, v := range vals {
			assert.Equal(t, vals[0], v, "task %s saw its value change", tasks[i].Name)
		}
		got[vals[0]] = true
	}
	assert.Equal(t, map[int]bool{100: true, 101: true, 102: true}, got)
	assert.Equal(t, 3, store.Len())
}

func TestStoreWithoutInit(t *testing.T) {
	store := NewStore[string](nil)
	task := NewTask("A")

	_, ok := store.Get(task)
	assert.False(t, ok)

	store.Set(task, "x")
	v, ok := store.Get(task)
	require.True(t, ok)
	assert.Equal(t, "x", v)

	store.Delete(task)
	_, ok = store.Get(task)
	assert.False(t, ok)
}

func TestInheritableSpawn(t *testing.T) {
	inherit := NewInheritable[string]()
	plain := NewStore[string](nil)

	parent := NewTask("main")
	inherit.Set(parent, "passed down")
	plain.Set(parent, "kept")

	child := inherit.Spawn(parent, "child")
	require.Same(t, parent, child.Parent)
	assert.NotEqual(t, parent.ID, child.ID)

	v, ok := inherit.Get(child)
	require.True(t, ok)
	assert.Equal(t, "passed down", v)

	_, ok = plain.Get(child)
	assert.False(t, ok, "plain store must not leak into children")

	inherit.Set(child, "changed")
	v, _ = inherit.Get(parent)
	assert.Equal(t, "passed down", v)
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	task := NewTask("A")
	got, ok := FromContext(WithTask(context.Background(), task))
	require.True(t, ok)
	assert.Same(t, task, got)
}
