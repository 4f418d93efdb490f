package handoff

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func letters() []rune {
	var out []rune
	for ch := 'A'; ch <= 'Z'; ch++ {
		out = append(out, ch)
	}
	return out
}

func randomDelay(seed uint64, max time.Duration) Delay {
	var mu sync.Mutex
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(r.Int64N(int64(max)))
	}
}

func TestCellDeliversAlphabetInOrder(t *testing.T) {
	cell := NewCell[rune]()
	p := &Producer[rune]{Slot: cell, Values: letters(), Delay: randomDelay(1, 2*time.Millisecond)}
	c := &Consumer[rune]{Slot: cell, Sentinel: 'Z', Delay: randomDelay(2, 2*time.Millisecond)}

	var (
		wg      sync.WaitGroup
		prodErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		prodErr = p.Run(context.Background())
	}()

	got, err := c.Run(context.Background())
	wg.Wait()

	require.NoError(t, err)
	require.NoError(t, prodErr)
	if diff := cmp.Diff(letters(), got); diff != "" {
		t.Errorf("consumed sequence mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, cell.Full(), "cell should be empty after the sentinel is taken")
}

func TestCellExactlyOnceUnderLoad(t *testing.T) {
	const n = 2000
	cell := NewCell[int]()

	values := make([]int, n)
	for i := range values {
		values[i] = i + 1
	}

	done := make(chan error, 1)
	go func() {
		done <- (&Producer[int]{Slot: cell, Values: values}).Run(context.Background())
	}()

	got, err := (&Consumer[int]{Slot: cell, Sentinel: n}).Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, <-done)

	require.Len(t, got, n)
	for i, v := range got {
		require.Equal(t, i+1, v, "value at position %d", i)
	}
}

func TestCellPutBlocksUntilTaken(t *testing.T) {
	cell := NewCell[string]()
	require.NoError(t, cell.Put("first"))

	second := make(chan struct{})
	go func() {
		defer close(second)
		_ = cell.Put("second")
	}()

	select {
	case <-second:
		t.Fatal("second Put returned while the slot was still full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := cell.Take()
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	<-second
	v, err = cell.Take()
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestCellTakeNeverReturnsEmptySlot(t *testing.T) {
	cell := NewCell[int]()
	got := make(chan int, 1)
	go func() {
		v, _ := cell.Take()
		got <- v
	}()

	select {
	case v := <-got:
		t.Fatalf("Take returned %d from an empty cell", v)
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, cell.Put(7))
	assert.Equal(t, 7, <-got)
}

func TestCellClose(t *testing.T) {
	t.Run("wakes blocked taker", func(t *testing.T) {
		cell := NewCell[int]()
		errc := make(chan error, 1)
		go func() {
			_, err := cell.Take()
			errc <- err
		}()
		time.Sleep(5 * time.Millisecond)
		cell.Close()
		assert.ErrorIs(t, <-errc, ErrClosed)
	})

	t.Run("wakes blocked putter", func(t *testing.T) {
		cell := NewCell[int]()
		require.NoError(t, cell.Put(1))
		errc := make(chan error, 1)
		go func() { errc <- cell.Put(2) }()
		time.Sleep(5 * time.Millisecond)
		cell.Close()
		assert.ErrorIs(t, <-errc, ErrClosed)
	})

	t.Run("stored value survives close", func(t *testing.T) {
		cell := NewCell[int]()
		require.NoError(t, cell.Put(42))
		cell.Close()
		cell.Close()

		v, err := cell.Take()
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		_, err = cell.Take()
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, cell.Put(1), ErrClosed)
	})
}

func TestConsumerStopsOnContext(t *testing.T) {
	cell := NewCell[rune]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := (&Consumer[rune]{Slot: cell, Sentinel: 'Z', Delay: func() time.Duration { return time.Hour }}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, got)
}

func TestUnsafeCellOverwritesAndRepeats(t *testing.T) {
	cell := NewUnsafeCell[rune]()

	v, err := cell.Take()
	require.NoError(t, err)
	assert.Equal(t, rune(0), v, "empty unsafe cell yields the zero value")

	require.NoError(t, cell.Put('A'))
	require.NoError(t, cell.Put('B'))

	v, _ = cell.Take()
	assert.Equal(t, 'B', v, "A was overwritten before being consumed")
	v, _ = cell.Take()
	assert.Equal(t, 'B', v, "B is consumed twice")
}

func TestConsumerLimit(t *testing.T) {
	cell := NewUnsafeCell[rune]()
	require.NoError(t, cell.Put('Q'))

	got, err := (&Consumer[rune]{Slot: cell, Sentinel: 'Z', Limit: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []rune{'Q', 'Q', 'Q'}, got)
}

func TestProducerBlockedPutEndsWhenCellClosed(t *testing.T) {
	cell := NewCell[rune]()
	ctx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cell.Close)
	defer stop()

	// Nobody takes, so the second Put blocks on the full cell.
	p := &Producer[rune]{Slot: cell, Values: []rune{'A', 'B'}}
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, cell.Full, time.Second, time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("producer returned early: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("producer still blocked after the cell was closed")
	}
}
