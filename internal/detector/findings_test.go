package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/trace"
)

const ms = trace.Time(time.Millisecond)

func newTimeline(last trace.Time, gs ...*goroutine) *timeline {
	tl := &timeline{goroutines: make(map[trace.GoID]*goroutine), last: last}
	for _, g := range gs {
		tl.goroutines[g.id] = g
	}
	return tl
}

func waiting(reason, loc string, start trace.Time) *block {
	return &block{reason: reason, function: "lab.worker", location: loc, start: start}
}

func TestLeaksNeedUserCreatedChannelWaiter(t *testing.T) {
	tl := newTimeline(100*ms,
		&goroutine{id: 1, created: true, userMade: true, current: waiting("chan send", "a.go:1", 10*ms)},
		&goroutine{id: 2, created: true, userMade: false, current: waiting("chan send", "b.go:1", 10*ms)},
		&goroutine{id: 3, created: false, userMade: true, current: waiting("chan receive", "c.go:1", 10*ms)},
		&goroutine{id: 4, created: true, userMade: true, current: waiting("sync", "d.go:1", 10*ms)},
		&goroutine{id: 5, created: true, userMade: true},
	)

	got := leaks(tl)
	require.Len(t, got, 1)
	assert.Equal(t, KindGoroutineLeak, got[0].Kind)
	assert.Equal(t, ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, uint64(1), got[0].GoroutineID)
	assert.Equal(t, 90*time.Millisecond, got[0].BlockedFor)
}

func TestStuckOnLocksGroupsBySite(t *testing.T) {
	tl := newTimeline(2000*ms,
		&goroutine{id: 1, current: waiting("sync", "bank.go:10", 1000*ms)},
		&goroutine{id: 2, current: waiting("sync", "bank.go:10", 200*ms)},
		&goroutine{id: 3, current: waiting("sync", "bank.go:20", 1900*ms)},
	)

	got := stuckOnLocks(tl, Options{})
	require.Len(t, got, 1, "the 100ms waiter is below the threshold")
	assert.Equal(t, KindDeadlock, got[0].Kind)
	assert.Equal(t, uint64(2), got[0].GoroutineID, "longest waiter represents the site")
	assert.Equal(t, 1800*time.Millisecond, got[0].BlockedFor)

	got = stuckOnLocks(tl, Options{MinBlock: 50 * time.Millisecond})
	assert.Len(t, got, 2)
}

func TestLockOrderInversion(t *testing.T) {
	g1 := &goroutine{id: 1, current: waiting("sync", "B", 900*ms)}
	g1.remember(block{reason: "sync", location: "A", end: 800 * ms})
	g2 := &goroutine{id: 2, current: waiting("sync", "A", 900*ms)}
	g2.remember(block{reason: "sync", location: "B", end: 850 * ms})

	got := lockOrderInversions(newTimeline(1000*ms, g1, g2))
	require.Len(t, got, 1)
	assert.Equal(t, "sync (lock order inversion)", got[0].BlockedOn)
}

func TestLockOrderIgnoresStaleHistory(t *testing.T) {
	g1 := &goroutine{id: 1, current: waiting("sync", "B", 9000*ms)}
	g1.remember(block{location: "A", end: 1 * ms})
	g2 := &goroutine{id: 2, current: waiting("sync", "A", 9000*ms)}
	g2.remember(block{location: "B", end: 1 * ms})

	assert.Empty(t, lockOrderInversions(newTimeline(10000*ms, g1, g2)))
}

func TestRememberKeepsRecentHistory(t *testing.T) {
	g := &goroutine{}
	for i := 0; i < lockHistory+2; i++ {
		g.remember(block{location: string(rune('a' + i))})
	}
	require.Len(t, g.acquired, lockHistory)
	assert.Equal(t, string(rune('a'+lockHistory+1)), g.acquired[lockHistory-1].location)
}

func TestLongBlocks(t *testing.T) {
	finished := &block{reason: "select", function: "lab.acquire", location: "bank.go:5", start: 0, end: 1500 * ms}
	tl := newTimeline(3000*ms,
		&goroutine{id: 1, longest: finished},
		&goroutine{id: 2, longest: finished},
		&goroutine{id: 3, current: waiting("GC assist", "x.go:1", 100*ms)},
		&goroutine{id: 4, current: waiting("sleep", "y.go:1", 0)},
	)

	assert.Nil(t, longBlocks(tl, Options{}))

	got := longBlocks(tl, Options{MinBlock: time.Second})
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].GoroutineID)
	assert.Equal(t, 1500*time.Millisecond, got[0].BlockedFor)
	assert.Equal(t, ConfidenceMedium, got[0].Confidence)
	assert.Equal(t, "GC assist", got[1].BlockedOn)
	assert.Equal(t, ConfidenceLow, got[1].Confidence)
}

func TestFrameClassification(t *testing.T) {
	tests := []struct {
		fn, file string
		runtime  bool
	}{
		{"runtime.gopark", "/usr/local/go/src/runtime/proc.go", true},
		{"sync.(*Cond).Wait", "/usr/local/go/src/sync/cond.go", true},
		{"testing.tRunner", "/usr/local/go/src/testing/testing.go", true},
		{"golang.org/x/sync/semaphore.(*Weighted).Acquire", "semaphore.go", true},
		{"github.com/Heman10x-NGU/threadlab/internal/bank.AcquireBoth", "transaction.go", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.runtime, isRuntimeFrame(tt.fn, tt.file), tt.fn)
	}
	assert.True(t, isLockWait("sync"))
	assert.True(t, isLockWait("sync.(*Cond).Wait"))
	assert.False(t, isLockWait("select"))
}
