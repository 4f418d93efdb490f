package detector

import (
	"sort"
	"time"
)

// staleLock is how long ago a lock acquisition may be and still count as
// held when checking lock order.
const staleLock = 5 * time.Second

// lockStuck is the wait after which a goroutine still parked on a lock at the
// end of the trace is treated as deadlocked.
const lockStuck = 500 * time.Millisecond

func isChanWait(reason string) bool {
	return reason == "chan send" || reason == "chan receive" || reason == "select"
}

func finding(kind Kind, conf Confidence, g *goroutine, b block, on string, d time.Duration) Finding {
	if on == "" {
		on = b.reason
	}
	return Finding{
		Kind:        kind,
		Confidence:  conf,
		GoroutineID: uint64(g.id),
		BlockedOn:   on,
		BlockedFor:  d,
		Stack:       b.stack,
		Function:    b.function,
		Location:    b.location,
	}
}

// sorted returns goroutines in id order so findings are stable.
func (tl *timeline) sorted() []*goroutine {
	out := make([]*goroutine, 0, len(tl.goroutines))
	for _, g := range tl.goroutines {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// leaks reports goroutines that user code started and that are still parked
// on a channel when the trace ends.
func leaks(tl *timeline) []Finding {
	var out []Finding
	for _, g := range tl.sorted() {
		b := g.current
		if b == nil || !isChanWait(b.reason) || b.function == "" {
			continue
		}
		if !g.created || !g.userMade {
			continue
		}
		out = append(out, finding(KindGoroutineLeak, ConfidenceHigh, g, *b, "", time.Duration(tl.last-b.start)))
	}
	return out
}

// stuckOnLocks groups goroutines still waiting on a lock by wait site and
// reports the longest waiter of each group.
func stuckOnLocks(tl *timeline, opts Options) []Finding {
	threshold := lockStuck
	if opts.MinBlock > 0 && opts.MinBlock < threshold {
		threshold = opts.MinBlock
	}

	type waiter struct {
		g *goroutine
		d time.Duration
	}
	bySite := make(map[string]waiter)
	var sites []string
	for _, g := range tl.sorted() {
		b := g.current
		if b == nil || !isLockWait(b.reason) || b.function == "" {
			continue
		}
		d := time.Duration(tl.last-b.start) * time.Nanosecond
		if d < threshold {
			continue
		}
		prev, ok := bySite[b.location]
		if !ok {
			sites = append(sites, b.location)
		}
		if !ok || d > prev.d {
			bySite[b.location] = waiter{g, d}
		}
	}

	var out []Finding
	for _, site := range sites {
		w := bySite[site]
		out = append(out, finding(KindDeadlock, ConfidenceMedium, w.g, *w.g.current, "", w.d))
	}
	return out
}

// lockOrderInversions looks for two lock waiters where each recently got past
// the site the other is now stuck at: G1 holds A and wants B while G2 holds B
// and wants A. Two goroutines at the same site may use different lock
// instances, hence medium confidence.
func lockOrderInversions(tl *timeline) []Finding {
	type edge struct {
		held, wanted string
		g            *goroutine
	}
	var edges []edge
	for _, g := range tl.sorted() {
		b := g.current
		if b == nil || !isLockWait(b.reason) || b.function == "" {
			continue
		}
		for _, a := range g.acquired {
			if a.location == "" || a.location == b.location {
				continue
			}
			if time.Duration(tl.last-a.end)*time.Nanosecond > staleLock {
				continue
			}
			edges = append(edges, edge{held: a.location, wanted: b.location, g: g})
		}
	}

	var out []Finding
	reported := make(map[[2]string]bool)
	for i, e1 := range edges {
		for _, e2 := range edges[i+1:] {
			if e1.g == e2.g || e1.held != e2.wanted || e1.wanted != e2.held {
				continue
			}
			key := [2]string{e1.held, e1.wanted}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if reported[key] {
				continue
			}
			reported[key] = true
			b := *e1.g.current
			out = append(out, finding(KindDeadlock, ConfidenceMedium, e1.g, b,
				b.reason+" (lock order inversion)", time.Duration(tl.last-b.start)))
		}
	}
	return out
}

// longBlocks reports, once per wait site, user goroutines whose longest
// finished wait reached opts.MinBlock, plus non-channel waits still open at
// the end of the trace.
func longBlocks(tl *timeline, opts Options) []Finding {
	if opts.MinBlock <= 0 {
		return nil
	}
	var out []Finding
	seen := make(map[string]bool)
	for _, g := range tl.sorted() {
		if b := g.longest; b != nil && b.function != "" && b.duration() >= opts.MinBlock && !seen[b.location] {
			seen[b.location] = true
			out = append(out, finding(KindLongBlock, ConfidenceMedium, g, *b, "", b.duration()))
		}
		b := g.current
		if b == nil || b.function == "" || b.reason == "sleep" || isChanWait(b.reason) || isLockWait(b.reason) {
			continue
		}
		d := time.Duration(tl.last-b.start) * time.Nanosecond
		if d >= opts.MinBlock && !seen[b.location] {
			seen[b.location] = true
			out = append(out, finding(KindLongBlock, ConfidenceLow, g, *b, "", d))
		}
	}
	return out
}
