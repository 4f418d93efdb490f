// Package detector reads a Go execution trace recorded around a lesson run and
// reports goroutines that leaked, deadlocked, or sat blocked for a long time.
package detector

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/exp/trace"
)

// Kind describes the category of finding.
type Kind string

const (
	KindGoroutineLeak Kind = "goroutine_leak"
	KindDeadlock      Kind = "deadlock"
	KindLongBlock     Kind = "long_block"
)

// Confidence indicates how certain a finding is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Options controls analysis.
type Options struct {
	// MinBlock is the shortest block reported as long. Zero reports none.
	MinBlock time.Duration
}

// Finding is one detected concurrency issue.
type Finding struct {
	Kind        Kind
	Confidence  Confidence
	GoroutineID uint64
	BlockedOn   string
	BlockedFor  time.Duration
	Stack       string
	Function    string // top non-runtime function
	Location    string // file:line of that frame
}

// Result holds the findings from one trace.
type Result struct {
	TraceFile          string
	DurationMs         int64
	GoroutinesAnalyzed int
	Findings           []Finding
}

// lockHistory is how many recent lock acquisitions are kept per goroutine for
// lock-order checks.
const lockHistory = 4

// block is one wait, open or finished.
type block struct {
	reason   string
	stack    string
	function string
	location string
	start    trace.Time
	end      trace.Time
}

func (b block) duration() time.Duration { return time.Duration(b.end-b.start) * time.Nanosecond }

// goroutine is the per-goroutine state built while reading the trace.
type goroutine struct {
	id       trace.GoID
	created  bool // creation was seen inside the trace window
	userMade bool // created from non-runtime code

	current *block // non-nil while blocked
	longest *block // longest finished non-sleep block

	// acquired are recent lock-wait sites this goroutine got past, newest last.
	acquired []block
}

func (g *goroutine) remember(b block) {
	g.acquired = append(g.acquired, b)
	if len(g.acquired) > lockHistory {
		g.acquired = g.acquired[1:]
	}
}

// timeline is every goroutine seen in a trace plus the time bounds.
type timeline struct {
	goroutines map[trace.GoID]*goroutine
	first      trace.Time
	last       trace.Time
}

func (tl *timeline) span() time.Duration {
	return time.Duration(tl.last-tl.first) * time.Nanosecond
}

func (tl *timeline) get(id trace.GoID) *goroutine {
	g := tl.goroutines[id]
	if g == nil {
		g = &goroutine{id: id}
		tl.goroutines[id] = g
	}
	return g
}

// Analyze reads the trace at path and returns its findings.
func Analyze(path string, opts Options) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace: %w", err)
	}
	defer f.Close()

	tl, err := read(f)
	if err != nil {
		return nil, fmt.Errorf("read trace %s: %w", path, err)
	}

	var findings []Finding
	findings = append(findings, leaks(tl)...)
	findings = append(findings, stuckOnLocks(tl, opts)...)
	findings = append(findings, lockOrderInversions(tl)...)
	findings = append(findings, longBlocks(tl, opts)...)

	return &Result{
		TraceFile:          path,
		DurationMs:         tl.span().Milliseconds(),
		GoroutinesAnalyzed: len(tl.goroutines),
		Findings:           findings,
	}, nil
}

func read(r io.Reader) (*timeline, error) {
	tr, err := trace.NewReader(r)
	if err != nil {
		return nil, err
	}

	tl := &timeline{goroutines: make(map[trace.GoID]*goroutine)}
	seen := false
	for {
		ev, err := tr.ReadEvent()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if !seen {
			tl.first = ev.Time()
			seen = true
		}
		tl.last = ev.Time()

		if ev.Kind() != trace.EventStateTransition {
			continue
		}
		st := ev.StateTransition()
		if st.Resource.Kind != trace.ResourceGoroutine {
			continue
		}
		apply(tl.get(st.Resource.Goroutine()), st, ev.Time())
	}
	return tl, nil
}

func apply(g *goroutine, st trace.StateTransition, now trace.Time) {
	from, to := st.Goroutine()

	if from == trace.GoNotExist {
		g.created = true
		_, fn, _ := formatStack(st.Stack)
		g.userMade = fn != ""
	}

	if from.Executing() && to == trace.GoWaiting {
		stack, fn, loc := formatStack(st.Stack)
		g.current = &block{reason: st.Reason, stack: stack, function: fn, location: loc, start: now}
		return
	}

	if from == trace.GoWaiting && (to.Executing() || to == trace.GoRunnable) && g.current != nil {
		done := *g.current
		done.end = now
		g.current = nil

		if done.reason != "sleep" && (g.longest == nil || done.duration() > g.longest.duration()) {
			g.longest = &done
		}
		if isLockWait(done.reason) {
			g.remember(done)
		}
	}
}
