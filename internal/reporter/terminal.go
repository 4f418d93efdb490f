// Package reporter renders lesson summaries and analysis findings for a
// terminal or as JSON.
package reporter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Heman10x-NGU/threadlab/internal/detector"
	"github.com/Heman10x-NGU/threadlab/internal/lesson"
	"github.com/Heman10x-NGU/threadlab/internal/lockcheck"
)

var (
	bold      = color.New(color.Bold)
	red       = color.New(color.FgRed, color.Bold)
	yellow    = color.New(color.FgYellow, color.Bold)
	cyan      = color.New(color.FgCyan)
	green     = color.New(color.FgGreen)
	dim       = color.New(color.Faint)
	separator = strings.Repeat("━", 40)
)

// Report is everything one command produced. Empty sections are omitted.
type Report struct {
	Lessons []lesson.Summary
	Trace   *detector.Result
	Locks   []lockcheck.Finding
	// LockcheckRan distinguishes "no lock findings" from "not checked".
	LockcheckRan bool
}

// WriteTerminal writes a human-readable colored report to w.
func WriteTerminal(w io.Writer, r Report) {
	for _, s := range r.Lessons {
		writeSummary(w, s)
	}
	if r.Trace != nil {
		writeTrace(w, r.Trace)
	}
	if r.LockcheckRan {
		writeLocks(w, r.Locks)
	}
}

func writeSummary(w io.Writer, s lesson.Summary) {
	fmt.Fprintln(w)
	bold.Fprintf(w, "%s", s.Lesson)
	dim.Fprintf(w, "  %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintln(w, separator)

	for _, c := range s.Counters {
		fmt.Fprintf(w, "  %-22s ", c.Name)
		cyan.Fprintf(w, "%d\n", c.Value)
	}
	for _, n := range s.Notes {
		dim.Fprintf(w, "  · %s\n", n)
	}
	switch {
	case s.Deadlocked:
		red.Fprintln(w, "  ● DEADLOCK detected and broken")
	case s.Err != nil:
		red.Fprintf(w, "  ● failed: %v\n", s.Err)
	default:
		green.Fprintln(w, "  ✓ finished")
	}
}

func writeTrace(w io.Writer, result *detector.Result) {
	leaks := countKind(result.Findings, detector.KindGoroutineLeak)
	deadlocks := countKind(result.Findings, detector.KindDeadlock)
	longBlocks := countKind(result.Findings, detector.KindLongBlock)

	fmt.Fprintln(w)
	bold.Fprintln(w, "Trace Analysis")
	fmt.Fprintln(w, separator)
	tally(w, leaks, "goroutine leak", red)
	tally(w, deadlocks, "deadlock", red)
	tally(w, longBlocks, "long block", yellow)

	if len(result.Findings) == 0 {
		green.Fprintln(w, "  No concurrency issues detected.")
	}
	for _, f := range result.Findings {
		fmt.Fprintln(w)
		printFinding(w, f)
	}

	fmt.Fprintln(w, separator)
	dim.Fprintf(w, "  Analyzed %d goroutines · %dms window · %s\n",
		result.GoroutinesAnalyzed, result.DurationMs, result.TraceFile)
}

func writeLocks(w io.Writer, locks []lockcheck.Finding) {
	fmt.Fprintln(w)
	bold.Fprintln(w, "Lock Release Check")
	fmt.Fprintln(w, separator)
	tally(w, len(locks), "unreleased lock", red)
	for _, f := range locks {
		fmt.Fprintln(w)
		red.Fprintln(w, "● LOCK LEAK")
		fmt.Fprintf(w, "  %s\n", f.Message)
		fmt.Fprintf(w, "  Function: ")
		cyan.Fprintf(w, "%s\n", f.Function)
		fmt.Fprintf(w, "  Location: ")
		cyan.Fprintf(w, "%s\n", f.Location)
	}
}

func tally(w io.Writer, n int, noun string, bad *color.Color) {
	c := green
	if n > 0 {
		c = bad
	}
	c.Fprintf(w, "  %s\n", pluralize(n, noun))
}

func printFinding(w io.Writer, f detector.Finding) {
	switch f.Kind {
	case detector.KindGoroutineLeak:
		red.Fprintf(w, "● GOROUTINE LEAK")
	case detector.KindDeadlock:
		red.Fprintf(w, "● DEADLOCK")
	case detector.KindLongBlock:
		yellow.Fprintf(w, "● LONG BLOCK")
	}
	dim.Fprintf(w, "  (%s confidence)\n", f.Confidence)

	fmt.Fprintf(w, "  Goroutine %d blocked on: ", f.GoroutineID)
	cyan.Fprintf(w, "%s\n", f.BlockedOn)
	if f.BlockedFor > 0 {
		fmt.Fprintf(w, "  Blocked for: ")
		cyan.Fprintf(w, "%v\n", f.BlockedFor.Round(time.Millisecond))
	}
	if f.Location != "" {
		fmt.Fprintf(w, "  Location: ")
		cyan.Fprintf(w, "%s\n", f.Location)
	}
	if f.Stack != "" {
		fmt.Fprintln(w, "  Stack:")
		for _, line := range strings.Split(strings.TrimRight(f.Stack, "\n"), "\n") {
			dim.Fprintf(w, "  %s\n", line)
		}
	}
}

func countKind(findings []detector.Finding, kind detector.Kind) int {
	n := 0
	for _, f := range findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
