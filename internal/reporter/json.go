package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/Heman10x-NGU/threadlab/internal/detector"
)

type jsonLesson struct {
	Lesson     string         `json:"lesson"`
	ElapsedMs  int64          `json:"elapsed_ms"`
	Counters   map[string]int `json:"counters"`
	Notes      []string       `json:"notes,omitempty"`
	Deadlocked bool           `json:"deadlocked"`
	Error      string         `json:"error,omitempty"`
}

type jsonFinding struct {
	Kind         string `json:"kind"`
	Confidence   string `json:"confidence"`
	GoroutineID  uint64 `json:"goroutine_id"`
	BlockedOn    string `json:"blocked_on"`
	BlockedForMs int64  `json:"blocked_for_ms"`
	Function     string `json:"function,omitempty"`
	Location     string `json:"location,omitempty"`
	Stack        string `json:"stack,omitempty"`
}

type jsonTrace struct {
	TraceFile          string        `json:"trace_file"`
	DurationMs         int64         `json:"duration_ms"`
	GoroutinesAnalyzed int           `json:"goroutines_analyzed"`
	Findings           []jsonFinding `json:"findings"`
}

type jsonLockFinding struct {
	Function string `json:"function"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

type jsonLockcheck struct {
	Findings []jsonLockFinding `json:"findings"`
}

type jsonReport struct {
	Lessons   []jsonLesson   `json:"lessons,omitempty"`
	Trace     *jsonTrace     `json:"trace,omitempty"`
	Lockcheck *jsonLockcheck `json:"lockcheck,omitempty"`
}

// WriteJSON writes r as indented JSON to w.
func WriteJSON(w io.Writer, r Report) error {
	var out jsonReport
	for _, s := range r.Lessons {
		jl := jsonLesson{
			Lesson:     s.Lesson,
			ElapsedMs:  s.Elapsed.Milliseconds(),
			Counters:   make(map[string]int, len(s.Counters)),
			Notes:      s.Notes,
			Deadlocked: s.Deadlocked,
		}
		for _, c := range s.Counters {
			jl.Counters[c.Name] = c.Value
		}
		if s.Err != nil {
			jl.Error = s.Err.Error()
		}
		out.Lessons = append(out.Lessons, jl)
	}

	if r.Trace != nil {
		out.Trace = &jsonTrace{
			TraceFile:          r.Trace.TraceFile,
			DurationMs:         r.Trace.DurationMs,
			GoroutinesAnalyzed: r.Trace.GoroutinesAnalyzed,
			Findings:           make([]jsonFinding, 0, len(r.Trace.Findings)),
		}
		for _, f := range r.Trace.Findings {
			out.Trace.Findings = append(out.Trace.Findings, toJSONFinding(f))
		}
	}

	if r.LockcheckRan {
		out.Lockcheck = &jsonLockcheck{Findings: make([]jsonLockFinding, 0, len(r.Locks))}
		for _, f := range r.Locks {
			out.Lockcheck.Findings = append(out.Lockcheck.Findings, jsonLockFinding(f))
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

func toJSONFinding(f detector.Finding) jsonFinding {
	return jsonFinding{
		Kind:         string(f.Kind),
		Confidence:   string(f.Confidence),
		GoroutineID:  f.GoroutineID,
		BlockedOn:    f.BlockedOn,
		BlockedForMs: f.BlockedFor.Round(time.Millisecond).Milliseconds(),
		Function:     f.Function,
		Location:     f.Location,
		Stack:        f.Stack,
	}
}
