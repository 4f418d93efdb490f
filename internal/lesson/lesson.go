// Package lesson contains the runnable concurrency lessons and the
// environment they run in.
package lesson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Heman10x-NGU/threadlab/internal/config"
)

var (
	// ErrUnknownLesson is returned by Registry.Lookup for names it does not hold.
	ErrUnknownLesson = errors.New("unknown lesson")
	// ErrDeadlock is returned by the deadlock lesson when configured to fail.
	ErrDeadlock = errors.New("deadlock detected")
)

// Lesson is one self-contained demonstration.
type Lesson interface {
	Name() string
	Summary() string
	Run(ctx context.Context, env *Env) error
}

type lessonFunc struct {
	name    string
	summary string
	run     func(ctx context.Context, env *Env) error
}

func (l lessonFunc) Name() string    { return l.name }
func (l lessonFunc) Summary() string { return l.summary }

func (l lessonFunc) Run(ctx context.Context, env *Env) error { return l.run(ctx, env) }

// Env is everything a lesson and its workers share. Workers get it passed in;
// nothing is kept in package state.
type Env struct {
	Out    io.Writer
	In     io.Reader
	Logger *zap.Logger
	Config config.LessonConfig
	// Args are lesson-specific positional arguments from the command line.
	Args   []string
	Report *Report

	outMu sync.Mutex
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEnv returns an environment writing to out with randomness seeded from
// cfg.Seed. In defaults to an empty reader and Logger to a no-op logger.
func NewEnv(out io.Writer, cfg *config.Config, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Out:    out,
		In:     strings.NewReader(""),
		Logger: logger,
		Config: cfg.Lessons,
		Report: &Report{},
		rng:    rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
	}
}

// Printf writes one formatted chunk to Out. Concurrent calls never interleave
// within a chunk.
func (e *Env) Printf(format string, args ...any) {
	e.outMu.Lock()
	defer e.outMu.Unlock()
	fmt.Fprintf(e.Out, format, args...)
}

// RandN returns a pseudo-random int in [0, n).
func (e *Env) RandN(n int) int {
	if n <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.IntN(n)
}

// RandDuration returns a pseudo-random duration in [0, max).
func (e *Env) RandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return time.Duration(e.rng.Int64N(int64(max)))
}

// Sleep pauses for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Report collects what a lesson observed while it ran.
type Report struct {
	mu       sync.Mutex
	counters map[string]int
	notes    []string
	deadlock bool
}

// Add increments a named counter.
func (r *Report) Add(key string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = make(map[string]int)
	}
	r.counters[key] += n
}

// Set overwrites a named counter.
func (r *Report) Set(key string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counters == nil {
		r.counters = make(map[string]int)
	}
	r.counters[key] = n
}

func (r *Report) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[key]
}

// Note records a free-form observation.
func (r *Report) Note(format string, args ...any) {
	r.mu.Lock()
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

// MarkDeadlock records that the lesson's workers stopped making progress.
func (r *Report) MarkDeadlock() {
	r.mu.Lock()
	r.deadlock = true
	r.mu.Unlock()
}

// Counter is one named count in a Summary.
type Counter struct {
	Name  string
	Value int
}

// Summary is the immutable result of one lesson run.
type Summary struct {
	Lesson     string
	Elapsed    time.Duration
	Counters   []Counter
	Notes      []string
	Deadlocked bool
	Err        error
}

// Count returns the named counter, or zero.
func (s Summary) Count(name string) int {
	for _, c := range s.Counters {
		if c.Name == name {
			return c.Value
		}
	}
	return 0
}

func (r *Report) summary(name string, elapsed time.Duration, err error) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Summary{
		Lesson:     name,
		Elapsed:    elapsed,
		Notes:      append([]string(nil), r.notes...),
		Deadlocked: r.deadlock,
		Err:        err,
	}
	for k, v := range r.counters {
		s.Counters = append(s.Counters, Counter{Name: k, Value: v})
	}
	sort.Slice(s.Counters, func(i, j int) bool { return s.Counters[i].Name < s.Counters[j].Name })
	return s
}

// Run executes l with a fresh Report and returns its Summary. The returned
// error is l's error, also recorded in the Summary.
func Run(ctx context.Context, l Lesson, env *Env) (Summary, error) {
	env.Report = &Report{}
	log := env.Logger.With(zap.String("lesson", l.Name()))
	log.Debug("lesson starting", zap.Strings("args", env.Args))

	start := time.Now()
	err := l.Run(ctx, env)
	elapsed := time.Since(start)

	if err != nil {
		log.Warn("lesson failed", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		log.Info("lesson finished", zap.Duration("elapsed", elapsed))
	}
	return env.Report.summary(l.Name(), elapsed, err), err
}
