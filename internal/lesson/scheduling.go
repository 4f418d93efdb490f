package lesson

import (
	"bufio"
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

func calcPI(terms int) float64 {
	negative := true
	pi := 0.0
	for i := 3; i < terms; i += 2 {
		if negative {
			pi -= 1.0 / float64(i)
		} else {
			pi += 1.0 / float64(i)
		}
		negative = !negative
	}
	pi += 1.0
	pi *= 4.0
	return pi
}

func runSchedule(ctx context.Context, env *Env) error {
	var wg sync.WaitGroup
	for _, name := range []string{"CalcThread A", "CalcThread B"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range env.Config.ScheduleRounds {
				if ctx.Err() != nil {
					return
				}
				env.Printf("%s: %v\n", name, calcPI(env.Config.PiTerms))
				env.Report.Add("lines", 1)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// runPriority pairs an I/O-bound echo worker with a CPU-bound summing worker.
// Goroutines have no priority; the nearest knob is pinning the echo worker to
// its own OS thread.
func runPriority(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, env.Config.PriorityDuration.D())
	defer cancel()

	lines := make(chan string)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer close(lines)
		sc := bufio.NewScanner(env.In)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		wg  sync.WaitGroup
		sum atomic.Int64
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		for {
			select {
			case line, ok := <-lines:
				if !ok {
					return
				}
				env.Printf("%s\n", byteCodes(line))
				env.Report.Add("lines_echoed", 1)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for ctx.Err() == nil {
			for range 1000 {
				sum.Add(1)
			}
			runtime.Gosched()
		}
	}()

	wg.Wait()
	env.Printf("sum = %d\n", sum.Load())
	env.Report.Set("sum", int(sum.Load()))
	env.Report.Note("goroutines have no priorities; the echo worker ran on a locked OS thread instead")

	select {
	case <-readerDone:
	case <-time.After(100 * time.Millisecond):
		env.Report.Note("input reader still blocked in Read; it ends when its input does")
	}
	return nil
}

// byteCodes renders each byte of line plus the newline as decimal codes.
func byteCodes(line string) string {
	codes := make([]string, 0, len(line)+1)
	for _, b := range []byte(line + "\n") {
		codes = append(codes, strconv.Itoa(int(b)))
	}
	return strings.Join(codes, " ")
}

func runYield(ctx context.Context, env *Env) error {
	yield := len(env.Args) == 0

	var (
		sum      atomic.Int64
		finished atomic.Bool
	)
	observed := make(chan int)
	go func() {
		distinct, last := 0, int64(-1)
		for {
			stop := finished.Load()
			if v := sum.Load(); v != last {
				last = v
				distinct++
				env.Printf("sum = %d\n", v)
			}
			if stop {
				break
			}
		}
		observed <- distinct
	}()

	var err error
	for i := 1; i <= env.Config.YieldIncrements; i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			err = ctx.Err()
			break
		}
		sum.Add(1)
		if yield {
			runtime.Gosched()
		}
	}
	finished.Store(true)

	distinct := <-observed
	env.Report.Set("sum", int(sum.Load()))
	env.Report.Set("distinct_observations", distinct)
	if yield {
		env.Report.Note("main yielded after every increment")
	}
	return err
}
