package lesson

import (
	"context"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

func runName(ctx context.Context, env *Env) error {
	name := "Thread-0"
	if len(env.Args) > 0 {
		name = env.Args[0]
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env.Printf("My name is: %s\n", name)
	}()
	wg.Wait()
	env.Report.Set("workers", 1)
	return nil
}

// piWorker approximates pi with the Leibniz series. The running value is
// published after every term so a reader can see it half-done.
type piWorker struct {
	terms int
	bits  atomic.Uint64
	done  chan struct{}
	err   error
}

func newPiWorker(terms int) *piWorker {
	return &piWorker{terms: terms, done: make(chan struct{})}
}

func (w *piWorker) value() float64 { return math.Float64frombits(w.bits.Load()) }

func (w *piWorker) alive() bool {
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

func (w *piWorker) run(ctx context.Context, env *Env) {
	defer close(w.done)

	negative := true
	pi := 0.0
	for i := 3; i < w.terms; i += 2 {
		if i%4096 == 3 {
			if err := ctx.Err(); err != nil {
				w.err = err
				return
			}
		}
		if negative {
			pi -= 1.0 / float64(i)
		} else {
			pi += 1.0 / float64(i)
		}
		negative = !negative
		w.bits.Store(math.Float64bits(pi))
	}
	pi += 1.0
	pi *= 4.0
	w.bits.Store(math.Float64bits(pi))
	env.Printf("Finished calculating PI\n")
}

func runPiWrong(ctx context.Context, env *Env) error {
	w := newPiWorker(env.Config.PiTerms)
	go w.run(ctx, env)

	err := Sleep(ctx, env.Config.PiPollInterval.D())
	early := w.alive()
	env.Printf("pi = %v\n", w.value())

	// Still joined, so nothing outlives the lesson.
	<-w.done
	if early {
		env.Report.Set("read_before_finish", 1)
		env.Report.Note("pi was read while the worker was still running; final value %v", w.value())
	}
	if err != nil {
		return err
	}
	return w.err
}

func runPiPoll(ctx context.Context, env *Env) error {
	w := newPiWorker(env.Config.PiTerms)
	go w.run(ctx, env)

	polls := 0
	for w.alive() {
		polls++
		if err := Sleep(ctx, env.Config.PiPollInterval.D()); err != nil {
			<-w.done
			return err
		}
	}
	env.Printf("pi = %v\n", w.value())
	env.Report.Set("polls", polls)
	return w.err
}

func runPiJoin(ctx context.Context, env *Env) error {
	w := newPiWorker(env.Config.PiTerms)
	go w.run(ctx, env)

	<-w.done
	if w.err != nil {
		return w.err
	}
	env.Printf("pi = %v\n", w.value())
	return nil
}

// runDaemon contrasts the two lifetimes a worker can have. A user worker is
// waited for: the run ends only when its bounded work is done. A daemon
// worker is abandoned when main finishes its grace period.
func runDaemon(ctx context.Context, env *Env) error {
	daemon := len(env.Args) > 0
	kind := "user"
	if daemon {
		kind = "daemon"
	}

	workerCtx, stop := context.WithCancel(ctx)
	defer stop()

	var ticks atomic.Int64
	done := make(chan error, 1)
	go func() {
		t := time.NewTicker(env.Config.DaemonInterval.D())
		defer t.Stop()
		for n := 1; daemon || n <= env.Config.DaemonTicks; n++ {
			select {
			case <-t.C:
				ticks.Add(1)
				env.Printf("%s worker tick %d\n", kind, n)
			case <-workerCtx.Done():
				done <- workerCtx.Err()
				return
			}
		}
		done <- nil
	}()

	if err := Sleep(ctx, env.Config.DaemonGrace.D()); err != nil {
		stop()
		<-done
		return err
	}
	env.Printf("main finished after %v\n", env.Config.DaemonGrace.D())

	if daemon {
		stop()
		<-done
		env.Report.Note("daemon worker was dropped when main finished")
	} else {
		err := <-done
		if err != nil {
			return err
		}
		env.Report.Note("user worker kept the run alive until its work was done")
	}
	env.Report.Set("ticks", int(ticks.Load()))
	env.Logger.Debug("worker stopped", zap.String("kind", kind), zap.Int64("ticks", ticks.Load()))
	return nil
}

// runBoxes draws random rectangles from a runner goroutine until the run
// duration elapses or BoxesMax boxes are drawn.
func runBoxes(ctx context.Context, env *Env) error {
	ctx, cancel := context.WithTimeout(ctx, env.Config.BoxesDuration.D())
	defer cancel()

	drawn := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil && (env.Config.BoxesMax <= 0 || drawn < env.Config.BoxesMax) {
			width := env.RandN(30)
			if width < 2 {
				width += 2
			}
			height := env.RandN(10)
			if height < 2 {
				height += 2
			}
			env.Printf("%s", box(width, height))
			drawn++
		}
	}()
	<-done

	env.Report.Set("boxes", drawn)
	return nil
}

func box(width, height int) string {
	var sb strings.Builder
	edge := strings.Repeat("*", width) + "\n"
	sb.WriteString(edge)
	for r := 0; r < height-2; r++ {
		sb.WriteString("*" + strings.Repeat(" ", width-2) + "*\n")
	}
	sb.WriteString(edge)
	return sb.String()
}
