package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Heman10x-NGU/threadlab/internal/detector"
	"github.com/Heman10x-NGU/threadlab/internal/lesson"
	"github.com/Heman10x-NGU/threadlab/internal/reporter"
	"github.com/Heman10x-NGU/threadlab/internal/tracer"
)

var (
	flagAll            bool
	flagTrace          bool
	flagSweep          bool
	flagGOMAXPROCS     int
	flagFailOnDeadlock bool
)

var runCmd = &cobra.Command{
	Use:   "run <lesson> [args...]",
	Short: "Run a lesson, or every lesson with --all",
	Long: `Run executes one lesson with the given lesson arguments, or the whole
catalogue in order with --all, then prints what each run observed.

With --trace the run is wrapped in the runtime tracer and the trace is
analyzed for leaked, deadlocked and long-blocked goroutines. With --sweep the
run is repeated under GOMAXPROCS 1, 2 and 4 (up to the CPU count) to show how
interleavings change.`,
	Example: `  threadlab run prodcons
  threadlab run name Worker-7
  threadlab run daemon background
  threadlab run bank-deadlock --trace --min-block 500ms
  threadlab run bank-nosync --sweep
  threadlab run --all --format json`,
	Args: func(cmd *cobra.Command, args []string) error {
		if flagAll {
			return cobra.NoArgs(cmd, args)
		}
		return cobra.MinimumNArgs(1)(cmd, args)
	},
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.BoolVar(&flagAll, "all", false, "Run every lesson in catalogue order")
	f.BoolVar(&flagTrace, "trace", false, "Record an execution trace of the run and analyze it")
	f.BoolVar(&flagSweep, "sweep", false, "Repeat the run under several GOMAXPROCS values")
	f.IntVar(&flagGOMAXPROCS, "gomaxprocs", 0, "GOMAXPROCS for the run (0 keeps the current value)")
	f.BoolVar(&flagFailOnDeadlock, "fail-on-deadlock", false, "Exit non-zero when a deadlock is detected")
}

// target is one lesson with its arguments.
type target struct {
	lesson lesson.Lesson
	args   []string
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	if flagFailOnDeadlock {
		cfg.Lessons.FailOnDeadlock = true
	}

	targets, err := resolve(args)
	if err != nil {
		return err
	}

	procs := []int{flagGOMAXPROCS}
	if flagSweep {
		procs = scheduleDiversityValues()
	}

	var (
		report reporter.Report
		runErr error
	)
	exec := func() error {
		for _, p := range procs {
			sums, err := runTargets(ctx, cmd, targets, p)
			report.Lessons = append(report.Lessons, sums...)
			if err != nil {
				return err
			}
		}
		return nil
	}

	if flagTrace {
		rec, err := tracer.Record(cfg.Trace.Dir, exec)
		if err != nil {
			return fmt.Errorf("trace: %w", err)
		}
		if !cfg.Trace.Keep {
			defer rec.Remove()
		}
		runErr = rec.Err
		logger.Info("trace recorded", zap.String("file", rec.File))

		result, err := detector.Analyze(rec.File, detector.Options{MinBlock: cfg.Trace.MinBlock.D()})
		if err != nil {
			return errors.Join(runErr, fmt.Errorf("analyze: %w", err))
		}
		report.Trace = result
	} else {
		runErr = exec()
	}

	if err := writeReport(cmd, report); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func resolve(args []string) ([]target, error) {
	reg := lesson.Builtin()
	if flagAll {
		var ts []target
		for _, l := range reg.All() {
			ts = append(ts, target{lesson: l})
		}
		return ts, nil
	}
	l, err := reg.Lookup(args[0])
	if err != nil {
		return nil, err
	}
	return []target{{lesson: l, args: args[1:]}}, nil
}

// runTargets runs ts one at a time under the given GOMAXPROCS (0 leaves it
// alone). The first failure cancels the lessons that have not started.
func runTargets(ctx context.Context, cmd *cobra.Command, ts []target, procs int) ([]lesson.Summary, error) {
	if procs > 0 {
		prev := runtime.GOMAXPROCS(procs)
		defer runtime.GOMAXPROCS(prev)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(1)
	sums := make([]*lesson.Summary, len(ts))
	for i, t := range ts {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			env := lesson.NewEnv(cmd.OutOrStdout(), cfg, logger)
			env.In = cmd.InOrStdin()
			env.Args = t.args

			s, err := lesson.Run(gctx, t.lesson, env)
			if procs > 0 {
				s.Notes = append(s.Notes, fmt.Sprintf("GOMAXPROCS=%d", procs))
			}
			sums[i] = &s
			return err
		})
	}
	err := g.Wait()

	var out []lesson.Summary
	for _, s := range sums {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, err
}

// scheduleDiversityValues returns the GOMAXPROCS values a sweep runs with:
// 1 (fully serialized), then 2 and 4 where the machine has that many CPUs.
func scheduleDiversityValues() []int {
	numCPU := runtime.NumCPU()
	var result []int
	for _, v := range []int{1, 2, 4} {
		if v == 1 || v <= numCPU {
			result = append(result, v)
		}
	}
	return result
}
