package lesson

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// runInterrupt parks two tasks on a monitor nobody notifies, then interrupts
// the whole group by cancelling its context.
func runInterrupt(ctx context.Context, env *Env) error {
	groupCtx, interrupt := context.WithCancel(ctx)
	defer interrupt()

	monitor := make(chan struct{})
	waiting := make(chan struct{}, 2)

	g, gctx := errgroup.WithContext(groupCtx)
	for _, name := range []string{"A", "B"} {
		g.Go(func() error {
			env.Printf("%s about to wait.\n", name)
			waiting <- struct{}{}
			select {
			case <-monitor:
			case <-gctx.Done():
				env.Printf("%s interrupted.\n", name)
				env.Report.Add("interrupted", 1)
			}
			env.Printf("%s terminating.\n", name)
			return nil
		})
	}

	err := Sleep(ctx, env.Config.InterruptAfter.D())
	interrupt()
	if werr := g.Wait(); werr != nil {
		return werr
	}
	env.Report.Set("waited", len(waiting))
	return err
}
