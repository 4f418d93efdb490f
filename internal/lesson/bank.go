package lesson

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Heman10x-NGU/threadlab/internal/bank"
)

// teller is one of the two workers posting to a shared transaction.
type teller struct {
	thread string
	op     bank.Record
}

var tellers = []teller{
	{"Deposit Thread", bank.Record{Name: bank.Deposit, Amount: bank.DepositAmount}},
	{"Withdrawal Thread", bank.Record{Name: bank.Withdrawal, Amount: bank.WithdrawalAmount}},
}

// post performs one critical section against tx: name, a random pause,
// amount, then print what the record now says. lock and unlock bracket it
// and may be no-ops.
func post(ctx context.Context, env *Env, tx *bank.Transaction, op bank.Record, lock, unlock func()) error {
	lock()
	defer unlock()

	tx.SetName(op.Name)
	if err := Sleep(ctx, env.RandDuration(env.Config.BankMaxDelay.D())); err != nil {
		return err
	}
	tx.SetAmount(op.Amount)
	recordPosting(env, tx.Snapshot())
	return nil
}

func recordPosting(env *Env, rec bank.Record) {
	env.Printf("%s\n", rec)
	env.Report.Add("postings", 1)
	if !bank.Consistent(rec) {
		env.Report.Add("torn", 1)
	}
}

// runTellers starts one goroutine per teller, each calling step for every
// iteration, and waits for both.
func runTellers(ctx context.Context, env *Env, step func(ctx context.Context, t teller) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range tellers {
		g.Go(func() error {
			for range env.Config.BankIterations {
				if err := step(ctx, t); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func nop() {}

func runBankNoSync(ctx context.Context, env *Env) error {
	tx := &bank.Transaction{}
	return runTellers(ctx, env, func(ctx context.Context, t teller) error {
		return post(ctx, env, tx, t.op, nop, nop)
	})
}

func runBankSync(ctx context.Context, env *Env) error {
	tx := &bank.Transaction{}
	return runTellers(ctx, env, func(ctx context.Context, t teller) error {
		return post(ctx, env, tx, t.op, tx.Lock, tx.Unlock)
	})
}

func runBankMethod(ctx context.Context, env *Env) error {
	tx := &bank.Transaction{}
	return runTellers(ctx, env, func(ctx context.Context, t teller) error {
		recordPosting(env, tx.Update(t.op.Name, t.op.Amount))
		return ctx.Err()
	})
}

// runBankWrongLock gives each teller its own mutex. Both lock successfully
// every time because they never contend, so the transaction is unguarded.
func runBankWrongLock(ctx context.Context, env *Env) error {
	tx := &bank.Transaction{}
	own := make(map[string]*sync.Mutex, len(tellers))
	for _, t := range tellers {
		own[t.thread] = &sync.Mutex{}
	}
	return runTellers(ctx, env, func(ctx context.Context, t teller) error {
		mu := own[t.thread]
		return post(ctx, env, tx, t.op, mu.Lock, mu.Unlock)
	})
}

// runBankDeadlock has the deposit teller take ledger then journal while the
// withdrawal teller takes journal then ledger. Both grab their first lock,
// meet, and then wait on each other forever. A watchdog notices that no
// posting has happened within DeadlockTimeout and cancels both.
func runBankDeadlock(ctx context.Context, env *Env) error {
	books := bank.NewBooks()
	tx := &bank.Transaction{}
	order := map[string][2]*semaphore.Weighted{
		tellers[0].thread: {books.Ledger, books.Journal},
		tellers[1].thread: {books.Journal, books.Ledger},
	}
	lockName := map[*semaphore.Weighted]string{books.Ledger: "ledger", books.Journal: "journal"}

	// Both tellers meet after taking their first lock so the deadlock is
	// certain. The last to arrive closes met; a cancelled teller never
	// arrives, so waiting also ends with ctx.
	met := make(chan struct{})
	var pending atomic.Int32
	pending.Store(int32(len(tellers)))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- runTellers(ctx, env, func(ctx context.Context, t teller) error {
			first, second := order[t.thread][0], order[t.thread][1]
			firstIter := env.Report.count(t.thread) == 0
			err := bank.AcquireBoth(ctx, first, second, func() {
				env.Printf("%s holds %s, wants %s\n", t.thread, lockName[first], lockName[second])
				if firstIter {
					if pending.Add(-1) == 0 {
						close(met)
					}
					select {
					case <-met:
					case <-ctx.Done():
					}
				}
			})
			if err != nil {
				return err
			}
			defer bank.ReleaseBoth(first, second)
			env.Report.Add(t.thread, 1)
			recordPosting(env, tx.Update(t.op.Name, t.op.Amount))
			select {
			case progress <- struct{}{}:
			default:
			}
			return nil
		})
	}()

	timeout := env.Config.DeadlockTimeout.D()
	watchdog := time.NewTimer(timeout)
	defer watchdog.Stop()
	for {
		select {
		case err := <-done:
			return err
		case <-progress:
			watchdog.Reset(timeout)
		case <-watchdog.C:
			env.Report.MarkDeadlock()
			env.Report.Note("no posting for %v; both tellers hold one lock and wait for the other", timeout)
			env.Printf("deadlock: no progress for %v, interrupting tellers\n", timeout)
			env.Logger.Warn("deadlock detected", zap.Duration("timeout", timeout))
			cancel()
			err := <-done
			if !errors.Is(err, context.Canceled) {
				return err
			}
			if env.Config.FailOnDeadlock {
				return ErrDeadlock
			}
			return nil
		}
	}
}
