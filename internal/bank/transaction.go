// Package bank holds the shared financial-transaction record that the
// synchronization lessons fight over.
package bank

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Transaction names and the amount each one must carry.
const (
	Deposit    = "Deposit"
	Withdrawal = "Withdrawal"

	DepositAmount    = 2000.0
	WithdrawalAmount = 250.0
)

// Record is a point-in-time view of a Transaction.
type Record struct {
	Name   string
	Amount float64
}

func (r Record) String() string {
	return fmt.Sprintf("%s %.1f", r.Name, r.Amount)
}

// Consistent reports whether the record's amount belongs to its name.
func Consistent(r Record) bool {
	switch r.Name {
	case Deposit:
		return r.Amount == DepositAmount
	case Withdrawal:
		return r.Amount == WithdrawalAmount
	}
	return false
}

// Transaction is one record shared by several workers. Each field is stored
// atomically; keeping the pair consistent is up to the caller.
type Transaction struct {
	mu     sync.Mutex
	name   atomic.Pointer[string]
	amount atomic.Uint64
}

// SetName writes the name without any lock.
func (t *Transaction) SetName(name string) {
	t.name.Store(&name)
}

// SetAmount writes the amount without any lock.
func (t *Transaction) SetAmount(amount float64) {
	t.amount.Store(math.Float64bits(amount))
}

// Snapshot reads both fields without any lock.
func (t *Transaction) Snapshot() Record {
	var r Record
	if p := t.name.Load(); p != nil {
		r.Name = *p
	}
	r.Amount = math.Float64frombits(t.amount.Load())
	return r
}

// Lock acquires the transaction's own monitor.
func (t *Transaction) Lock() { t.mu.Lock() }

// Unlock releases the transaction's own monitor.
func (t *Transaction) Unlock() { t.mu.Unlock() }

// Update sets both fields under the transaction's monitor and returns what it
// wrote.
func (t *Transaction) Update(name string, amount float64) Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.SetName(name)
	t.SetAmount(amount)
	return t.Snapshot()
}

// Books is a pair of single-holder locks, ledger and journal, that workers
// must both hold to post a transfer. Acquiring them in different orders from
// two workers deadlocks.
type Books struct {
	Ledger  *semaphore.Weighted
	Journal *semaphore.Weighted
}

// NewBooks returns unlocked books.
func NewBooks() *Books {
	return &Books{
		Ledger:  semaphore.NewWeighted(1),
		Journal: semaphore.NewWeighted(1),
	}
}

// AcquireBoth takes first then second. On failure nothing is held.
func AcquireBoth(ctx context.Context, first, second *semaphore.Weighted, between func()) error {
	if err := first.Acquire(ctx, 1); err != nil {
		return err
	}
	if between != nil {
		between()
	}
	if err := second.Acquire(ctx, 1); err != nil {
		first.Release(1)
		return err
	}
	return nil
}

// ReleaseBoth releases locks taken by AcquireBoth.
func ReleaseBoth(first, second *semaphore.Weighted) {
	second.Release(1)
	first.Release(1)
}
