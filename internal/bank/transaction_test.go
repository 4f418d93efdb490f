package bank

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConsistent(t *testing.T) {
	tests := []struct {
		rec  Record
		want bool
	}{
		{Record{Deposit, DepositAmount}, true},
		{Record{Withdrawal, WithdrawalAmount}, true},
		{Record{Deposit, WithdrawalAmount}, false},
		{Record{Withdrawal, DepositAmount}, false},
		{Record{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.rec.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Consistent(tt.rec))
		})
	}
}

func TestUpdateIsAlwaysConsistent(t *testing.T) {
	var tx Transaction
	var wg sync.WaitGroup
	for _, op := range []Record{{Deposit, DepositAmount}, {Withdrawal, WithdrawalAmount}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				rec := tx.Update(op.Name, op.Amount)
				if !Consistent(rec) {
					t.Errorf("torn record from Update: %v", rec)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.True(t, Consistent(tx.Snapshot()))
}

func TestUnguardedWritesCanTear(t *testing.T) {
	var tx Transaction
	tx.SetName(Deposit)
	tx.SetAmount(DepositAmount)
	tx.SetName(Withdrawal)

	rec := tx.Snapshot()
	assert.Equal(t, Record{Withdrawal, DepositAmount}, rec)
	assert.False(t, Consistent(rec))
}

func TestAcquireBothOppositeOrderDeadlocks(t *testing.T) {
	books := NewBooks()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var both sync.WaitGroup
	both.Add(2)
	step := func() { both.Done(); both.Wait() }

	errs := make(chan error, 2)
	go func() { errs <- AcquireBoth(ctx, books.Ledger, books.Journal, step) }()
	go func() { errs <- AcquireBoth(ctx, books.Journal, books.Ledger, step) }()

	require.ErrorIs(t, <-errs, context.DeadlineExceeded)
	require.ErrorIs(t, <-errs, context.DeadlineExceeded)

	// Nothing is left held after a failed acquire.
	require.NoError(t, AcquireBoth(context.Background(), books.Ledger, books.Journal, nil))
	ReleaseBoth(books.Ledger, books.Journal)
}
