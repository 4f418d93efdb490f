package leaky

import "sync"

type account struct {
	mu      sync.Mutex
	rw      sync.RWMutex
	balance int
}

func (a *account) withdraw(n int) bool {
	a.mu.Lock()
	if a.balance < n {
		return false
	}
	a.balance -= n
	a.mu.Unlock()
	return true
}

func (a *account) deposit(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 {
		return
	}
	a.balance += n
}

func (a *account) peek() int {
	a.rw.RLock()
	b := a.balance
	a.rw.RUnlock()
	return b
}

func (a *account) audit() int {
	a.rw.RLock()
	if a.balance < 0 {
		a.rw.Unlock()
		return -1
	}
	a.rw.RUnlock()
	return a.balance
}

