package handoff

import (
	"context"
	"time"
)

// Delay returns how long a role pauses before its next operation.
type Delay func() time.Duration

// Producer puts Values into a slot one at a time, pausing before each Put.
type Producer[T any] struct {
	Slot   Slot[T]
	Values []T
	Delay  Delay
	// OnPut, if set, is called after each successful Put.
	OnPut func(T)
}

// Run produces every value or stops early when the slot is closed. ctx is
// checked only between values: a Put already blocked on a full Cell waits
// until the Cell is taken from or closed, so callers that need cancellation
// close the Cell when ctx is done (for example with context.AfterFunc).
func (p *Producer[T]) Run(ctx context.Context) error {
	for _, v := range p.Values {
		if err := pause(ctx, p.Delay); err != nil {
			return err
		}
		if err := p.Slot.Put(v); err != nil {
			return err
		}
		if p.OnPut != nil {
			p.OnPut(v)
		}
	}
	return nil
}

// Consumer takes values from a slot until it sees Sentinel.
type Consumer[T comparable] struct {
	Slot     Slot[T]
	Sentinel T
	Delay    Delay
	// Limit bounds the number of takes; zero means no bound. An UnsafeCell
	// may never yield the sentinel, so the wrong-way lesson sets it.
	Limit  int
	OnTake func(T)
}

// Run returns the values taken, in order, including the sentinel.
func (c *Consumer[T]) Run(ctx context.Context) ([]T, error) {
	var got []T
	for c.Limit == 0 || len(got) < c.Limit {
		if err := pause(ctx, c.Delay); err != nil {
			return got, err
		}
		v, err := c.Slot.Take()
		if err != nil {
			return got, err
		}
		got = append(got, v)
		if c.OnTake != nil {
			c.OnTake(v)
		}
		if v == c.Sentinel {
			break
		}
	}
	return got, nil
}

func pause(ctx context.Context, d Delay) error {
	if d == nil {
		return ctx.Err()
	}
	wait := d()
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
