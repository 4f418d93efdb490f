package lesson

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Heman10x-NGU/threadlab/internal/handoff"
)

const sentinel = 'Z'

func alphabet() []rune {
	out := make([]rune, 0, 26)
	for ch := 'A'; ch <= sentinel; ch++ {
		out = append(out, ch)
	}
	return out
}

func runProdCons(ctx context.Context, env *Env) error {
	cell := handoff.NewCell[rune]()
	stop := context.AfterFunc(ctx, cell.Close)
	defer stop()

	got, err := handOff(ctx, env, cell, 0)
	tallyHandoff(env, got)
	return err
}

func runProdConsWrong(ctx context.Context, env *Env) error {
	got, err := handOff(ctx, env, handoff.NewUnsafeCell[rune](), env.Config.WrongProdConsTakes)
	tallyHandoff(env, got)
	return err
}

// handOff runs one Producer and one Consumer over slot and returns what the
// consumer took.
func handOff(ctx context.Context, env *Env, slot handoff.Slot[rune], limit int) ([]rune, error) {
	delay := func() time.Duration { return env.RandDuration(env.Config.ProdConsMaxDelay.D()) }

	producer := &handoff.Producer[rune]{
		Slot:   slot,
		Values: alphabet(),
		Delay:  delay,
		OnPut:  func(ch rune) { env.Printf("%s produced by producer.\n", letter(ch)) },
	}
	consumer := &handoff.Consumer[rune]{
		Slot:     slot,
		Sentinel: sentinel,
		Delay:    delay,
		Limit:    limit,
		OnTake:   func(ch rune) { env.Printf("%s consumed by consumer.\n", letter(ch)) },
	}

	var g errgroup.Group
	var got []rune
	g.Go(func() error { return producer.Run(ctx) })
	g.Go(func() error {
		var err error
		got, err = consumer.Run(ctx)
		return err
	})
	err := g.Wait()
	if errors.Is(err, handoff.ErrClosed) && ctx.Err() != nil {
		err = ctx.Err()
	}
	return got, err
}

func letter(ch rune) string {
	if ch == 0 {
		return "(empty)"
	}
	return string(ch)
}

// tallyHandoff compares what was consumed against the alphabet.
func tallyHandoff(env *Env, got []rune) {
	seen := make(map[rune]int)
	empty, outOfOrder := 0, 0
	var prev rune
	for _, ch := range got {
		if ch == 0 {
			empty++
			continue
		}
		seen[ch]++
		if ch < prev {
			outOfOrder++
		}
		prev = ch
	}
	lost, duplicated := 0, 0
	for _, ch := range alphabet() {
		switch n := seen[ch]; {
		case n == 0:
			lost++
		case n > 1:
			duplicated += n - 1
		}
	}

	r := env.Report
	r.Set("consumed", len(got))
	r.Set("lost", lost)
	r.Set("duplicated", duplicated)
	r.Set("empty_reads", empty)
	r.Set("out_of_order", outOfOrder)
	if lost+duplicated+empty+outOfOrder == 0 && len(got) == 26 {
		r.Note("every letter was consumed exactly once, in order")
	}
}
