package engine

import (
	"context"
	"errors"
	"time"
)

// Run ticks the engine at Tuning.TickRateHz until ctx is done. Each tick runs
// Simulate when auto_simulate is set, preceded by Test when auto_test is set.
// A kernel failure stops the loop; other errors are logged and the loop keeps
// ticking.
func (e *Engine) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(e.tune.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !e.tune.AutoSimulate {
				continue
			}
			var err error
			if e.tune.AutoTest {
				err = e.TestAndSimulate()
			} else {
				err = e.Simulate()
			}
			switch {
			case err == nil:
			case errors.Is(err, ErrKernel):
				return err
			case errors.Is(err, ErrUninitialized):
				// Nothing to tick until Init succeeds.
			default:
				e.log.Printf("tick: %v", err)
			}
		}
	}
}
