package grid

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool runs per-voxel functions over a box on a fixed number of goroutines.
// Dispatch is synchronous: it returns only after every voxel has been visited,
// which gives the caller a full barrier between invocations.
type Pool struct {
	workers int
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int { return p.workers }

// PanicError is returned by Dispatch when fn panicked on some voxel.
type PanicError struct {
	X, Y, Z int
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic at voxel (%d,%d,%d): %v", e.X, e.Y, e.Z, e.Value)
}

// Dispatch calls fn once for every voxel of box. Work is split into x-rows
// handed out through an atomic counter. fn must not depend on the order in
// which voxels are visited.
func (p *Pool) Dispatch(box Box, fn func(x, y, z int)) error {
	if box.Empty() {
		return nil
	}
	rows := box.Size.Y * box.Size.Z
	workers := p.workers
	if workers > rows {
		workers = rows
	}

	var (
		next     atomic.Int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	run := func() {
		defer wg.Done()
		var x, y, z int
		defer func() {
			if r := recover(); r != nil {
				errOnce.Do(func() { firstErr = &PanicError{X: x, Y: y, Z: z, Value: r} })
				// Drain remaining rows so other workers stop early.
				next.Store(int64(rows))
			}
		}()
		for {
			row := int(next.Add(1) - 1)
			if row >= rows {
				return
			}
			y = box.Origin.Y + row%box.Size.Y
			z = box.Origin.Z + row/box.Size.Y
			for x = box.Origin.X; x < box.Origin.X+box.Size.X; x++ {
				fn(x, y, z)
			}
		}
	}

	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go run()
	}
	wg.Wait()
	return firstErr
}
