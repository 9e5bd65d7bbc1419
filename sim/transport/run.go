package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/macrosim/macrosim/sim"
)

// RankFunc runs the whole simulation of one rank.
type RankFunc func(rank int, rt sim.ParallelRuntime) error

// RunRanks starts one goroutine per rank of f and waits for all of them.
// The first error that is not a consequence of another rank's abort is
// returned; a panic in a rank aborts the fabric and is returned as an error.
func RunRanks(f *Fabric, fn RankFunc) error {
	var (
		wg   sync.WaitGroup
		errs = make([]error, f.nproc)
	)
	for rank := 0; rank < f.nproc; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[rank] = fmt.Errorf("rank %d panicked: %v", rank, r)
					f.abort(errs[rank])
				}
			}()
			if err := fn(rank, f.Endpoint(rank)); err != nil {
				errs[rank] = err
				f.abort(err)
			}
		}(rank)
	}
	wg.Wait()

	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		var aborted *sim.AbortError
		if !errors.As(err, &aborted) {
			return err
		}
		if first == nil {
			first = err
		}
	}
	return first
}
