package ops

import (
	"sync"
	"sync/atomic"
)

// convWorkers controls the number of goroutines used by the convolution
// kernels. 0 or 1 means sequential. Set via SetConvWorkers, typically wired
// to --conv-workers.
var convWorkers atomic.Int32

// SetConvWorkers sets the maximum number of goroutines used for parallel
// Conv1D / ConvTranspose1D execution. n <= 1 disables parallelism.
func SetConvWorkers(n int) {
	if n < 0 {
		n = 0
	}

	convWorkers.Store(int32(min(n, 1<<30)))
}

func getConvWorkers() int { return int(convWorkers.Load()) }

// parallelFor splits [0, n) into chunks and runs fn(lo, hi) concurrently.
// When workers <= 1 the call is sequential.
func parallelFor(n, workers int, fn func(lo, hi int)) {
	if workers <= 1 || n <= 1 {
		fn(0, n)
		return
	}

	workers = min(workers, n)

	var wg sync.WaitGroup

	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)

		wg.Add(1)

		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}
