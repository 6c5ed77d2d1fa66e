package transcoder

import (
	"runtime"
	"sync"
)

// parallelMap applies fn to every item concurrently, bounded by the number
// of CPUs, and returns results and errors in input order.
func parallelMap[T, R any](items []T, fn func(T) (R, error)) ([]R, []error) {
	results := make([]R, len(items))
	errs := make([]error, len(items))

	sem := make(chan struct{}, max(runtime.NumCPU(), 1))
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		go func(idx int, it T) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx], errs[idx] = fn(it)
		}(i, item)
	}

	wg.Wait()
	return results, errs
}
