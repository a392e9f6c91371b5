package scenario

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"
)

// job is one scripted testcase queued for replay
type job struct {
	scenario string
	script   Testcase
}

// testcasePool executes jobs on a fixed set of ants workers and collects
// their results. Invoke blocks while every worker is busy.
type testcasePool struct {
	pool *ants.PoolWithFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	results []TestcaseResult

	submitted atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
}

// newTestcasePool starts size workers running exec. onResult, if set, sees
// every result from the worker that produced it.
func newTestcasePool(size int, exec func(job) TestcaseResult, onResult func(TestcaseResult)) (*testcasePool, error) {
	tp := &testcasePool{results: make([]TestcaseResult, 0)}
	pool, err := ants.NewPoolWithFunc(size, func(arg interface{}) {
		defer tp.wg.Done()
		res := exec(arg.(job))
		switch {
		case res.Cancelled:
			tp.cancelled.Add(1)
		case !res.Passed():
			tp.failed.Add(1)
		}
		tp.mu.Lock()
		tp.results = append(tp.results, res)
		tp.mu.Unlock()
		if onResult != nil {
			onResult(res)
		}
	}, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}
	tp.pool = pool
	return tp, nil
}

func (tp *testcasePool) invoke(j job) error {
	tp.wg.Add(1)
	if err := tp.pool.Invoke(j); err != nil {
		tp.wg.Done()
		return err
	}
	tp.submitted.Add(1)
	return nil
}

// close waits for queued jobs, releases the workers and returns the results
// ordered by testcase ID
func (tp *testcasePool) close() []TestcaseResult {
	tp.wg.Wait()
	tp.pool.Release()

	tp.mu.Lock()
	defer tp.mu.Unlock()
	sort.Slice(tp.results, func(i, j int) bool { return tp.results[i].ID < tp.results[j].ID })
	return tp.results
}

// PoolStats is a point-in-time view of the replay workers
type PoolStats struct {
	Capacity  int   `json:"capacity"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

func (tp *testcasePool) stats() PoolStats {
	tp.mu.Lock()
	completed := int64(len(tp.results))
	tp.mu.Unlock()
	return PoolStats{
		Capacity:  tp.pool.Cap(),
		Submitted: tp.submitted.Load(),
		Completed: completed,
		Failed:    tp.failed.Load(),
		Cancelled: tp.cancelled.Load(),
	}
}
