package scenario

import (
	"sync/atomic"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestcasePool(t *testing.T) {
	var seen atomic.Int32
	exec := func(j job) TestcaseResult {
		res := TestcaseResult{ID: testbench.TestcaseID(len(j.script.Name)), Name: j.script.Name}
		switch j.script.Name {
		case "bad":
			res.Failures = []string{"expected pass"}
		case "cut":
			res.Cancelled = true
		}
		return res
	}
	pool, err := newTestcasePool(2, exec, func(TestcaseResult) { seen.Add(1) })
	require.NoError(t, err)

	for _, name := range []string{"longest", "bad", "ok", "cut"} {
		require.NoError(t, pool.invoke(job{scenario: "s", script: Testcase{Name: name}}))
	}
	results := pool.close()

	require.Len(t, results, 4)
	assert.Equal(t, "ok", results[0].Name)
	assert.Equal(t, "longest", results[3].Name)
	assert.Equal(t, int32(4), seen.Load())

	st := pool.stats()
	assert.Equal(t, 2, st.Capacity)
	assert.Equal(t, int64(4), st.Submitted)
	assert.Equal(t, int64(4), st.Completed)
	assert.Equal(t, int64(1), st.Failed)
	assert.Equal(t, int64(1), st.Cancelled)

	assert.Error(t, pool.invoke(job{}))
}
