package main

import (
	"bytes"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/server"
	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: smoke
testcases:
  - name: connected
    eia_mask: 0x06
    eea_mask: 0x06
    events:
      - nas_smc: {eia: 2, eea: 2}
      - attach_accept: {}
      - rrc_smc: {eia: 2, eea: 2}
    expect: {interesting: false, connected: true}
  - name: expected-reject
    eia_mask: 0x06
    eea_mask: 0x06
    events:
      - attach_reject: {cause: 23}
    expect: {interesting: false}
`

const failingScenario = `
name: wrong-expectation
testcases:
  - name: null-integrity
    eia_mask: 0x02
    eea_mask: 0x02
    events:
      - nas_smc: {eia: 0, eea: 1}
    expect: {interesting: false}
`

const interestingScenario = `
name: known-bad
testcases:
  - name: null-integrity
    eia_mask: 0x02
    eea_mask: 0x02
    events:
      - nas_smc: {eia: 0, eea: 1}
    expect: {interesting: true}
`

const interestingTrace = `{"event":"start","eia_mask":2,"eea_mask":2}
{"event":"nas_smc","eia":0,"eea":1}
{"event":"attach_accept"}
{"event":"rrc_smc","eia":1,"eea":1}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the CLI with args and returns stdout and the exit code
func execute(t *testing.T, args ...string) (string, int) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return out.String(), 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return out.String(), ee.code
	}
	return out.String() + err.Error(), exitUsage
}

func TestVersion(t *testing.T) {
	out, code := execute(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version)
}

func TestCauses(t *testing.T) {
	out, code := execute(t, "causes")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "* "+testbench.CauseString(23))
	assert.Contains(t, out, "  "+testbench.CauseString(7))

	cfg := writeFile(t, "cfg.yaml", "testbench:\n  expected_reject_causes: [7]\n")
	out, code = execute(t, "causes", "--config", cfg)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "* "+testbench.CauseString(7))
	assert.Contains(t, out, "  "+testbench.CauseString(23))
}

func TestReplay_Pass(t *testing.T) {
	path := writeFile(t, "smoke.yaml", passingScenario)
	out, code := execute(t, "replay", path, "--workers", "2")
	assert.Equal(t, 0, code, out)
	assert.Contains(t, out, "2/2 testcases met their expectations")
	assert.Contains(t, out, "=== Testcase 1 ===")
	assert.Contains(t, out, "result: PASS")
}

func TestReplay_Fail(t *testing.T) {
	path := writeFile(t, "bad.yaml", failingScenario)
	out, code := execute(t, "replay", path, "--format", "json")
	assert.Equal(t, exitFail, code)
	assert.Contains(t, out, "[!] wrong-expectation/null-integrity")
	assert.Contains(t, out, `"pass": false`)
}

func TestReplay_MetExpectationStillFails(t *testing.T) {
	path := writeFile(t, "known.yaml", interestingScenario)
	out, code := execute(t, "replay", path, "--format", "json")
	assert.Equal(t, exitFail, code, out)
	assert.Contains(t, out, "1/1 testcases met their expectations")
	assert.Contains(t, out, "testbench result: FAIL (1 interesting testcase(s))")
	assert.Contains(t, out, `"pass": false`)
}

func TestReplay_Trace(t *testing.T) {
	path := writeFile(t, "run.jsonl", interestingTrace)
	dir := t.TempDir()
	out, code := execute(t, "replay", "--trace", path, "--format", "markdown", "-o", dir)
	assert.Equal(t, exitFail, code)
	assert.Contains(t, out, "4 events, 1 testcases, 0 rejected reports")

	files, err := filepath.Glob(filepath.Join(dir, "*.md"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestReplay_Usage(t *testing.T) {
	_, code := execute(t, "replay")
	assert.Equal(t, exitUsage, code)

	path := writeFile(t, "smoke.yaml", passingScenario)
	_, code = execute(t, "replay", path, "--trace", path)
	assert.Equal(t, exitUsage, code)

	_, code = execute(t, "replay", path, "--format", "pdf")
	assert.Equal(t, exitUsage, code)

	_, code = execute(t, "replay", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, exitUsage, code)

	_, code = execute(t, "replay", path, "--config", writeFile(t, "cfg.yaml", "bogus: 1\n"))
	assert.Equal(t, exitUsage, code)
}

func TestValidate(t *testing.T) {
	path := writeFile(t, "smoke.yaml", passingScenario)
	out, code := execute(t, "validate", path)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "[+] smoke: 2 testcase(s)")

	bad := writeFile(t, "bad.yaml", "name: x\ntestcases:\n  - name: a\n    unknown: 1\n")
	_, code = execute(t, "validate", bad)
	assert.Equal(t, exitUsage, code)
}

func TestSend(t *testing.T) {
	tb := testbench.New(nil)
	srv := server.New(tb, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() { srv.App().Shutdown() })

	trace := interestingTrace + `{"event":"nas","id":5}` + "\n"
	path := writeFile(t, "run.jsonl", trace)
	out, code := execute(t, "send", path, "--url", "http://"+ln.Addr().String())
	assert.Equal(t, exitFail, code, out)
	assert.Contains(t, out, "sent 5 events, 1 rejected, server verdict: FAIL")
	assert.True(t, strings.Contains(out, "event 5 (nas)"))

	e, ok := tb.Lookup(1)
	require.True(t, ok)
	assert.True(t, e.Snapshot.Connected())
	assert.True(t, e.Summary.InsecureNASEIAChoice)
}
