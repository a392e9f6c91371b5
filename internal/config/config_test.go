package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fluxfuzzer/ltesec/internal/testbench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 8, cfg.Replay.Workers)
	assert.Equal(t, ":8088", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, testbench.DefaultRules(), cfg.Rules())
}

func TestParse(t *testing.T) {
	data := []byte(`
testbench:
  null_ciphering_insecure: true
  expected_reject_causes: [23]
replay:
  workers: 2
  rate: 50
mutator:
  eia_seed: 0x02
  mode: interesting
output:
  format: json
log:
  level: debug
  format: json
`)
	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.True(t, cfg.Testbench.NullCipheringInsecure)
	assert.Equal(t, []uint8{23}, cfg.Testbench.ExpectedRejectCauses)
	assert.Equal(t, 2, cfg.Replay.Workers)
	assert.Equal(t, 50, cfg.Replay.Rate)
	assert.Equal(t, uint8(0x02), cfg.Mutator.EIASeed)
	assert.Equal(t, uint8(0x0F), cfg.Mutator.EEASeed, "unset keys keep defaults")
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, "debug", cfg.Log.Level)

	rules := cfg.Rules()
	assert.True(t, rules.Policy.NullCipheringInsecure)
	assert.True(t, rules.ExpectedReject(23))
	assert.False(t, rules.ExpectedReject(24))
}

func TestRules_RejectCauses(t *testing.T) {
	cfg, err := Parse([]byte("testbench:\n  expected_reject_causes: ~\n"))
	require.NoError(t, err)
	assert.Nil(t, cfg.Rules().ExpectedRejectCauses)

	tb := testbench.New(&testbench.Options{Rules: cfg.Rules()})
	assert.Equal(t, testbench.DefaultRules().ExpectedRejectCauses, tb.Rules().ExpectedRejectCauses)

	cfg, err = Parse([]byte("testbench:\n  expected_reject_causes: []\n"))
	require.NoError(t, err)
	rules := cfg.Rules()
	assert.NotNil(t, rules.ExpectedRejectCauses)
	assert.Empty(t, rules.ExpectedRejectCauses)
	assert.False(t, rules.ExpectedReject(23))
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_Invalid(t *testing.T) {
	tests := map[string]string{
		"unknown field": "replay:\n  threads: 4\n",
		"bad workers":   "replay:\n  workers: 0\n",
		"bad rate":      "replay:\n  rate: -1\n",
		"bad mode":      "mutator:\n  mode: havoc\n",
		"bad format":    "output:\n  format: pdf\n",
		"not yaml":      "replay: [",
	}
	for name, data := range tests {
		_, err := Parse([]byte(data))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ltesec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: 127.0.0.1:9000\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
