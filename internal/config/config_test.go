package config

import (
	"NativeSwap/internal/state"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nswap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().HTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, state.DefaultParams(), cfg.Params())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
http_addr: ":18080"
persist_flush_timeout: 25ms
checkpoint_interval: 500
log:
  level: debug
engine:
  reservation_expire_after_blocks: 8
  cancel_penalty_bp: 250
`)
	t.Setenv("NSWAP_HTTP_ADDR", ":28080")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":28080", cfg.HTTPAddr)
	assert.Equal(t, 25*time.Millisecond, cfg.PersistFlushTimeout)
	assert.Equal(t, int64(500), cfg.CheckpointInterval)
	assert.Equal(t, "debug", cfg.Log.Level)

	p := cfg.Params()
	assert.Equal(t, uint64(8), p.ReservationExpireAfterBlocks)
	assert.Equal(t, uint64(250), p.CancelPenaltyBP)
	assert.Equal(t, state.DefaultParams().MinimumTradeSatoshis, p.MinimumTradeSatoshis)
}

func TestLoad_BadEnvKeepsValue(t *testing.T) {
	t.Setenv("NSWAP_PERSIST_BATCH_SIZE", "lots")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().PersistBatchSize, cfg.PersistBatchSize)
}

func TestLoad_Rejects(t *testing.T) {
	_, err := Load(writeFile(t, "persist_batch_size: 0\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "engine:\n  max_activation_delay: 9\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "http_addr: [oops\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
