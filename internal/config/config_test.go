package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoadWithViper_Defaults(t *testing.T) {
	cfg, err := LoadWithViper(newViper())
	require.NoError(t, err)

	assert.Equal(t, "cron-tasks", cfg.QueueName)
	assert.Equal(t, 5*time.Second, cfg.SchedulerInterval())
	assert.Equal(t, 10*time.Second, cfg.CatchUpWindow())
	assert.Equal(t, int64(12345), cfg.LeaderLockKey)
	assert.Equal(t, 3, cfg.QueueMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.QueueBackoff())
	assert.Equal(t, 1000, cfg.QueueKeepCompleted)
	assert.Equal(t, 5000, cfg.QueueKeepFailed)
	assert.Equal(t, 5, cfg.WorkerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout())
	assert.Equal(t, 5*time.Minute, cfg.StaleQueuedAfter())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUEUE_NAME", "nightly")
	t.Setenv("WORKER_CONCURRENCY", "12")
	t.Setenv("CATCHUP_WINDOW_SEC", "30")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "nightly", cfg.QueueName)
	assert.Equal(t, 12, cfg.WorkerConcurrency)
	assert.Equal(t, 30*time.Second, cfg.CatchUpWindow())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cronqueue.yaml")
	require.NoError(t, os.WriteFile(path, []byte("queue_name: from-file\nqueue_max_attempts: 5\n"), 0o600))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.QueueName)
	assert.Equal(t, 5, cfg.QueueMaxAttempts)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	t.Setenv(ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	v := newViper()
	v.Set("worker_concurrency", 0)
	v.Set("scheduler_interval_ms", -1)

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_concurrency")
	assert.Contains(t, err.Error(), "scheduler_interval_ms")
}

func TestValidate_ZeroWindowsRejected(t *testing.T) {
	v := newViper()
	v.Set("catchup_window_sec", 0)
	v.Set("stale_queued_after_sec", 0)

	_, err := LoadWithViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catchup_window_sec")
	assert.Contains(t, err.Error(), "stale_queued_after_sec")
}
