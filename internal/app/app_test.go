package app

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appEnvKeys = []string{
	"DATABASE_PATH", "IMAGES_DIR",
	"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL", "ANTHROPIC_BASE_URL", "AI_TIMEOUT",
	"BRIDGE_ADDR", "BRIDGE_TOKEN", "BRIDGE_ALLOWED_ORIGIN",
	"LOG_LEVEL", "LOG_FORMAT",
	"JOB_POLL_INTERVAL", "JOB_MAX_CONCURRENCY", "JOB_MAX_ATTEMPTS", "PUBLISH_TIMEOUT",
	"IMAGE_RETENTION_DAYS", "ANALYTICS_RETENTION_DAYS", "JOB_RETENTION_DAYS",
	"DOWNLOAD_MAX_BYTES",
}

// setTestEnv はテスト用のデータディレクトリを設定し、他の設定値を未設定にする。
func setTestEnv(t *testing.T) string {
	t.Helper()
	for _, k := range appEnvKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	dir := t.TempDir()
	t.Setenv("RESALEMAN_DATA_DIR", dir)

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return dir
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	dir := setTestEnv(t)

	var buf bytes.Buffer
	cfg, l, err := Init(&buf)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotNil(t, l)

	assert.Equal(t, filepath.Join(dir, "resaleman.db"), cfg.DatabasePath)

	// グローバルロガーがJSON出力に設定されていること
	slog.Default().Info("init test")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "raw: %s", buf.String())
	assert.Equal(t, "init test", entry["msg"])
}

func TestInit_TextFormatAndDebugLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	_, l, err := Init(&buf)
	require.NoError(t, err)

	l.Debug("debug visible")
	assert.Contains(t, buf.String(), `msg="debug visible"`)
}

func TestInit_WithInvalidConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JOB_POLL_INTERVAL", "often")

	var buf bytes.Buffer
	cfg, l, err := Init(&buf)
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Nil(t, l)
	assert.Contains(t, err.Error(), "JOB_POLL_INTERVAL")
}

func TestResolveBridgeToken(t *testing.T) {
	t.Run("configured token wins", func(t *testing.T) {
		setTestEnv(t)
		t.Setenv("BRIDGE_TOKEN", "from-env")
		cfg, _, err := Init(io.Discard)
		require.NoError(t, err)

		token, err := resolveBridgeToken(cfg, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, "from-env", token)
		_, statErr := os.Stat(cfg.BridgeTokenPath())
		assert.True(t, os.IsNotExist(statErr), "token file should not be written when configured")
	})

	t.Run("generated once and reused", func(t *testing.T) {
		setTestEnv(t)
		cfg, _, err := Init(io.Discard)
		require.NoError(t, err)

		first, err := resolveBridgeToken(cfg, discardLogger())
		require.NoError(t, err)
		assert.Len(t, first, 64)

		info, err := os.Stat(cfg.BridgeTokenPath())
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		second, err := resolveBridgeToken(cfg, discardLogger())
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("empty file is regenerated", func(t *testing.T) {
		setTestEnv(t)
		cfg, _, err := Init(io.Discard)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(cfg.BridgeTokenPath(), []byte("  \n"), 0o600))

		token, err := resolveBridgeToken(cfg, discardLogger())
		require.NoError(t, err)
		assert.Len(t, token, 64)

		b, err := os.ReadFile(cfg.BridgeTokenPath())
		require.NoError(t, err)
		assert.Equal(t, token, strings.TrimSpace(string(b)))
	})
}

func TestSystemPaths(t *testing.T) {
	t.Setenv("HOME", "/home/seller")

	paths := systemPaths("/data/resaleman")

	assert.Equal(t, "/data/resaleman", paths.UserData)
	assert.Equal(t, filepath.Join("/home/seller", "Documents"), paths.Documents)
	assert.Equal(t, filepath.Join("/home/seller", "Downloads"), paths.Downloads)
	assert.Equal(t, filepath.Join("/home/seller", "Pictures"), paths.Pictures)
}
