package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/resaleman/internal/config"
	"github.com/hitoshi/resaleman/internal/dispatch"
	"github.com/hitoshi/resaleman/internal/middleware"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/repository"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	setTestEnv(t)
	cfg, _, err := Init(io.Discard)
	require.NoError(t, err)
	return cfg
}

// freeAddr は空いているループバックのアドレスを返す。
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestRun_WithInvalidEnv_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JOB_MAX_ATTEMPTS", "zero")

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialization failed")
}

func TestRun_MigrateCommand_CreatesSchemaAndSeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	require.NoError(t, Run(&buf, []string{"migrate"}))
	// 2回目も冪等に成功する
	require.NoError(t, Run(&buf, []string{"migrate"}))

	assert.Contains(t, buf.String(), "database migrations completed successfully")
	assert.Contains(t, buf.String(), `"seeded_platforms":1`)
	assert.Contains(t, buf.String(), `"seeded_platforms":0`)
}

func TestRun_HealthcheckCommand(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/health" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()
		t.Setenv("BRIDGE_ADDR", strings.TrimPrefix(srv.URL, "http://"))

		assert.NoError(t, Run(io.Discard, []string{"healthcheck"}))
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()
		t.Setenv("BRIDGE_ADDR", strings.TrimPrefix(srv.URL, "http://"))

		err := Run(io.Discard, []string{"healthcheck"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})

	t.Run("not running", func(t *testing.T) {
		t.Setenv("BRIDGE_ADDR", freeAddr(t))
		assert.Error(t, Run(io.Discard, []string{"healthcheck"}))
	})
}

func TestBuildComponents_WiresEveryChannelAndJobType(t *testing.T) {
	cfg := loadTestConfig(t)

	c, err := buildComponents(context.Background(), cfg, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	channels := c.dispatcher.Channels()
	assert.Len(t, channels, 80)
	for _, ch := range []string{"items:create", "image:importFromUrl", "claude:analyzeImages", "jobs:enqueue", "system:listEndpoints"} {
		assert.True(t, c.dispatcher.Has(ch), "missing channel %s", ch)
	}

	assert.Equal(t, []string{
		model.JobTypeAnalyticsPrune,
		model.JobTypeImageCleanup,
		model.JobTypeListingExpire,
		model.JobTypeListingPublish,
	}, c.runner.JobTypes())

	// APIキー未設定ではAIは未構成
	env := c.dispatcher.Invoke(context.Background(), "claude:isConfigured", nil)
	assert.True(t, env.Success)
	assert.Equal(t, false, env.Data)

	// 既定プラットフォームが投入されている
	args, err := dispatch.NewArgs("facebook_marketplace")
	require.NoError(t, err)
	env = c.dispatcher.Invoke(context.Background(), "platforms:findByName", args)
	require.True(t, env.Success, env.Error)
}

func TestRunCleanup_ExpiresListingsAndPrunesJobs(t *testing.T) {
	cfg := loadTestConfig(t)
	ctx := context.Background()

	// 事前データを投入する
	c, err := buildComponents(ctx, cfg, discardLogger())
	require.NoError(t, err)

	items := repository.NewSQLiteItemRepo(c.db)
	listings := repository.NewSQLiteListingRepo(c.db)
	platforms := repository.NewSQLitePlatformRepo(c.db)

	item, err := items.Create(ctx, &model.Item{Title: "Vintage camera", Category: "Electronics", Condition: model.ConditionGood})
	require.NoError(t, err)
	platform, err := platforms.FindByName(ctx, "facebook_marketplace")
	require.NoError(t, err)
	require.NotNil(t, platform)

	past := time.Now().Add(-time.Hour)
	listing, err := listings.Create(ctx, &model.Listing{
		ItemID:     item.ID,
		PlatformID: platform.ID,
		Status:     model.ListingStatusActive,
		ExpiresAt:  &past,
	})
	require.NoError(t, err)

	job, err := c.runner.Enqueue(ctx, model.JobTypeListingPublish, &listing.ID, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, runCleanup(ctx, cfg, discardLogger()))

	// 再度開いて結果を確認する
	c, err = buildComponents(ctx, cfg, discardLogger())
	require.NoError(t, err)
	defer c.Close()

	got, err := repository.NewSQLiteListingRepo(c.db).FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ListingStatusExpired, got.Status)

	// 予約出品ジョブはcleanupでは実行されない
	pending, err := c.jobRepo.FindByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, pending.Status)
}

func TestRunServe_ServesBridgeUntilCancelled(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.BridgeAddr = freeAddr(t)
	cfg.BridgeToken = "serve-test-token"
	cfg.JobPollInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, cfg, discardLogger())
	}()

	// 起動を待つ
	require.Eventually(t, func() bool {
		return runHealthcheck(cfg.BridgeAddr) == nil
	}, 10*time.Second, 50*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, "http://"+cfg.BridgeAddr+"/invoke/system:getAppVersion", strings.NewReader(""))
	require.NoError(t, err)
	req.Header.Set(middleware.BridgeTokenHeader, "serve-test-token")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var env dispatch.Envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	assert.True(t, env.Success)
	assert.Equal(t, Version, env.Data)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(35 * time.Second):
		t.Fatal("runServe did not stop after cancellation")
	}

	// 生成トークンは書き出さない（設定済みのため）
	_, statErr := os.Stat(cfg.BridgeTokenPath())
	assert.True(t, os.IsNotExist(statErr))
}
