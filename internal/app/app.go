package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/hitoshi/resaleman/internal/config"
	"github.com/hitoshi/resaleman/internal/database"
	"github.com/hitoshi/resaleman/internal/handler"
	"github.com/hitoshi/resaleman/internal/logger"
	"github.com/hitoshi/resaleman/internal/model"
	"github.com/hitoshi/resaleman/internal/worker/cleanup"
)

// cleanupInterval は日次保守処理の実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVEL/LOG_FORMATに従って構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, "info", "json")

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定値でロガーを作り直す
	l := logger.SetupDefault(w, cfg.LogLevel, cfg.LogFormat)
	return cfg, l, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		addr := os.Getenv("BRIDGE_ADDR")
		if addr == "" {
			addr = "127.0.0.1:7788"
		}
		return runHealthcheck(addr)
	}

	cfg, l, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	l.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("version", Version),
		slog.String("data_dir", cfg.DataDir),
	)

	// SIGINTまたはSIGTERMでグレースフルシャットダウンする
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg, l)
	case CommandMigrate:
		return runMigrate(ctx, cfg, l)
	case CommandCleanup:
		return runCleanup(ctx, cfg, l)
	default:
		return runServe(ctx, cfg, l)
	}
}

// runServe はブリッジサーバーモードで起動する。
// デスクトップアプリは単一プロセスのため、ジョブランナーと日次保守処理も同じプロセスで動かす。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	c, err := buildComponents(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer c.Close()

	token, err := resolveBridgeToken(cfg, l)
	if err != nil {
		return err
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Invoker:       c.dispatcher,
		HealthChecker: c.db,
		Gatherer:      c.registry,
		Logger:        l,
		BridgeToken:   token,
		AllowedOrigin: cfg.BridgeAllowedOrigin,
	})

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // AI分析とバッチ加工は長時間かかる
		IdleTimeout:  60 * time.Second,
	}

	ln, err := net.Listen("tcp", cfg.BridgeAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.BridgeAddr, err)
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.runner.Start(bgCtx, cfg.JobPollInterval)
	}()
	go func() {
		defer wg.Done()
		c.cleanup.Start(bgCtx, cleanupInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		l.Info("bridge server starting", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("bridge server failed: %w", err)
		}
	}

	l.Info("shutting down bridge server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server shutdown failed: %w", err)
	}

	cancelBg()
	wg.Wait()

	if runErr == nil {
		l.Info("bridge server stopped gracefully")
	}
	return runErr
}

// runWorker はジョブランナーのみで起動する。
// ブリッジを別プロセスで動かす場合や、UIなしで予約出品を処理する場合に使う。
func runWorker(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	c, err := buildComponents(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer c.Close()

	l.Info("worker starting",
		slog.Duration("poll_interval", cfg.JobPollInterval),
		slog.Int("max_concurrency", cfg.JobMaxConcurrency),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.cleanup.Start(ctx, cleanupInterval)
	}()

	// ジョブランナーをメインgoroutineで実行（ブロッキング）
	c.runner.Start(ctx, cfg.JobPollInterval)
	wg.Wait()

	l.Info("worker stopped gracefully")
	return nil
}

// runMigrate はスキーマの作成と既定プラットフォームの投入を行う。
func runMigrate(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	l.Info("running database migrations", slog.String("path", cfg.DatabasePath))

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := database.EnsureSchema(ctx, db, cfg.DatabasePath, l); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	l.Info("database migrations completed successfully")
	return nil
}

// runCleanup は保守処理を1回だけ同期的に実行する。
// 終了済みジョブを削除し、画像クリーンアップ、分析イベント整理、出品期限切れ処理を直接実行する。
// 予約出品などキュー上の他のジョブには触れない。
func runCleanup(ctx context.Context, cfg *config.Config, l *slog.Logger) error {
	c, err := buildComponents(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer c.Close()

	// ジョブは直接実行するため投入はしない
	prune := cleanup.NewCleanupJob(c.jobRepo, nil, l)
	prune.RetentionDays = cfg.JobRetentionDays
	if err := prune.Run(ctx); err != nil {
		return err
	}

	jobTypes := make([]string, 0, len(c.maintenance))
	for jobType := range c.maintenance {
		jobTypes = append(jobTypes, jobType)
	}
	sort.Strings(jobTypes)

	var errs []error
	for _, jobType := range jobTypes {
		job := &model.ScheduledJob{JobType: jobType, ScheduledFor: time.Now()}
		if err := c.maintenance[jobType].Handle(ctx, job); err != nil {
			l.Error("maintenance job failed",
				slog.String("job_type", jobType),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", jobType, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	l.Info("cleanup completed", slog.Any("job_types", jobTypes))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// 起動中のブリッジの /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(addr string) error {
	url := fmt.Sprintf("http://%s/health", addr)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
