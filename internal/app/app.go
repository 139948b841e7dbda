// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/salesdigest/internal/config"
	"github.com/hitoshi/salesdigest/internal/database"
	"github.com/hitoshi/salesdigest/internal/delivery"
	"github.com/hitoshi/salesdigest/internal/handler"
	"github.com/hitoshi/salesdigest/internal/logger"
	"github.com/hitoshi/salesdigest/internal/model"
	"github.com/hitoshi/salesdigest/internal/security"
	"github.com/hitoshi/salesdigest/internal/worker/batch"
	"github.com/hitoshi/salesdigest/internal/worker/cleanup"
)

// cleanupInterval は台帳の保持期間切れレコードを削除する間隔。
const cleanupInterval = 24 * time.Hour

// shutdownTimeout はopsサーバーのグレースフルシャットダウンの上限時間。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Error("設定の読み込みに失敗しました", slog.String("error", err.Error()))
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. LOG_LEVELを反映して再設定
	log = logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// ログはw、run/previewの結果JSONはoutに書き出す。
// argsにはos.Args[1:]を渡す。
func Run(w, out io.Writer, args []string) error {
	root := NewRootCommand(w, out)
	root.SetArgs(args)
	return root.Execute()
}

// signalContext はSIGINTまたはSIGTERMで終了するコンテキストを返す。
func signalContext(parent context.Context, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(stop)
		select {
		case sig := <-stop:
			log.Info("シャットダウンシグナルを受信しました", slog.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// runWorker はワーカーモードで起動する。
// cronスケジューラ、台帳クリーンアップジョブ、opsサーバー（/health, /metrics）を起動し、
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runWorker(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer c.Close()

	// 1. スケジューラの初期化
	scheduler, err := batch.NewScheduler(c.job, cfg.DigestSchedule, cfg.DigestLocation, cfg.DigestRunTimeout, log)
	if err != nil {
		return err
	}

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(c.sent, log, cfg.LedgerRetentionDays)

	// 3. opsサーバーの構築
	var healthChecker handler.HealthChecker
	if c.db != nil {
		healthChecker = c.db
	}
	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker: healthChecker,
		Scheduler:     scheduler,
		Gatherer:      c.registry,
		Logger:        log,
	})
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("opsサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info("ワーカーを起動します",
		slog.String("schedule", cfg.DigestSchedule),
		slog.String("timezone", cfg.DigestTimezone),
		slog.Int("max_concurrent", cfg.DigestMaxConcurrent),
		slog.Int("retention_days", cfg.LedgerRetentionDays),
	)

	// 台帳クリーンアップを起動直後と日次でバックグラウンド実行
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cleanupJob.Start(ctx, cleanupInterval)
	}()

	scheduler.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error("opsサーバーが異常終了しました", slog.String("error", err.Error()))
		runErr = fmt.Errorf("ops server failed: %w", err)
		cancel()
	}

	log.Info("ワーカーを停止しています...")

	// 実行中のバッチの完了を待つ
	scheduler.Stop()
	<-cleanupDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("ワーカーを停止しました")
	return runErr
}

// runOnce はダイジェストバッチを1回だけ実行し、集計結果をJSONでoutに書き出す。
func runOnce(cfg *config.Config, log *slog.Logger, out io.Writer, opts model.RunOptions) error {
	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer c.Close()

	runCtx, runCancel := context.WithTimeout(ctx, cfg.DigestRunTimeout)
	defer runCancel()

	summary, err := c.job.Run(runCtx, opts)
	if err != nil {
		return fmt.Errorf("digest run failed: %w", err)
	}

	return writeJSON(out, newRunReport(summary))
}

// runPreview は1ユーザー分のダイジェストを組み立て、配信ペイロードと同じ形式のJSONでoutに書き出す。
// 配信も台帳記録も行わない。
func runPreview(cfg *config.Config, log *slog.Logger, out io.Writer, userID string) error {
	ctx, cancel := signalContext(context.Background(), log)
	defer cancel()

	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build components: %w", err)
	}
	defer c.Close()

	result, err := c.job.Preview(ctx, userID)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	return writeJSON(out, delivery.BuildPayload(userID, result, security.NewTextSanitizer()))
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migrate requires DATABASE_URL")
	}

	log.Info("データベースマイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("データベースマイグレーションが完了しました", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
