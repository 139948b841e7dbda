package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/salesdigest/internal/config"
	"github.com/hitoshi/salesdigest/internal/database"
	"github.com/hitoshi/salesdigest/internal/delivery"
	"github.com/hitoshi/salesdigest/internal/ledger"
	"github.com/hitoshi/salesdigest/internal/metrics"
	"github.com/hitoshi/salesdigest/internal/repository"
	"github.com/hitoshi/salesdigest/internal/security"
	"github.com/hitoshi/salesdigest/internal/source"
	"github.com/hitoshi/salesdigest/internal/worker/batch"
)

// dbConnectTimeout は起動時のDB疎通確認の上限時間。
const dbConnectTimeout = 5 * time.Second

// components はサブコマンド間で共有する依存関係の組み立て結果。
type components struct {
	db       *sql.DB // フィクスチャモードではnil
	sent     repository.SentArticleRepository
	ledger   *ledger.Ledger
	job      *batch.BatchJob
	registry *prometheus.Registry
	logger   *slog.Logger
}

// Close は保持しているDB接続を閉じる。
func (c *components) Close() {
	if c.db != nil {
		c.db.Close()
	}
}

// buildComponents は設定に従って記事ソース・名簿・台帳・配信先を組み立て、BatchJobを生成する。
// DIGEST_FIXTURE_FILEが設定されている場合はDBを使わず、台帳もメモリ上に持つ。
func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	c := &components{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}

	var (
		articles repository.ArticleSource
		roster   repository.RosterSource
	)

	if cfg.FixtureMode() {
		fixture, err := source.LoadFixture(cfg.FixtureFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load fixture: %w", err)
		}
		articles = fixture
		roster = fixture
		c.sent = repository.NewMemorySentArticleRepo()

		logger.Info("フィクスチャモードで起動します",
			slog.String("fixture_file", cfg.FixtureFile),
		)
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL, dbConnectTimeout)
		if err != nil {
			return nil, err
		}
		c.db = db
		articles = repository.NewPostgresArticleRepo(db, cfg.ArticleFreshness)
		roster = repository.NewPostgresRosterRepo(db)
		c.sent = repository.NewPostgresSentArticleRepo(db)

		logger.Info("データベースに接続しました",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(c.registry)

	pacer := batch.NewPacer(cfg.DigestDeliveryInterval)
	deliverer, err := newDeliverer(cfg, collector, pacer, logger)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.ledger = ledger.NewLedger(c.sent, cfg.DigestLocation)
	c.job = batch.NewBatchJob(articles, roster, c.ledger, deliverer, collector, logger, batch.BatchConfig{
		MaxSize:            cfg.DigestMaxSize,
		LookbackDays:       cfg.DigestLookbackDays,
		SectorOnlyMinScore: cfg.DigestSectorOnlyMinScore,
		MaxConcurrent:      cfg.DigestMaxConcurrent,
		DeliveryInterval:   cfg.DigestDeliveryInterval,
		Pacer:              pacer,
	})

	return c, nil
}

// newDeliverer はWebhook URLが設定されていればWebhookDelivererを、
// 未設定ならログ出力のみのLogDelivererを返す。
// 再送もバッチジョブと同じpacerの間隔に従う。
func newDeliverer(cfg *config.Config, collector *metrics.Collector, pacer *batch.Pacer, logger *slog.Logger) (delivery.Deliverer, error) {
	sanitizer := security.NewTextSanitizer()

	if cfg.DeliveryWebhookURL == "" {
		logger.Warn("DELIVERY_WEBHOOK_URLが未設定のため、ダイジェストはログにのみ出力されます")
		return delivery.NewLogDeliverer(sanitizer, logger), nil
	}

	guard := security.NewSSRFGuard()
	if err := guard.ValidateURL(cfg.DeliveryWebhookURL); err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_WEBHOOK_URL: %w", err)
	}

	d := delivery.NewWebhookDeliverer(
		guard.NewSafeClient(cfg.DeliveryTimeout),
		cfg.DeliveryWebhookURL,
		sanitizer,
		collector,
		logger,
	)
	policy := delivery.DefaultRetryPolicy()
	policy.MaxRetries = cfg.DeliveryMaxRetries
	policy.InitialBackoff = cfg.DeliveryRetryBackoff
	d.SetRetryPolicy(policy)
	d.SetPacer(pacer)
	return d, nil
}
