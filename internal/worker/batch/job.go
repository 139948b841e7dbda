// Package batch はダイジェストのバッチ配信ジョブとそのスケジューラを提供する。
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/salesdigest/internal/delivery"
	"github.com/hitoshi/salesdigest/internal/digest"
	"github.com/hitoshi/salesdigest/internal/metrics"
	"github.com/hitoshi/salesdigest/internal/model"
	"github.com/hitoshi/salesdigest/internal/relevance"
	"github.com/hitoshi/salesdigest/internal/repository"
)

// recordTimeout は配信成功後の台帳記録に与える時間。
// 実行全体のタイムアウト後も、配信済みの記録は書き切る。
const recordTimeout = 10 * time.Second

// SentLedger は配信済み記事台帳のインターフェース。
type SentLedger interface {
	digest.SentLookup
	Record(ctx context.Context, userID string, articles []model.Article) error
}

// Metrics はバッチジョブが記録するメトリクスのインターフェース。
type Metrics interface {
	RecordRun(mode string, duration time.Duration)
	RecordUserOutcome(status string)
	RecordArticlesIncluded(count int)
	RecordLedgerWriteFailure()
}

// BatchConfig はバッチジョブの設定パラメータ。
// 環境変数から設定可能。
type BatchConfig struct {
	// MaxSize はダイジェスト1通あたりの最大記事数（デフォルト: 20）。
	MaxSize int
	// LookbackDays は重複判定で参照する配信履歴の日数（デフォルト: 3）。
	LookbackDays int
	// SectorOnlyMinScore はセクター一致のみで採用する最低スコア（デフォルト: 70）。
	SectorOnlyMinScore int
	// MaxConcurrent は同時に処理するユーザー数の上限（デフォルト: 4）。
	MaxConcurrent int
	// DeliveryInterval は配信呼び出しの最低間隔（デフォルト: 200ms）。
	DeliveryInterval time.Duration
	// Pacer は配信先と共有するPacer。nilの場合はDeliveryIntervalから生成する。
	Pacer *Pacer
}

// DefaultBatchConfig はデフォルトのバッチジョブ設定を返す。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxSize:            digest.DefaultMaxSize,
		LookbackDays:       digest.DefaultLookbackDays,
		SectorOnlyMinScore: relevance.DefaultSectorOnlyMinScore,
		MaxConcurrent:      4,
		DeliveryInterval:   200 * time.Millisecond,
	}
}

// BatchJob はダイジェストのバッチ配信ジョブ。
// 記事プールとユーザー名簿を取得し、ユーザーごとに
// フィルタ → 重複除外 → 組み立て → 配信 → 台帳記録 を行う。
// ユーザー単位の失敗は実行全体を止めず、集計結果に記録する。
type BatchJob struct {
	articles  repository.ArticleSource
	roster    repository.RosterSource
	ledger    SentLedger
	deliverer delivery.Deliverer
	metrics   Metrics
	logger    *slog.Logger

	filter    relevance.Filter
	dedup     *digest.Deduplicator
	assembler digest.Assembler
	pacer     *Pacer
	maxConc   int

	now      func() time.Time
	newRunID func() string
}

// NewBatchJob はBatchJobの新しいインスタンスを生成する。
// 設定値が0以下の項目はデフォルト値を使用する。
func NewBatchJob(
	articles repository.ArticleSource,
	roster repository.RosterSource,
	ledger SentLedger,
	deliverer delivery.Deliverer,
	m Metrics,
	logger *slog.Logger,
	config BatchConfig,
) *BatchJob {
	def := DefaultBatchConfig()
	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = def.MaxConcurrent
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	pacer := config.Pacer
	if pacer == nil {
		pacer = NewPacer(config.DeliveryInterval)
	}
	return &BatchJob{
		articles:  articles,
		roster:    roster,
		ledger:    ledger,
		deliverer: deliverer,
		metrics:   m,
		logger:    logger,
		filter:    relevance.NewFilter(config.SectorOnlyMinScore),
		dedup:     digest.NewDeduplicator(ledger, config.LookbackDays),
		assembler: digest.NewAssembler(config.MaxSize),
		pacer:     pacer,
		maxConc:   config.MaxConcurrent,
		now:       time.Now,
		newRunID:  uuid.NewString,
	}
}

// Run はバッチを1回実行し、集計結果を返す。
// 記事プールまたはユーザー名簿を取得できない場合のみエラーを返す（ErrInputUnavailable）。
// コンテキストが終了した時点で未着手のユーザーは集計結果に含まれない。
func (b *BatchJob) Run(ctx context.Context, opts model.RunOptions) (*model.RunSummary, error) {
	start := b.now()
	summary := &model.RunSummary{
		RunID:     b.newRunID(),
		TestMode:  opts.TestMode,
		StartedAt: start,
		Outcomes:  []model.UserOutcome{},
	}
	mode := metrics.ModeLive
	if opts.TestMode {
		mode = metrics.ModeTest
	}

	articles, err := b.articles.FetchScoredArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch scored articles: %w", model.ErrInputUnavailable, err)
	}

	users, err := b.loadUsers(ctx, opts.SpecificUserID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load user roster: %w", model.ErrInputUnavailable, err)
	}

	b.logger.Info("ダイジェストバッチを開始します",
		slog.String("run_id", summary.RunID),
		slog.Bool("test_mode", opts.TestMode),
		slog.Int("article_count", len(articles)),
		slog.Int("user_count", len(users)),
		slog.Int("max_concurrent", b.maxConc),
	)

	var (
		mu       sync.Mutex
		outcomes = make([]model.UserOutcome, 0, len(users))
		wg       sync.WaitGroup
		started  int
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, b.maxConc)

dispatch:
	for _, user := range users {
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}
		if ctx.Err() != nil {
			<-sem
			break dispatch
		}
		started++
		wg.Add(1)

		go func(u model.UserProfile) {
			defer wg.Done()
			defer func() { <-sem }()

			o := b.processUser(ctx, summary.RunID, u, articles, opts.TestMode)
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
		}(user)
	}

	wg.Wait()

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].UserID < outcomes[j].UserID })
	for _, o := range outcomes {
		summary.Add(o)
	}
	summary.FinishedAt = b.now()

	duration := summary.FinishedAt.Sub(start)
	b.metrics.RecordRun(mode, duration)

	if omitted := len(users) - started; omitted > 0 && ctx.Err() != nil {
		b.logger.Warn("実行が打ち切られたため未処理のユーザーがあります",
			slog.String("run_id", summary.RunID),
			slog.Int("omitted_users", omitted),
			slog.String("error", ctx.Err().Error()),
		)
	}

	b.logger.Info("ダイジェストバッチが完了しました",
		slog.String("run_id", summary.RunID),
		slog.Int("users_processed", summary.UsersProcessed),
		slog.Int("emails_succeeded", summary.EmailsSucceeded),
		slog.Int("emails_failed", summary.EmailsFailed),
		slog.Int("articles_included", summary.TotalArticlesIncluded),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return summary, nil
}

// Preview は指定ユーザーのダイジェストを組み立てて返す。
// 配信も台帳記録も行わない。ユーザーが見つからない場合はErrUserNotFoundを返す。
func (b *BatchJob) Preview(ctx context.Context, userID string) (*model.DigestResult, error) {
	user, err := b.roster.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find user: %w", model.ErrInputUnavailable, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", model.ErrUserNotFound, userID)
	}

	articles, err := b.articles.FetchScoredArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to fetch scored articles: %w", model.ErrInputUnavailable, err)
	}

	return b.buildDigest(ctx, "", *user, articles)
}

// loadUsers は処理対象ユーザーを取得し、メール配信が無効なユーザーを除外する。
// 名簿に同じユーザーが複数回現れても処理は1回だけにする（最初のプロフィールを採用）。
func (b *BatchJob) loadUsers(ctx context.Context, specificUserID string) ([]model.UserProfile, error) {
	var users []model.UserProfile
	if specificUserID != "" {
		u, err := b.roster.FindByID(ctx, specificUserID)
		if err != nil {
			return nil, err
		}
		if u == nil {
			b.logger.Warn("指定されたユーザーが見つかりません",
				slog.String("user_id", specificUserID),
			)
			return nil, nil
		}
		users = []model.UserProfile{*u}
	} else {
		all, err := b.roster.UsersWithEmailEnabled(ctx)
		if err != nil {
			return nil, err
		}
		users = all
	}

	enabled := make([]model.UserProfile, 0, len(users))
	seen := make(map[string]struct{}, len(users))
	for _, u := range users {
		if !u.EmailPreferences.Enabled {
			continue
		}
		if _, dup := seen[u.ID]; dup {
			b.logger.Warn("名簿に重複したユーザーがあるため2件目以降を無視します",
				slog.String("user_id", u.ID),
			)
			continue
		}
		seen[u.ID] = struct{}{}
		enabled = append(enabled, u)
	}
	return enabled, nil
}

// processUser はユーザー1人分の処理を行う。
// パニックはこのユーザーの失敗として回収し、他のユーザーの処理には影響させない。
// 配信成功後のパニックは配信済みとして扱い、台帳記録の警告にする。
func (b *BatchJob) processUser(ctx context.Context, runID string, user model.UserProfile, articles []model.Article, testMode bool) (outcome model.UserOutcome) {
	start := time.Now()
	outcome = model.UserOutcome{UserID: user.ID}
	delivered := false

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		kind := model.ErrUserProcessing
		if delivered {
			kind = model.ErrLedgerWrite
		}
		perr := model.NewPipelineError(kind, user.ID, fmt.Errorf("panic: %v", rec))
		b.logger.Error("ユーザー処理中にパニックが発生しました",
			slog.String("run_id", runID),
			slog.String("user_id", user.ID),
			slog.Bool("delivered", delivered),
			slog.String("error", perr.Error()),
			slog.String("stack", string(debug.Stack())),
		)
		if delivered {
			outcome.Success = true
			outcome.Warning = perr.Error()
			b.metrics.RecordLedgerWriteFailure()
			return
		}
		outcome = model.UserOutcome{UserID: user.ID, Error: perr.Error()}
		b.metrics.RecordUserOutcome(metrics.OutcomeFailed)
	}()

	result, err := b.buildDigest(ctx, runID, user, articles)
	if err != nil {
		return b.fail(runID, model.NewPipelineError(model.ErrUserProcessing, user.ID, err))
	}

	outcome.ArticleCount = len(result.Articles)

	if len(result.Articles) == 0 {
		outcome.Success = true
		outcome.Skipped = true
		b.metrics.RecordUserOutcome(metrics.OutcomeSkipped)
		b.logger.Info("新着記事がないため配信をスキップしました",
			slog.String("run_id", runID),
			slog.String("user_id", user.ID),
			slog.Int("duplicate_count", result.DuplicateCount),
		)
		return outcome
	}

	if testMode {
		outcome.Success = true
		b.metrics.RecordUserOutcome(metrics.OutcomeDryRun)
		b.logger.Info("テストモードのため配信と台帳記録をスキップしました",
			slog.String("run_id", runID),
			slog.String("user_id", user.ID),
			slog.Int("article_count", outcome.ArticleCount),
		)
		return outcome
	}

	if err := b.pacer.Wait(ctx); err != nil {
		return b.fail(runID, model.NewPipelineError(model.ErrDeliveryFailed, user.ID, fmt.Errorf("delivery abandoned: %w", err)))
	}

	res, err := b.deliverer.Deliver(ctx, user.ID, result)
	if err != nil {
		return b.fail(runID, model.NewPipelineError(model.ErrDeliveryFailed, user.ID, err))
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = model.ErrDeliveryFailed.Error()
		}
		b.logger.Error("配信先が失敗を返しました",
			slog.String("run_id", runID),
			slog.String("user_id", user.ID),
			slog.String("error", msg),
		)
		b.metrics.RecordUserOutcome(metrics.OutcomeFailed)
		return model.UserOutcome{UserID: user.ID, ArticleCount: outcome.ArticleCount, Error: msg}
	}

	delivered = true
	outcome.Success = true
	b.metrics.RecordUserOutcome(metrics.OutcomeDelivered)
	b.metrics.RecordArticlesIncluded(outcome.ArticleCount)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := b.ledger.Record(recordCtx, user.ID, result.Articles); err != nil {
		perr := model.NewPipelineError(model.ErrLedgerWrite, user.ID, err)
		outcome.Warning = perr.Error()
		b.metrics.RecordLedgerWriteFailure()
		b.logger.Warn("配信済み記事の記録に失敗しました。翌日に重複配信される可能性があります",
			slog.String("run_id", runID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	b.logger.Info("ユーザーのダイジェスト処理が完了しました",
		slog.String("run_id", runID),
		slog.String("user_id", user.ID),
		slog.Int("article_count", outcome.ArticleCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return outcome
}

// buildDigest はフィルタ → 重複除外 → 組み立てを行う。読み取りのみで台帳は変更しない。
func (b *BatchJob) buildDigest(ctx context.Context, runID string, user model.UserProfile, articles []model.Article) (*model.DigestResult, error) {
	if !user.Role.Valid() {
		return nil, fmt.Errorf("unknown role %q", user.Role)
	}

	candidates := b.filter.Apply(user, articles)

	kept, err := b.dedup.Dedupe(ctx, user, candidates)
	if err != nil {
		return nil, err
	}

	result := b.assembler.Build(user.ID, kept, len(candidates)-len(kept), b.now())
	result.RunID = runID
	result.Recipient = model.RecipientOf(user)
	return result, nil
}

func (b *BatchJob) fail(runID string, perr *model.PipelineError) model.UserOutcome {
	b.logger.Error("ユーザーのダイジェスト処理に失敗しました",
		slog.String("run_id", runID),
		slog.String("user_id", perr.UserID),
		slog.String("error", perr.Error()),
	)
	b.metrics.RecordUserOutcome(metrics.OutcomeFailed)
	return model.UserOutcome{UserID: perr.UserID, Error: perr.Error()}
}
