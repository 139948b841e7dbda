package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hitoshi/salesdigest/internal/model"
)

// DefaultSchedule は毎日7時0分0秒（秒フィールド付きcron式）。
const DefaultSchedule = "0 0 7 * * *"

// DefaultRunTimeout はバッチ1回あたりの実行時間の上限。
const DefaultRunTimeout = 10 * time.Minute

// Runner はバッチ実行のインターフェース。
type Runner interface {
	Run(ctx context.Context, opts model.RunOptions) (*model.RunSummary, error)
}

// Scheduler はcron式に従ってダイジェストバッチを起動する。
// 前回の実行が終わっていない場合、その回の起動はスキップする。
type Scheduler struct {
	cron    *cron.Cron
	entryID cron.EntryID
	job     Runner
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	running bool
}

// NewScheduler はSchedulerを生成する。cron式が不正な場合はエラーを返す。
// locationがnilの場合はUTCで解釈する。
func NewScheduler(job Runner, schedule string, location *time.Location, timeout time.Duration, logger *slog.Logger) (*Scheduler, error) {
	if location == nil {
		location = time.UTC
	}
	if timeout <= 0 {
		timeout = DefaultRunTimeout
	}
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	s := &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		job:     job,
		timeout: timeout,
		logger:  logger,
		baseCtx: context.Background(),
	}

	entryID, err := s.cron.AddFunc(schedule, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", schedule, err)
	}
	s.entryID = entryID
	return s, nil
}

// Start はスケジューラを開始する。ctxが終了すると実行中のバッチもキャンセルされる。
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.baseCtx = ctx
	s.cron.Start()
	s.running = true

	s.logger.Info("ダイジェストスケジューラを開始しました",
		slog.Time("next_run", s.cron.Entry(s.entryID).Next),
		slog.Duration("run_timeout", s.timeout),
	)
}

// Stop はスケジューラを停止し、実行中のバッチの終了を待つ。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("ダイジェストスケジューラを停止しました")
}

// NextRun は次回の実行予定時刻を返す。停止中はゼロ値を返す。
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// trigger はタイムアウト付きのコンテキストでバッチを1回実行する。
func (s *Scheduler) trigger() {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()

	summary, err := s.job.Run(ctx, model.RunOptions{})
	if err != nil {
		s.logger.Error("ダイジェストバッチの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("定期ダイジェストバッチを実行しました",
		slog.String("run_id", summary.RunID),
		slog.Int("users_processed", summary.UsersProcessed),
		slog.Int("emails_failed", summary.EmailsFailed),
	)
}
