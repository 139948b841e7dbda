package app

import (
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

// runReport はrunサブコマンドが標準出力に書き出す集計結果。
type runReport struct {
	RunID                 string          `json:"run_id"`
	TestMode              bool            `json:"test_mode"`
	StartedAt             time.Time       `json:"started_at"`
	FinishedAt            time.Time       `json:"finished_at"`
	UsersProcessed        int             `json:"users_processed"`
	EmailsSucceeded       int             `json:"emails_succeeded"`
	EmailsFailed          int             `json:"emails_failed"`
	TotalArticlesIncluded int             `json:"total_articles_included"`
	Outcomes              []outcomeReport `json:"outcomes"`
}

type outcomeReport struct {
	UserID       string `json:"user_id"`
	Success      bool   `json:"success"`
	Skipped      bool   `json:"skipped,omitempty"`
	ArticleCount int    `json:"article_count"`
	Error        string `json:"error,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

func newRunReport(s *model.RunSummary) runReport {
	r := runReport{
		RunID:                 s.RunID,
		TestMode:              s.TestMode,
		StartedAt:             s.StartedAt,
		FinishedAt:            s.FinishedAt,
		UsersProcessed:        s.UsersProcessed,
		EmailsSucceeded:       s.EmailsSucceeded,
		EmailsFailed:          s.EmailsFailed,
		TotalArticlesIncluded: s.TotalArticlesIncluded,
		Outcomes:              make([]outcomeReport, 0, len(s.Outcomes)),
	}
	for _, o := range s.Outcomes {
		r.Outcomes = append(r.Outcomes, outcomeReport{
			UserID:       o.UserID,
			Success:      o.Success,
			Skipped:      o.Skipped,
			ArticleCount: o.ArticleCount,
			Error:        o.Error,
			Warning:      o.Warning,
		})
	}
	return r
}
