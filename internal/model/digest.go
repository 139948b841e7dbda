package model

import "time"

// SentArticleRecord は配信済み記事台帳の1レコードを表す。
// 配信成功が確認された後にのみ作成される。
type SentArticleRecord struct {
	ID             string
	UserID         string
	ArticleID      string
	ArticleURLHash string
	SentAt         time.Time
	DigestDate     string // 処理タイムゾーンでの配信日（YYYY-MM-DD）
}

// DigestResult はユーザー1人分のダイジェストを表す。
// 永続化せず、配信コラボレーターに渡す。
type DigestResult struct {
	UserID      string
	Articles    []Article
	GeneratedAt time.Time

	// RunID は生成したバッチ実行のID。プレビューでは空。
	RunID string
	// Recipient は配信先の宛先情報。
	Recipient Recipient

	// CandidateCount は関連度フィルタ通過後の記事数。
	CandidateCount int
	// DuplicateCount は配信済みとして除外された記事数。
	DuplicateCount int
	// TotalCount は件数上限で切り詰める前の記事数。
	TotalCount int
}

// Recipient はダイジェストの宛先情報を表す。
type Recipient struct {
	Email    string
	Name     string
	Role     Role
	Timezone string
}

// RecipientOf はユーザープロフィールから宛先情報を取り出す。
func RecipientOf(u UserProfile) Recipient {
	return Recipient{Email: u.Email, Name: u.Name, Role: u.Role, Timezone: u.Timezone}
}

// DeliveryResult は配信コラボレーターからの応答を表す。
type DeliveryResult struct {
	Success bool
	Error   string
}

// RunOptions はバッチ実行のオプション。
type RunOptions struct {
	// TestMode がtrueの場合、配信と台帳記録をスキップする。
	TestMode bool
	// SpecificUserID が指定された場合、そのユーザーのみ処理する。
	SpecificUserID string
}

// UserOutcome はユーザー1人分の処理結果を表す。
type UserOutcome struct {
	UserID       string
	Success      bool
	Skipped      bool // 新着記事がなく配信不要だった
	ArticleCount int
	Error        string
	Warning      string // 配信後の台帳記録失敗など
}

// RunSummary はバッチ実行1回分の集計結果を表す。
type RunSummary struct {
	RunID                 string
	TestMode              bool
	StartedAt             time.Time
	FinishedAt            time.Time
	UsersProcessed        int
	EmailsSucceeded       int
	EmailsFailed          int
	TotalArticlesIncluded int
	Outcomes              []UserOutcome
}

// Add はユーザーの処理結果を集計に加える。
// 配信不要（Skipped）の成功はメール送信数に数えない。
func (s *RunSummary) Add(o UserOutcome) {
	s.UsersProcessed++
	s.Outcomes = append(s.Outcomes, o)
	switch {
	case !o.Success:
		s.EmailsFailed++
	case !o.Skipped:
		s.EmailsSucceeded++
		s.TotalArticlesIncluded += o.ArticleCount
	}
}
