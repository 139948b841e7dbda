// Package source はYAMLファイルから記事プールとユーザー名簿を読み込むソースを提供する。
// データベースなしでのドライランや動作確認に使用する。
package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/salesdigest/internal/model"
)

// fixtureFile はフィクスチャファイルのトップレベル構造。
type fixtureFile struct {
	Articles []fixtureArticle `yaml:"articles"`
	Users    []fixtureUser    `yaml:"users"`
}

type fixtureArticle struct {
	ID             string    `yaml:"id"`
	URL            string    `yaml:"url"`
	Title          string    `yaml:"title"`
	Summary        string    `yaml:"summary"`
	PublishedAt    time.Time `yaml:"published_at"`
	RelevanceScore int       `yaml:"relevance_score"`
	Sentiment      string    `yaml:"sentiment"`
	Sectors        []string  `yaml:"sectors"`
	Companies      []string  `yaml:"companies"`
	IsBreaking     bool      `yaml:"is_breaking"`
}

type fixtureUser struct {
	ID                 string   `yaml:"id"`
	Email              string   `yaml:"email"`
	Name               string   `yaml:"name"`
	Role               string   `yaml:"role"`
	RelevantCompanyIDs []string `yaml:"relevant_companies"`
	FollowedSectors    []string `yaml:"followed_sectors"`
	Timezone           string   `yaml:"timezone"`
	DigestEnabled      bool     `yaml:"digest_enabled"`
	MinRelevanceScore  int      `yaml:"min_relevance_score"`
}

// Fixture はYAMLから読み込んだ記事とユーザー。
// repository.ArticleSourceとrepository.RosterSourceを実装する。
// 読み込み後は変更されないため、複数のゴルーチンから参照できる。
type Fixture struct {
	articles []model.Article
	users    []model.UserProfile
}

// LoadFixture はYAMLファイルを読み込む。
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture はYAMLデータを解析する。
// 記事IDとユーザーIDの重複、範囲外のスコアはエラーとする。
func ParseFixture(data []byte) (*Fixture, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture YAML: %w", err)
	}

	fx := &Fixture{
		articles: make([]model.Article, 0, len(f.Articles)),
		users:    make([]model.UserProfile, 0, len(f.Users)),
	}

	seenArticles := make(map[string]bool, len(f.Articles))
	for i, a := range f.Articles {
		if a.ID == "" {
			return nil, fmt.Errorf("articles[%d]: id is required", i)
		}
		if seenArticles[a.ID] {
			return nil, fmt.Errorf("articles[%d]: duplicate id %q", i, a.ID)
		}
		if a.RelevanceScore < 0 || a.RelevanceScore > 100 {
			return nil, fmt.Errorf("articles[%d]: relevance_score %d out of range 0-100", i, a.RelevanceScore)
		}
		seenArticles[a.ID] = true
		fx.articles = append(fx.articles, model.Article{
			ID:             a.ID,
			URL:            a.URL,
			Title:          a.Title,
			Summary:        a.Summary,
			PublishedAt:    a.PublishedAt,
			RelevanceScore: a.RelevanceScore,
			Sentiment:      a.Sentiment,
			Sectors:        a.Sectors,
			Companies:      a.Companies,
			IsBreaking:     a.IsBreaking,
		})
	}

	seenUsers := make(map[string]bool, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("users[%d]: id is required", i)
		}
		if seenUsers[u.ID] {
			return nil, fmt.Errorf("users[%d]: duplicate id %q", i, u.ID)
		}
		seenUsers[u.ID] = true
		fx.users = append(fx.users, model.UserProfile{
			ID:                 u.ID,
			Email:              u.Email,
			Name:               u.Name,
			Role:               model.Role(u.Role),
			RelevantCompanyIDs: u.RelevantCompanyIDs,
			FollowedSectors:    u.FollowedSectors,
			Timezone:           u.Timezone,
			EmailPreferences: model.EmailPreferences{
				Enabled:           u.DigestEnabled,
				MinRelevanceScore: u.MinRelevanceScore,
			},
		})
	}

	return fx, nil
}

// FetchScoredArticles はフィクスチャの記事をファイル記載順で返す。
func (f *Fixture) FetchScoredArticles(ctx context.Context) ([]model.Article, error) {
	out := make([]model.Article, len(f.articles))
	copy(out, f.articles)
	return out, nil
}

// UsersWithEmailEnabled はdigest_enabledのユーザーを返す。
func (f *Fixture) UsersWithEmailEnabled(ctx context.Context) ([]model.UserProfile, error) {
	var out []model.UserProfile
	for _, u := range f.users {
		if u.EmailPreferences.Enabled {
			out = append(out, u)
		}
	}
	return out, nil
}

// FindByID は指定IDのユーザーを返す。見つからない場合はnilを返す。
func (f *Fixture) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	for _, u := range f.users {
		if u.ID == id {
			found := u
			return &found, nil
		}
	}
	return nil, nil
}
