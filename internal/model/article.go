// Package model はドメインモデルを定義する。
package model

import "time"

// Article はスコアリング済みのニュース記事を表す。
// 外部の要約・スコアリングサービスが生成したものを読み取り専用で扱い、
// パイプライン内で変更することはない。
type Article struct {
	ID             string
	URL            string // 重複判定の第2キー
	Title          string
	Summary        string
	PublishedAt    time.Time
	RelevanceScore int    // 0〜100
	Sentiment      string // positive / neutral / negative（そのまま配信側へ渡す）
	Sectors        []string
	Companies      []string
	IsBreaking     bool
}

// HasSector は記事が指定セクターのいずれかに属するかを返す。
func (a Article) HasSector(sectors []string) bool {
	return intersects(a.Sectors, sectors)
}

// MentionsCompany は記事が指定企業のいずれかに言及しているかを返す。
func (a Article) MentionsCompany(companyIDs []string) bool {
	return intersects(a.Companies, companyIDs)
}

// intersects は2つのタグ集合が共通要素を持つかを返す。
func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
