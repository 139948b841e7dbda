// Package relevance はユーザーごとの記事関連度判定を提供する。
package relevance

import "github.com/hitoshi/salesdigest/internal/model"

// DefaultSectorOnlyMinScore はセクター一致のみで採用する場合の最低スコア。
// 担当企業への言及はユーザー自身の閾値で足りるが、セクター一致だけの記事にはより強いシグナルを求める。
const DefaultSectorOnlyMinScore = 70

// Filter はロールベースの関連度判定ルールを保持する。
// 副作用を持たず、同一入力に対して常に同一結果を返す。
type Filter struct {
	SectorOnlyMinScore int
}

// NewFilter はFilterを生成する。sectorOnlyMinScoreが0以下の場合はデフォルト値を使用する。
func NewFilter(sectorOnlyMinScore int) Filter {
	if sectorOnlyMinScore <= 0 {
		sectorOnlyMinScore = DefaultSectorOnlyMinScore
	}
	return Filter{SectorOnlyMinScore: sectorOnlyMinScore}
}

// IsRelevant は記事をユーザーのダイジェストに含めるべきかを判定する。
//
// 判定順序:
//  1. スコアがユーザーの最低スコア未満なら除外
//  2. executive: フォローセクターが空、またはセクターが一致すれば採用
//  3. sales/manager: 担当企業に言及していれば採用、
//     またはセクター一致かつスコアがSectorOnlyMinScore以上なら採用
func (f Filter) IsRelevant(user model.UserProfile, article model.Article) bool {
	if article.RelevanceScore < user.EmailPreferences.MinRelevanceScore {
		return false
	}

	if user.Role == model.RoleExecutive {
		if len(user.FollowedSectors) == 0 {
			return true
		}
		return article.HasSector(user.FollowedSectors)
	}

	if article.MentionsCompany(user.RelevantCompanyIDs) {
		return true
	}
	return article.HasSector(user.FollowedSectors) && article.RelevanceScore >= f.SectorOnlyMinScore
}

// Apply は記事リストからユーザーに関連する記事のみを入力順のまま返す。
// 入力スライスは変更しない。
func (f Filter) Apply(user model.UserProfile, articles []model.Article) []model.Article {
	relevant := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		if f.IsRelevant(user, a) {
			relevant = append(relevant, a)
		}
	}
	return relevant
}
