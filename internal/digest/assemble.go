package digest

import (
	"slices"
	"strings"
	"time"

	"github.com/hitoshi/salesdigest/internal/model"
)

// DefaultMaxSize はダイジェスト1通あたりの最大記事数。
const DefaultMaxSize = 20

// Assembler は候補記事を並べ替えて件数上限で切り詰める。
type Assembler struct {
	MaxSize int
}

// NewAssembler はAssemblerを生成する。maxSizeが0以下の場合はデフォルト値を使用する。
func NewAssembler(maxSize int) Assembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return Assembler{MaxSize: maxSize}
}

// Assemble はスコア降順、同点は公開日時の新しい順、さらに同点はID昇順で並べ、
// 先頭MaxSize件を返す。入力スライスは並べ替えない。空入力には空スライスを返す。
func (a Assembler) Assemble(articles []model.Article) []model.Article {
	ordered := slices.Clone(articles)
	if ordered == nil {
		ordered = []model.Article{}
	}
	slices.SortStableFunc(ordered, compareArticles)

	if a.MaxSize > 0 && len(ordered) > a.MaxSize {
		ordered = ordered[:a.MaxSize:a.MaxSize]
	}
	return ordered
}

// Build は候補記事からユーザーのダイジェストを組み立て、件数のメタデータを付与する。
func (a Assembler) Build(userID string, candidates []model.Article, duplicates int, now time.Time) *model.DigestResult {
	return &model.DigestResult{
		UserID:         userID,
		Articles:       a.Assemble(candidates),
		GeneratedAt:    now,
		CandidateCount: len(candidates) + duplicates,
		DuplicateCount: duplicates,
		TotalCount:     len(candidates),
	}
}

func compareArticles(x, y model.Article) int {
	if x.RelevanceScore != y.RelevanceScore {
		if x.RelevanceScore > y.RelevanceScore {
			return -1
		}
		return 1
	}
	if c := y.PublishedAt.Compare(x.PublishedAt); c != 0 {
		return c
	}
	return strings.Compare(x.ID, y.ID)
}
