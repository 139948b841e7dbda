package relevance

import (
	"math/rand"
	"testing"

	"github.com/hitoshi/salesdigest/internal/model"
)

func salesUser() model.UserProfile {
	return model.UserProfile{
		ID:                 "rep-1",
		Role:               model.RoleSales,
		RelevantCompanyIDs: []string{"acme"},
		FollowedSectors:    []string{"datacenter"},
		EmailPreferences:   model.EmailPreferences{Enabled: true, MinRelevanceScore: 50},
	}
}

func TestNewFilter_DefaultsSectorOnlyMinScore(t *testing.T) {
	if f := NewFilter(0); f.SectorOnlyMinScore != 70 {
		t.Errorf("SectorOnlyMinScore = %d, want 70", f.SectorOnlyMinScore)
	}
	if f := NewFilter(85); f.SectorOnlyMinScore != 85 {
		t.Errorf("SectorOnlyMinScore = %d, want 85", f.SectorOnlyMinScore)
	}
}

func TestFilter_IsRelevant(t *testing.T) {
	f := NewFilter(DefaultSectorOnlyMinScore)

	exec := model.UserProfile{
		ID:               "exec-1",
		Role:             model.RoleExecutive,
		EmailPreferences: model.EmailPreferences{Enabled: true, MinRelevanceScore: 60},
	}
	execWithSectors := exec
	execWithSectors.FollowedSectors = []string{"energy"}

	manager := salesUser()
	manager.Role = model.RoleManager

	tests := []struct {
		name    string
		user    model.UserProfile
		article model.Article
		want    bool
	}{
		{
			name:    "スコアが閾値未満なら除外",
			user:    exec,
			article: model.Article{ID: "a", RelevanceScore: 59},
			want:    false,
		},
		{
			name:    "閾値ちょうどは採用",
			user:    exec,
			article: model.Article{ID: "a", RelevanceScore: 60},
			want:    true,
		},
		{
			name:    "executiveでセクター指定があり一致しなければ除外",
			user:    execWithSectors,
			article: model.Article{ID: "a", RelevanceScore: 95, Sectors: []string{"retail"}},
			want:    false,
		},
		{
			name:    "executiveでセクター一致なら採用",
			user:    execWithSectors,
			article: model.Article{ID: "a", RelevanceScore: 61, Sectors: []string{"energy"}},
			want:    true,
		},
		{
			name:    "salesの担当企業言及はユーザー閾値で採用",
			user:    salesUser(),
			article: model.Article{ID: "A", RelevanceScore: 55, Companies: []string{"acme"}},
			want:    true,
		},
		{
			name:    "salesのセクター一致のみは70未満なら除外",
			user:    salesUser(),
			article: model.Article{ID: "B", RelevanceScore: 65, Sectors: []string{"datacenter"}},
			want:    false,
		},
		{
			name:    "salesのセクター一致のみは70以上なら採用",
			user:    salesUser(),
			article: model.Article{ID: "C", RelevanceScore: 72, Sectors: []string{"datacenter"}},
			want:    true,
		},
		{
			name:    "salesのセクター一致はちょうど70で採用",
			user:    salesUser(),
			article: model.Article{ID: "D", RelevanceScore: 70, Sectors: []string{"datacenter"}},
			want:    true,
		},
		{
			name:    "salesで企業もセクターも一致しなければ除外",
			user:    salesUser(),
			article: model.Article{ID: "E", RelevanceScore: 99, Sectors: []string{"retail"}, Companies: []string{"globex"}},
			want:    false,
		},
		{
			name:    "salesは担当企業言及でも閾値未満なら除外",
			user:    salesUser(),
			article: model.Article{ID: "F", RelevanceScore: 49, Companies: []string{"acme"}},
			want:    false,
		},
		{
			name:    "managerはsalesと同じルール",
			user:    manager,
			article: model.Article{ID: "G", RelevanceScore: 65, Sectors: []string{"datacenter"}},
			want:    false,
		},
		{
			name:    "salesでフォローセクターが空でもexecutive扱いにはならない",
			user:    model.UserProfile{Role: model.RoleSales, EmailPreferences: model.EmailPreferences{MinRelevanceScore: 0}},
			article: model.Article{ID: "H", RelevanceScore: 100},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.IsRelevant(tt.user, tt.article); got != tt.want {
				t.Errorf("IsRelevant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_SectorOnlyMinScoreIsConfigurable(t *testing.T) {
	f := NewFilter(80)
	article := model.Article{ID: "C", RelevanceScore: 72, Sectors: []string{"datacenter"}}
	if f.IsRelevant(salesUser(), article) {
		t.Error("SectorOnlyMinScore=80 の場合、スコア72のセクター一致記事は除外されるべき")
	}
}

func TestFilter_Apply_PreservesOrderAndInput(t *testing.T) {
	f := NewFilter(DefaultSectorOnlyMinScore)
	articles := []model.Article{
		{ID: "C", RelevanceScore: 72, Sectors: []string{"datacenter"}},
		{ID: "B", RelevanceScore: 65, Sectors: []string{"datacenter"}},
		{ID: "A", RelevanceScore: 55, Companies: []string{"acme"}},
	}

	got := f.Apply(salesUser(), articles)

	if len(got) != 2 || got[0].ID != "C" || got[1].ID != "A" {
		t.Fatalf("Apply() = %v, want [C A]", ids(got))
	}
	if articles[1].ID != "B" {
		t.Error("入力スライスが変更されてはならない")
	}
}

// 閾値未満の記事はどのユーザー・記事の組み合わせでも採用されないことを検証する。
func TestFilter_NeverAcceptsBelowThreshold(t *testing.T) {
	f := NewFilter(DefaultSectorOnlyMinScore)
	rng := rand.New(rand.NewSource(42))
	roles := []model.Role{model.RoleSales, model.RoleManager, model.RoleExecutive}
	tags := []string{"acme", "globex", "datacenter", "energy", "retail"}

	pick := func() []string {
		var out []string
		for _, tag := range tags {
			if rng.Intn(2) == 0 {
				out = append(out, tag)
			}
		}
		return out
	}

	for i := 0; i < 2000; i++ {
		user := model.UserProfile{
			Role:               roles[rng.Intn(len(roles))],
			RelevantCompanyIDs: pick(),
			FollowedSectors:    pick(),
			EmailPreferences:   model.EmailPreferences{Enabled: true, MinRelevanceScore: rng.Intn(101)},
		}
		article := model.Article{
			ID:             "x",
			RelevanceScore: rng.Intn(101),
			Sectors:        pick(),
			Companies:      pick(),
		}
		if article.RelevanceScore < user.EmailPreferences.MinRelevanceScore && f.IsRelevant(user, article) {
			t.Fatalf("閾値未満の記事が採用された: user=%+v article=%+v", user, article)
		}
	}
}

func ids(articles []model.Article) []string {
	out := make([]string, len(articles))
	for i, a := range articles {
		out[i] = a.ID
	}
	return out
}
