// Package model はドメインモデルを定義する。
package model

// Role は営業組織内でのユーザーの役割を表す。
type Role string

const (
	// RoleSales は担当企業を持つ営業担当者。
	RoleSales Role = "sales"
	// RoleManager はチームを管理するマネージャー。
	RoleManager Role = "manager"
	// RoleExecutive は担当企業を持たない経営層。スコアとセクターのみで絞り込む。
	RoleExecutive Role = "executive"
)

// Valid はRoleが既知の値かを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleSales, RoleManager, RoleExecutive:
		return true
	default:
		return false
	}
}

// EmailPreferences はダイジェストメールの受信設定を表す。
type EmailPreferences struct {
	Enabled           bool
	MinRelevanceScore int // この値以上（含む）の記事のみ対象
}

// UserProfile はダイジェスト配信対象ユーザーのプロフィールを表す。
// RelevantCompanyIDs はチーム割り当てと自己タグ付け企業を外部で統合済みのフラットな集合。
type UserProfile struct {
	ID                 string
	Email              string
	Name               string
	Role               Role
	RelevantCompanyIDs []string
	FollowedSectors    []string
	Timezone           string
	EmailPreferences   EmailPreferences
}
