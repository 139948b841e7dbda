package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/salesdigest/internal/model"
)

// rosterSelect はユーザープロフィールの取得クエリ。
// 担当企業はチーム割り当て企業と自己タグ付け企業の和集合をフラットな配列で返す。
const rosterSelect = `
SELECT u.id, u.email, u.name, u.role, u.timezone, u.digest_enabled, u.min_relevance_score,
       ARRAY(
           SELECT tc.company_id FROM team_companies tc WHERE tc.team_id = u.team_id
           UNION
           SELECT uc.company_id FROM user_companies uc WHERE uc.user_id = u.id
           ORDER BY 1
       ) AS company_ids,
       ARRAY(
           SELECT us.sector FROM user_sectors us WHERE us.user_id = u.id ORDER BY us.sector
       ) AS sectors
FROM users u`

// PostgresRosterRepo はPostgreSQLを使用したユーザー名簿リポジトリ。
type PostgresRosterRepo struct {
	db *sql.DB
}

// NewPostgresRosterRepo はPostgresRosterRepoを生成する。
func NewPostgresRosterRepo(db *sql.DB) *PostgresRosterRepo {
	return &PostgresRosterRepo{db: db}
}

// UsersWithEmailEnabled はdigest_enabledのユーザーをID順に返す。
func (r *PostgresRosterRepo) UsersWithEmailEnabled(ctx context.Context) ([]model.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx, rosterSelect+` WHERE u.digest_enabled = TRUE ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []model.UserProfile
	for rows.Next() {
		u, err := scanUserProfile(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの読み取りに失敗しました: %w", err)
	}

	return users, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresRosterRepo) FindByID(ctx context.Context, id string) (*model.UserProfile, error) {
	row := r.db.QueryRowContext(ctx, rosterSelect+` WHERE u.id = $1`, id)
	u, err := scanUserProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserProfile(s rowScanner) (*model.UserProfile, error) {
	var u model.UserProfile
	var role string
	var companies, sectors pq.StringArray

	err := s.Scan(
		&u.ID, &u.Email, &u.Name, &role, &u.Timezone,
		&u.EmailPreferences.Enabled, &u.EmailPreferences.MinRelevanceScore,
		&companies, &sectors,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザープロフィールのスキャンに失敗しました: %w", err)
	}

	u.Role = model.Role(role)
	u.RelevantCompanyIDs = []string(companies)
	u.FollowedSectors = []string(sectors)
	return &u, nil
}
