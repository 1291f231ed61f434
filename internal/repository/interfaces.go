// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/tenantry/internal/model"
)

// OrganizationRepository は組織（テナント）データの永続化インターフェース。
type OrganizationRepository interface {
	// FindByDomain はドメイン完全一致で組織を検索する。見つからない場合はnilを返す。
	FindByDomain(ctx context.Context, domain string) (*model.Organization, error)

	// FindOrCreateByDomain はドメインで組織を取得し、存在しなければ作成する。
	// name未指定の新規作成ではドメイン文字列をそのまま名前にする。
	// domainのユニーク制約に基づくアトミックな操作であり、
	// 同一ドメインの同時初回アクセスでも組織は1行に収束する。
	FindOrCreateByDomain(ctx context.Context, domain string) (*model.Organization, error)

	// Create は組織を明示的な名前で作成する。
	// domainのユニーク制約違反はErrDuplicateDomainを返す。
	Create(ctx context.Context, name, domain string) (*model.Organization, error)

	// List は全組織を返す。
	List(ctx context.Context) ([]*model.Organization, error)
}

// CreateUserParams はユーザー作成時のパラメータ。
// PasswordHashはOAuth専用アカウントの場合nilを渡す。
type CreateUserParams struct {
	Name           string
	Email          string
	PasswordHash   *string
	OrganizationID int64
	Role           model.Role
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// FindByRole は指定ロールのユーザーを1件返す。見つからない場合はnilを返す。
	// SUPERADMINブートストラップの存在チェックに使用する。
	FindByRole(ctx context.Context, role model.Role) (*model.User, error)

	// Create はユーザーを作成する。emailのユニーク制約違反はErrDuplicateEmailを返す。
	Create(ctx context.Context, params CreateUserParams) (*model.User, error)

	// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
	SetResetToken(ctx context.Context, userID int64, tokenHash string, expires time.Time) error

	// ConsumeResetToken はトークンハッシュが一致し有効期限内のユーザーの
	// パスワードを更新し、トークン両フィールドをクリアする。
	// 単一のUPDATEで実行されるためトークンは一度しか使用できない。
	// 該当ユーザーがいない場合はnilを返す。
	ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (*model.User, error)
}
