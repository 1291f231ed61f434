package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/tenantry/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, name, email, password, organization_id, role, reset_token, reset_token_expires`

// scanUser は1行をmodel.Userに読み取る。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var orgID sql.NullInt64
	err := row.Scan(
		&user.ID, &user.Name, &user.Email, &user.PasswordHash,
		&orgID, &user.Role, &user.ResetTokenHash, &user.ResetTokenExpires,
	)
	if err != nil {
		return nil, err
	}
	if orgID.Valid {
		user.OrganizationID = orgID.Int64
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id: %w", err)
	}
	return user, nil
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByRole は指定ロールのユーザーを1件返す。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByRole(ctx context.Context, role model.Role) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = $1 LIMIT 1`, string(role),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by role: %w", err)
	}
	return user, nil
}

// Create はユーザーを作成する。
// emailのユニーク制約違反はErrDuplicateEmailとして返す。
func (r *PostgresUserRepo) Create(ctx context.Context, params CreateUserParams) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password, organization_id, role)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		params.Name, params.Email, params.PasswordHash, params.OrganizationID, string(params.Role),
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// SetResetToken はリセットトークンのハッシュと有効期限を保存する。
func (r *PostgresUserRepo) SetResetToken(ctx context.Context, userID int64, tokenHash string, expires time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET reset_token = $1, reset_token_expires = $2 WHERE id = $3`,
		tokenHash, expires, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no user with id %d", userID)
	}
	return nil
}

// ConsumeResetToken はトークンハッシュが一致し有効期限内のユーザーの
// パスワードを更新し、トークン両フィールドをクリアする。
// 単一のUPDATEで照合・更新・クリアを行うためトークンは一度しか使用できない。
// 該当ユーザーがいない場合はnilを返す。
func (r *PostgresUserRepo) ConsumeResetToken(ctx context.Context, tokenHash, newPasswordHash string) (*model.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET password = $1, reset_token = NULL, reset_token_expires = NULL
		 WHERE reset_token = $2 AND reset_token_expires > now()
		 RETURNING `+userColumns,
		newPasswordHash, tokenHash,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
