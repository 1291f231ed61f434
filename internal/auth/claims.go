package auth

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/tenantry/internal/model"
)

// Claims はベアラートークンに埋め込む認証済みユーザー情報。
// ユーザーID・メール・組織ID・ロールを含み、サーバー側セッションを持たない。
type Claims struct {
	UserID         int64      `json:"userId"`
	Email          string     `json:"email"`
	OrganizationID int64      `json:"organizationId"`
	Role           model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Domain はクレーム中のメールアドレスから組織ドメインを返す。
func (c *Claims) Domain() string {
	return model.DomainOfEmail(c.Email)
}
