// Package middleware はHTTPミドルウェア群を提供する。
// 認証、レート制限、CORS、構造化ログ、panicリカバリを含む。
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hitoshi/tenantry/internal/auth"
	"github.com/hitoshi/tenantry/internal/model"
)

// TokenCookieName はベアラートークンを保持するクッキー名。
const TokenCookieName = "token"

type contextKey string

const claimsContextKey contextKey = "claims"

// ErrNoClaims はコンテキストに認証情報がない場合のエラー。
var ErrNoClaims = errors.New("no claims in context")

// TokenVerifier はトークン検証のインターフェース。auth.Serviceの部分集合。
type TokenVerifier interface {
	VerifyToken(tokenString string) (*auth.Claims, error)
}

// ClaimsFromContext はリクエストコンテキストから認証済みクレームを取得する。
func ClaimsFromContext(ctx context.Context) (*auth.Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*auth.Claims)
	if !ok || claims == nil {
		return nil, ErrNoClaims
	}
	return claims, nil
}

// ContextWithClaims はクレームを格納したコンテキストを返す。テスト用にも公開する。
func ContextWithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// extractToken はAuthorizationヘッダー（優先）またはtokenクッキーから
// トークンを取り出す。どちらにもない場合は空文字を返す。
// ヘッダーが存在する場合はその内容で確定し、Bearer形式でなくても
// クッキーへはフォールバックしない（検証失敗としてTOKEN_INVALIDになる）。
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		token, _ := strings.CutPrefix(header, "Bearer ")
		return token
	}
	if cookie, err := r.Cookie(TokenCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// NewAuthMiddleware は保護エンドポイント用の認証ミドルウェアを返す。
// トークン未提示は401 TOKEN_MISSING、検証失敗は403 TOKEN_INVALIDを返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewTokenMissingError())
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				WriteErrorResponse(w, http.StatusForbidden, model.NewTokenInvalidError())
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
