// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/tenantry/internal/middleware"
	"github.com/hitoshi/tenantry/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Authenticate(ctx context.Context, email, password string) (*model.User, error)
	IssueToken(user *model.User) (string, error)
	GetLoginURL(state string) string
	HandleGoogleCallback(ctx context.Context, code string) (*model.User, string, error)
}

// ResetServiceInterface はパスワードリセットのサービスインターフェース。
type ResetServiceInterface interface {
	Request(ctx context.Context, email string) error
	Complete(ctx context.Context, token, newPassword string) error
}

// AuthMetrics は認証関連のメトリクス記録インターフェース。
type AuthMetrics interface {
	RecordLoginSuccess()
	RecordLoginFailure()
	RecordResetRequested()
}

// noopAuthMetrics はメトリクス未設定時のフォールバック。
type noopAuthMetrics struct{}

func (noopAuthMetrics) RecordLoginSuccess()   {}
func (noopAuthMetrics) RecordLoginFailure()   {}
func (noopAuthMetrics) RecordResetRequested() {}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	OAuthEnabled bool
	CookieDomain string
	CookieSecure bool
	CookieMaxAge int // トークンCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト・パスワードリセット・OAuthのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	reset   ResetServiceInterface
	metrics AuthMetrics
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。metricsはnilでもよい。
func NewAuthHandler(service AuthServiceInterface, reset ResetServiceInterface, m AuthMetrics, config AuthHandlerConfig) *AuthHandler {
	if m == nil {
		m = noopAuthMetrics{}
	}
	return &AuthHandler{
		service: service,
		reset:   reset,
		metrics: m,
		config:  config,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	OrganizationID int64  `json:"organizationId"`
}

func toUserResponse(user *model.User) userResponse {
	return userResponse{
		ID:             user.ID,
		Name:           user.Name,
		Email:          user.Email,
		Role:           string(user.Role),
		OrganizationID: user.OrganizationID,
	}
}

// Login はメールアドレスとパスワードによるログインを処理する。
// POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("リクエストボディが不正です。"))
		return
	}
	if req.Email == "" || req.Password == "" {
		middleware.WriteError(w, model.NewValidationError("emailとpasswordは必須です。"))
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	if user == nil {
		h.metrics.RecordLoginFailure()
		middleware.WriteError(w, model.NewInvalidCredentialsError())
		return
	}

	token, err := h.service.IssueToken(user)
	if err != nil {
		slog.Error("failed to issue token", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setTokenCookie(w, token)
	h.metrics.RecordLoginSuccess()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    toUserResponse(user),
	})
}

// Logout はトークンCookieを破棄する。
// POST /v1/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestReset はパスワードリセットメールの送信を処理する。
// POST /v1/auth/reset-password
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("リクエストボディが不正です。"))
		return
	}
	if req.Email == "" {
		middleware.WriteError(w, model.NewValidationError("emailは必須です。"))
		return
	}

	if err := h.reset.Request(r.Context(), req.Email); err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.metrics.RecordResetRequested()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "パスワード再設定メールを送信しました。",
	})
}

type setPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// SetPassword はリセットトークンによるパスワード再設定を処理する。
// POST /v1/auth/set-password
func (h *AuthHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("リクエストボディが不正です。"))
		return
	}
	if req.Token == "" || req.Password == "" {
		middleware.WriteError(w, model.NewValidationError("tokenとpasswordは必須です。"))
		return
	}
	if len(req.Password) < 8 {
		middleware.WriteError(w, model.NewValidationError("passwordは8文字以上で指定してください。"))
		return
	}

	if err := h.reset.Complete(r.Context(), req.Token, req.Password); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "パスワードを再設定しました。",
	})
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /v1/auth/google
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.config.OAuthEnabled {
		http.Error(w, "google login is not configured", http.StatusServiceUnavailable)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /v1/auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.config.OAuthEnabled {
		http.Error(w, "google login is not configured", http.StatusServiceUnavailable)
		return
	}

	// stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch", slog.String("query_state", state))
		middleware.WriteError(w, model.NewValidationError("stateパラメータが不正です。"))
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteError(w, model.NewValidationError("認可コードがありません。"))
		return
	}

	user, token, err := h.service.HandleGoogleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	h.setTokenCookie(w, token)
	h.metrics.RecordLoginSuccess()
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Googleログインに成功しました。",
		"user":    toUserResponse(user),
	})
}

// setTokenCookie はベアラートークンをHTTP Only Cookieとして設定する。
func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.CookieMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// generateState はOAuth stateパラメータ用のランダム文字列を生成する。
func generateState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
