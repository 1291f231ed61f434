// Package auth はパスワード認証、ベアラートークンの発行・検証、
// Google OAuthログインフローを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/repository"
)

// OAuthProvisioner はOAuthコールバック時のユーザーfind-or-createインターフェース。
// user.Serviceの部分集合として定義する。
type OAuthProvisioner interface {
	ProvisionOAuth(ctx context.Context, name, email string) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	JWTSecret    string
	TokenTTL     time.Duration // expクレームの有効期間
	StoreTimeout time.Duration
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	oauth        OAuthProvider
	provisioner  OAuthProvisioner
	secret       []byte
	tokenTTL     time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceを生成する。
// oauthおよびprovisionerはOAuthを無効にする構成ではnilでよい。
func NewService(
	userRepo repository.UserRepository,
	oauth OAuthProvider,
	provisioner OAuthProvisioner,
	config ServiceConfig,
) *Service {
	tokenTTL := config.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	storeTimeout := config.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		userRepo:     userRepo,
		oauth:        oauth,
		provisioner:  provisioner,
		secret:       []byte(config.JWTSecret),
		tokenTTL:     tokenTTL,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Authenticate はメールアドレスとパスワードでユーザーを認証する。
// ユーザー不在・OAuth専用アカウント・パスワード不一致のいずれも同じく
// (nil, nil) を返し、どのケースで失敗したかを呼び出し側に漏らさない。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to fetch user for login",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, model.NewUpstreamTimeoutError()
		}
		return nil, model.NewPersistenceError()
	}
	if user == nil || user.PasswordHash == nil {
		return nil, nil
	}

	// bcrypt比較は定数時間で行われる
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		return nil, nil
	}

	return user, nil
}

// IssueToken はユーザーのID・メール・組織ID・ロールを含む署名付き
// ベアラートークンを発行する。有効期限はTokenTTL。
// クッキーの寿命はこれとは独立に設定され、クッキーがexpクレームより
// 長生きした場合は検証失敗となり再認証を要求する。
func (s *Service) IssueToken(user *model.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:         user.ID,
		Email:          user.Email,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken はトークンの署名と有効期限を検証し、クレームを返す。
// 期限切れ・改ざん・署名方式不一致はいずれもTOKEN_INVALIDとなる。
// トークン未提示（TOKEN_MISSING）は抽出側で区別して扱う。
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, model.NewTokenInvalidError()
	}
	return claims, nil
}

// GetLoginURL はGoogle OAuthの認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleGoogleCallback はOAuthコールバックを処理する。
// 認可コードをユーザー情報に交換し、組織とユーザーをfind-or-createした上で
// ベアラートークンを発行する。
func (s *Service) HandleGoogleCallback(ctx context.Context, code string) (*model.User, string, error) {
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	user, err := s.provisioner.ProvisionOAuth(ctx, userInfo.Name, userInfo.Email)
	if err != nil {
		return nil, "", fmt.Errorf("failed to provision oauth user: %w", err)
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return nil, "", err
	}

	slog.Info("oauth login",
		slog.Int64("user_id", user.ID),
		slog.String("email", user.Email),
	)
	return user, token, nil
}
