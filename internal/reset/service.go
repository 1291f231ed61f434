// Package reset はパスワードリセットトークンの発行と消費を提供する。
package reset

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tenantry/internal/mailer"
	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/repository"
)

const (
	tokenBytes = 32
	tokenTTL   = time.Hour
	bcryptCost = 10
)

// ServiceConfig はリセットサービスの設定。
type ServiceConfig struct {
	// FrontendURL はリセットリンクのベースURL。
	FrontendURL  string
	StoreTimeout time.Duration
}

// Service はパスワードリセットのビジネスロジックを提供する。
type Service struct {
	userRepo     repository.UserRepository
	mailer       mailer.Mailer
	frontendURL  string
	storeTimeout time.Duration
	now          func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, m mailer.Mailer, config ServiceConfig) *Service {
	storeTimeout := config.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		userRepo:     userRepo,
		mailer:       m,
		frontendURL:  config.FrontendURL,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

// Request はリセットトークンを発行し、リセットリンクをメールで送信する。
// トークンの平文はメールにのみ含まれ、保存されるのはSHA-256ハッシュのみ。
// 該当ユーザーが存在しない場合はUSER_NOT_FOUNDを返す。
func (s *Service) Request(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		slog.Error("failed to fetch user for password reset",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return mapStoreError(err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate reset token: %w", err)
	}

	expires := s.now().Add(tokenTTL)
	if err := s.userRepo.SetResetToken(ctx, user.ID, hashToken(token), expires); err != nil {
		slog.Error("failed to store reset token",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return mapStoreError(err)
	}

	link := s.frontendURL + "/reset-password?token=" + token
	body := fmt.Sprintf("以下のリンクからパスワードを再設定してください。リンクの有効期限は1時間です。\n\n%s\n", link)
	if err := s.mailer.Send(ctx, user.Email, "パスワード再設定のご案内", body); err != nil {
		slog.Error("failed to send reset mail",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return mapMailError(err)
	}

	slog.Info("password reset requested", slog.Int64("user_id", user.ID))
	return nil
}

// Complete は提示されたトークンを検証し、新しいパスワードを設定する。
// トークンの消費はアトミックなUPDATEで行われ、一致するユーザーが
// いない場合（無効・期限切れ・使用済み）はRESET_TOKEN_INVALIDを返す。
func (s *Service) Complete(ctx context.Context, token, newPassword string) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.userRepo.ConsumeResetToken(ctx, hashToken(token), string(passwordHash))
	if err != nil {
		slog.Error("failed to consume reset token", slog.String("error", err.Error()))
		return mapStoreError(err)
	}
	if user == nil {
		return model.NewResetTokenInvalidError()
	}

	slog.Info("password reset completed", slog.Int64("user_id", user.ID))
	return nil
}

// generateToken は暗号論的乱数から64文字のhexトークンを生成する。
func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// hashToken はトークンの保存・照合用SHA-256ハッシュを返す。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func mapStoreError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewUpstreamTimeoutError()
	}
	return model.NewPersistenceError()
}

// mapMailError はメール送信エラーをAPIエラーに変換する。
// 接続・読み書きのタイムアウトはリトライ可能なUPSTREAM_TIMEOUTとして返す。
func mapMailError(err error) error {
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return model.NewUpstreamTimeoutError()
	}
	return fmt.Errorf("failed to send reset mail: %w", err)
}
