// Package user はユーザープロビジョニングのドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/repository"
)

// bcryptCost はパスワードハッシュのコストファクター。
// 総当たり耐性とログイン遅延のバランスで固定する。
const bcryptCost = 10

// TenantResolver はメールドメインからのテナント解決インターフェース。
// organization.Serviceの部分集合として定義する。
type TenantResolver interface {
	ResolveOrCreate(ctx context.Context, domain string) (*model.Organization, error)
}

// Service はユーザープロビジョニングのサービス層。
type Service struct {
	userRepo     repository.UserRepository
	tenants      TenantResolver
	storeTimeout time.Duration
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tenants TenantResolver, storeTimeout time.Duration) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{
		userRepo:     userRepo,
		tenants:      tenants,
		storeTimeout: storeTimeout,
	}
}

// ProvisionParams はパスワード認証ユーザーの作成パラメータ。
// Domainには所属させるテナントのドメイン（通常はメールドメイン）を渡す。
type ProvisionParams struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
	Domain   string
}

// Provision はパスワード認証ユーザーを作成する。
// テナントを解決し、メールアドレスの一意性を確認し、
// パスワードをbcryptでハッシュしてから永続化する。
// 同一メールアドレスで再度呼ぶと2回目はDUPLICATE_IDENTITYで失敗する。
func (s *Service) Provision(ctx context.Context, params ProvisionParams) (*model.User, error) {
	org, err := s.tenants.ResolveOrCreate(ctx, params.Domain)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	existing, err := s.userRepo.FindByEmail(sctx, params.Email)
	if err != nil {
		slog.Error("failed to check existing user",
			slog.String("email", params.Email),
			slog.String("error", err.Error()),
		)
		return nil, mapStoreError(err)
	}
	if existing != nil {
		return nil, model.NewDuplicateIdentityError(params.Email)
	}

	hash, err := hashPassword(params.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	created, err := s.createUser(ctx, repository.CreateUserParams{
		Name:           params.Name,
		Email:          params.Email,
		PasswordHash:   &hash,
		OrganizationID: org.ID,
		Role:           params.Role,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("user provisioned",
		slog.Int64("user_id", created.ID),
		slog.String("email", created.Email),
		slog.String("role", string(created.Role)),
		slog.Int64("organization_id", created.OrganizationID),
	)
	return created, nil
}

// ProvisionOAuth はOAuthログイン用のfind-or-createを行う。
// 既存ユーザーはそのまま返し、未登録の場合はパスワードなし（OAuth専用）で
// ロールUSERのユーザーを作成する。
func (s *Service) ProvisionOAuth(ctx context.Context, name, email string) (*model.User, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	existing, err := s.userRepo.FindByEmail(sctx, email)
	if err != nil {
		slog.Error("failed to check existing user",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return nil, mapStoreError(err)
	}
	if existing != nil {
		return existing, nil
	}

	org, err := s.tenants.ResolveOrCreate(ctx, model.DomainOfEmail(email))
	if err != nil {
		return nil, err
	}

	created, err := s.createUser(ctx, repository.CreateUserParams{
		Name:           name,
		Email:          email,
		PasswordHash:   nil,
		OrganizationID: org.ID,
		Role:           model.RoleUser,
	})
	if err != nil {
		// 同時コールバックとのレースで作成に負けた場合は既存行を採用する
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeDuplicateIdentity {
			rctx, rcancel := context.WithTimeout(ctx, s.storeTimeout)
			defer rcancel()
			winner, ferr := s.userRepo.FindByEmail(rctx, email)
			if ferr != nil {
				return nil, mapStoreError(ferr)
			}
			if winner == nil {
				return nil, model.NewPersistenceError()
			}
			return winner, nil
		}
		return nil, err
	}

	slog.Info("oauth user created",
		slog.Int64("user_id", created.ID),
		slog.String("email", created.Email),
	)
	return created, nil
}

// createUser はリポジトリへの作成呼び出しとエラー変換をまとめる。
// emailユニーク制約違反のレースはDUPLICATE_IDENTITYとして表面化する。
func (s *Service) createUser(ctx context.Context, params repository.CreateUserParams) (*model.User, error) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	created, err := s.userRepo.Create(sctx, params)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, model.NewDuplicateIdentityError(params.Email)
		}
		slog.Error("failed to create user",
			slog.String("email", params.Email),
			slog.String("error", err.Error()),
		)
		return nil, mapStoreError(err)
	}
	return created, nil
}

// hashPassword はパスワードを固定コストのbcryptでハッシュする。
func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// mapStoreError はストア層のエラーをAPIエラーに変換する。
func mapStoreError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewUpstreamTimeoutError()
	}
	return model.NewPersistenceError()
}
