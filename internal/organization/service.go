// Package organization はテナント（組織）管理のドメインロジックを提供する。
package organization

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/repository"
)

// Service は組織管理のサービス層。
// メールドメインからのテナント解決と、明示的な組織の作成・一覧を提供する。
type Service struct {
	orgRepo      repository.OrganizationRepository
	storeTimeout time.Duration
}

// NewService はServiceを生成する。
// storeTimeoutは各ストア呼び出しの上限時間。0の場合は5秒を使用する。
func NewService(orgRepo repository.OrganizationRepository, storeTimeout time.Duration) *Service {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &Service{orgRepo: orgRepo, storeTimeout: storeTimeout}
}

// ResolveOrCreate はドメインに対応する組織を取得し、存在しなければ作成する。
// 初回アクセス時のレースは、ユニーク制約に基づくリポジトリのアトミックな
// find-or-createにより1行へ収束する。
func (s *Service) ResolveOrCreate(ctx context.Context, domain string) (*model.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgRepo.FindOrCreateByDomain(ctx, domain)
	if err != nil {
		slog.Error("failed to resolve tenant",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		return nil, mapStoreError(err)
	}
	return org, nil
}

// Create は組織を明示的な名前とドメインで作成する。
func (s *Service) Create(ctx context.Context, name, domain string) (*model.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	org, err := s.orgRepo.Create(ctx, name, domain)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateDomain) {
			return nil, model.NewDuplicateDomainError(domain)
		}
		slog.Error("failed to create organization",
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		return nil, mapStoreError(err)
	}

	slog.Info("organization created",
		slog.Int64("organization_id", org.ID),
		slog.String("domain", org.Domain),
	)
	return org, nil
}

// List は全組織を返す。
func (s *Service) List(ctx context.Context) ([]*model.Organization, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	orgs, err := s.orgRepo.List(ctx)
	if err != nil {
		slog.Error("failed to list organizations", slog.String("error", err.Error()))
		return nil, mapStoreError(err)
	}
	return orgs, nil
}

// mapStoreError はストア層のエラーをAPIエラーに変換する。
// タイムアウトはリトライ可能なUPSTREAM_TIMEOUTとして区別する。
func mapStoreError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.NewUpstreamTimeoutError()
	}
	return model.NewPersistenceError()
}
