// Package bootstrap は初回起動時のSUPERADMINユーザー作成を提供する。
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/repository"
	"github.com/hitoshi/tenantry/internal/user"
)

// Params はSUPERADMIN作成のパラメータ。
type Params struct {
	Name     string
	Email    string
	Password string
}

// Provisioner はユーザー作成のインターフェース。user.Serviceの部分集合。
type Provisioner interface {
	Provision(ctx context.Context, params user.ProvisionParams) (*model.User, error)
}

// SuperAdmin はSUPERADMINユーザーを作成する。
// すでにSUPERADMINが存在する場合はなにもせず正常終了する。
// SUPERADMINはこの経路でのみ作成でき、API経由では作成できない。
func SuperAdmin(ctx context.Context, userRepo repository.UserRepository, provisioner Provisioner, params Params) error {
	if params.Name == "" || params.Email == "" || params.Password == "" {
		return fmt.Errorf("superadmin name, email and password are required")
	}
	if model.DomainOfEmail(params.Email) == "" {
		return fmt.Errorf("superadmin email is malformed: %s", params.Email)
	}

	existing, err := userRepo.FindByRole(ctx, model.RoleSuperAdmin)
	if err != nil {
		return fmt.Errorf("failed to check existing superadmin: %w", err)
	}
	if existing != nil {
		slog.Info("superadmin already exists, skipping bootstrap",
			slog.Int64("user_id", existing.ID),
		)
		return nil
	}

	created, err := provisioner.Provision(ctx, user.ProvisionParams{
		Name:     params.Name,
		Email:    params.Email,
		Password: params.Password,
		Role:     model.RoleSuperAdmin,
		Domain:   model.DomainOfEmail(params.Email),
	})
	if err != nil {
		return fmt.Errorf("failed to provision superadmin: %w", err)
	}

	slog.Info("superadmin created",
		slog.Int64("user_id", created.ID),
		slog.String("email", created.Email),
	)
	return nil
}
