package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/tenantry/internal/model"
)

// PostgresOrganizationRepo はPostgreSQLを使用した組織リポジトリ。
type PostgresOrganizationRepo struct {
	db *sql.DB
}

// NewPostgresOrganizationRepo はPostgresOrganizationRepoを生成する。
func NewPostgresOrganizationRepo(db *sql.DB) *PostgresOrganizationRepo {
	return &PostgresOrganizationRepo{db: db}
}

// FindByDomain はドメイン完全一致で組織を検索する。
// 見つからない場合はnilを返す。
func (r *PostgresOrganizationRepo) FindByDomain(ctx context.Context, domain string) (*model.Organization, error) {
	org := &model.Organization{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, domain FROM organizations WHERE domain = $1`,
		domain,
	).Scan(&org.ID, &org.Name, &org.Domain)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find organization: %w", err)
	}

	return org, nil
}

// FindOrCreateByDomain はドメインで組織を取得し、存在しなければ作成する。
// INSERT ... ON CONFLICT DO NOTHINGと再SELECTの組み合わせにより、
// 同一ドメインの同時初回アクセスでも1行に収束する。
func (r *PostgresOrganizationRepo) FindOrCreateByDomain(ctx context.Context, domain string) (*model.Organization, error) {
	org := &model.Organization{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, domain)
		 VALUES ($1, $1)
		 ON CONFLICT (domain) DO NOTHING
		 RETURNING id, name, domain`,
		domain,
	).Scan(&org.ID, &org.Name, &org.Domain)

	if err == nil {
		return org, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	// ON CONFLICT DO NOTHINGは既存行を返さないため、競合時は再SELECTする
	existing, err := r.FindByDomain(ctx, domain)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("organization for domain %q disappeared after conflict", domain)
	}
	return existing, nil
}

// Create は組織を明示的な名前で作成する。
func (r *PostgresOrganizationRepo) Create(ctx context.Context, name, domain string) (*model.Organization, error) {
	org := &model.Organization{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, domain)
		 VALUES ($1, $2)
		 RETURNING id, name, domain`,
		name, domain,
	).Scan(&org.ID, &org.Name, &org.Domain)

	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateDomain
		}
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	return org, nil
}

// List は全組織をID昇順で返す。
func (r *PostgresOrganizationRepo) List(ctx context.Context) ([]*model.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, domain FROM organizations ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []*model.Organization
	for rows.Next() {
		org := &model.Organization{}
		if err := rows.Scan(&org.ID, &org.Name, &org.Domain); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate organizations: %w", err)
	}

	return orgs, nil
}

// compile-time interface check
var _ OrganizationRepository = (*PostgresOrganizationRepo)(nil)
