// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleSuperAdmin は全テナントを横断する最上位ロール。
	RoleSuperAdmin Role = "SUPERADMIN"
	// RoleAdmin は自組織内のユーザー管理が可能なロール。
	RoleAdmin Role = "ADMIN"
	// RoleUser は一般ユーザーロール。
	RoleUser Role = "USER"
	// RoleReadOnly は参照専用ロール。現在のポリシーでは未使用の予約ロール。
	RoleReadOnly Role = "READ_ONLY"
)

// ValidRole はroleが定義済みロールのいずれかであるかを返す。
func ValidRole(r Role) bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleUser, RoleReadOnly:
		return true
	}
	return false
}

// Organization はメールドメインで識別されるテナントを表す。
type Organization struct {
	ID     int64
	Name   string
	Domain string
}

// User はサービス利用ユーザーを表す。
// PasswordHashはOAuth専用アカウントの場合nil。
type User struct {
	ID                int64
	Name              string
	Email             string
	PasswordHash      *string
	OrganizationID    int64
	Role              Role
	ResetTokenHash    *string
	ResetTokenExpires *time.Time
}

// DomainOfEmail はメールアドレスから組織ドメイン（@以降）を抽出する。
// @を含まない場合は空文字を返す。
func DomainOfEmail(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return domain
}
