package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tenantry/internal/authz"
	"github.com/hitoshi/tenantry/internal/middleware"
	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	Provision(ctx context.Context, params user.ProvisionParams) (*model.User, error)
}

// UserMetrics はユーザー作成のメトリクス記録インターフェース。
type UserMetrics interface {
	RecordUserProvisioned(role string)
}

// noopUserMetrics はメトリクス未設定時のフォールバック。
type noopUserMetrics struct{}

func (noopUserMetrics) RecordUserProvisioned(role string) {}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	metrics UserMetrics
}

// NewUserHandler はUserHandlerを生成する。metricsはnilでもよい。
func NewUserHandler(service UserServiceInterface, m UserMetrics) *UserHandler {
	if m == nil {
		m = noopUserMetrics{}
	}
	return &UserHandler{service: service, metrics: m}
}

type createUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create はロール付きユーザーを作成する。作成先の組織は
// メールドメインから解決され、存在しなければ新規作成される。
// POST /v1/users
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewTokenMissingError())
		return
	}

	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("リクエストボディが不正です。"))
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" || req.Role == "" {
		middleware.WriteError(w, model.NewValidationError("name、email、password、roleは必須です。"))
		return
	}
	if len(req.Password) < 8 {
		middleware.WriteError(w, model.NewValidationError("passwordは8文字以上で指定してください。"))
		return
	}

	role := model.Role(req.Role)
	if !model.ValidRole(role) {
		middleware.WriteError(w, model.NewValidationError("roleが不正です。"))
		return
	}

	domain := model.DomainOfEmail(req.Email)
	if domain == "" {
		middleware.WriteError(w, model.NewValidationError("emailの形式が不正です。"))
		return
	}

	decision := authz.CanCreateUser(claims.Role, claims.Domain(), role, domain)
	if !decision.Allowed {
		middleware.WriteError(w, model.NewForbiddenError(decision.Reason))
		return
	}

	created, err := h.service.Provision(r.Context(), user.ProvisionParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     role,
		Domain:   domain,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	h.metrics.RecordUserProvisioned(string(created.Role))
	writeJSON(w, http.StatusCreated, toUserResponse(created))
}
