package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tenantry/internal/authz"
	"github.com/hitoshi/tenantry/internal/middleware"
	"github.com/hitoshi/tenantry/internal/model"
)

// OrganizationServiceInterface は組織ハンドラーが必要とするサービスインターフェース。
type OrganizationServiceInterface interface {
	Create(ctx context.Context, name, domain string) (*model.Organization, error)
	List(ctx context.Context) ([]*model.Organization, error)
}

// OrganizationHandler は組織管理のHTTPハンドラー。
type OrganizationHandler struct {
	service OrganizationServiceInterface
}

// NewOrganizationHandler はOrganizationHandlerを生成する。
func NewOrganizationHandler(service OrganizationServiceInterface) *OrganizationHandler {
	return &OrganizationHandler{service: service}
}

type organizationResponse struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func toOrganizationResponse(org *model.Organization) organizationResponse {
	return organizationResponse{ID: org.ID, Name: org.Name, Domain: org.Domain}
}

// List は全組織の一覧を返す。SUPERADMIN専用。
// GET /v1/organizations
func (h *OrganizationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewTokenMissingError())
		return
	}

	if !authz.CanListOrganizations(claims.Role) {
		middleware.WriteError(w, model.NewForbiddenError(authz.ReasonOnlySuperAdminListsOrganizations))
		return
	}

	orgs, err := h.service.List(r.Context())
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	body := make([]organizationResponse, 0, len(orgs))
	for _, org := range orgs {
		body = append(body, toOrganizationResponse(org))
	}
	writeJSON(w, http.StatusOK, body)
}

type createOrganizationRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Create は組織を作成する。
// SUPERADMINは任意のドメイン、ADMINは自組織のドメインのみ作成できる。
// POST /v1/organizations
func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, err := middleware.ClaimsFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewTokenMissingError())
		return
	}

	var req createOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewValidationError("リクエストボディが不正です。"))
		return
	}
	if req.Name == "" || req.Domain == "" {
		middleware.WriteError(w, model.NewValidationError("nameとdomainは必須です。"))
		return
	}

	if !authz.CanCreateOrganization(claims.Role, claims.Domain(), req.Domain) {
		middleware.WriteError(w, model.NewForbiddenError(authz.ReasonOrganizationDomainMismatch))
		return
	}

	org, err := h.service.Create(r.Context(), req.Name, req.Domain)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrganizationResponse(org))
}
