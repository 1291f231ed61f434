package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/tenantry/internal/middleware"
	"github.com/hitoshi/tenantry/internal/model"
	"github.com/hitoshi/tenantry/internal/user"
)

type mockUserService struct {
	provisionFunc func(ctx context.Context, params user.ProvisionParams) (*model.User, error)
}

func (m *mockUserService) Provision(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
	return m.provisionFunc(ctx, params)
}

func postUser(t *testing.T, h *UserHandler, body string, role model.Role, actorEmail string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader(body))
	req = requestWithClaims(req, role, actorEmail)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	return rec
}

func TestCreateUserAdminSameDomain(t *testing.T) {
	service := &mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			if params.Domain != "acme.example" {
				t.Errorf("expected domain acme.example, got %s", params.Domain)
			}
			if params.Role != model.RoleUser {
				t.Errorf("expected role USER, got %s", params.Role)
			}
			return &model.User{ID: 2, Name: params.Name, Email: params.Email, OrganizationID: 1, Role: params.Role}, nil
		},
	}
	h := NewUserHandler(service, nil)

	rec := postUser(t, h,
		`{"name":"bob","email":"bob@acme.example","password":"longenough","role":"USER"}`,
		model.RoleAdmin, "alice@acme.example")

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body userResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Email != "bob@acme.example" {
		t.Errorf("unexpected email: %s", body.Email)
	}
}

func TestCreateUserAdminForeignDomain(t *testing.T) {
	service := &mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			t.Error("service must not be called")
			return nil, nil
		},
	}
	h := NewUserHandler(service, nil)

	rec := postUser(t, h,
		`{"name":"carl","email":"carl@other.example","password":"longenough","role":"USER"}`,
		model.RoleAdmin, "alice@acme.example")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestCreateSuperAdminDeniedForAdmin(t *testing.T) {
	service := &mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			t.Error("service must not be called")
			return nil, nil
		},
	}
	h := NewUserHandler(service, nil)

	rec := postUser(t, h,
		`{"name":"mallory","email":"mallory@acme.example","password":"longenough","role":"SUPERADMIN"}`,
		model.RoleAdmin, "alice@acme.example")

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeForbidden {
		t.Errorf("expected %s, got %s", model.ErrCodeForbidden, body.Code)
	}
}

func TestCreateUserSuperAdminAnyDomain(t *testing.T) {
	service := &mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			return &model.User{ID: 7, Name: params.Name, Email: params.Email, OrganizationID: 5, Role: params.Role}, nil
		},
	}
	h := NewUserHandler(service, nil)

	rec := postUser(t, h,
		`{"name":"carl","email":"carl@other.example","password":"longenough","role":"ADMIN"}`,
		model.RoleSuperAdmin, "root@hq.example")

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestCreateUserDeniedForRegularUser(t *testing.T) {
	h := NewUserHandler(&mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			t.Error("service must not be called")
			return nil, nil
		},
	}, nil)

	for _, role := range []model.Role{model.RoleUser, model.RoleReadOnly} {
		rec := postUser(t, h,
			`{"name":"bob","email":"bob@acme.example","password":"longenough","role":"USER"}`,
			role, "someone@acme.example")
		if rec.Code != http.StatusForbidden {
			t.Errorf("role %s: expected 403, got %d", role, rec.Code)
		}
	}
}

func TestCreateUserInvalidRole(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, nil)

	rec := postUser(t, h,
		`{"name":"bob","email":"bob@acme.example","password":"longenough","role":"OWNER"}`,
		model.RoleSuperAdmin, "root@hq.example")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUserMalformedEmail(t *testing.T) {
	h := NewUserHandler(&mockUserService{}, nil)

	rec := postUser(t, h,
		`{"name":"bob","email":"not-an-email","password":"longenough","role":"USER"}`,
		model.RoleSuperAdmin, "root@hq.example")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	service := &mockUserService{
		provisionFunc: func(ctx context.Context, params user.ProvisionParams) (*model.User, error) {
			return nil, model.NewDuplicateIdentityError(params.Email)
		},
	}
	h := NewUserHandler(service, nil)

	rec := postUser(t, h,
		`{"name":"bob","email":"bob@acme.example","password":"longenough","role":"USER"}`,
		model.RoleAdmin, "alice@acme.example")

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}
