package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/tenantry/internal/model"
)

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeResetTokenInvalid, http.StatusBadRequest},
		{model.ErrCodeInvalidCredential, http.StatusUnauthorized},
		{model.ErrCodeTokenMissing, http.StatusUnauthorized},
		{model.ErrCodeTokenInvalid, http.StatusForbidden},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodeUserNotFound, http.StatusNotFound},
		{model.ErrCodeDuplicateIdentity, http.StatusConflict},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodePersistence, http.StatusInternalServerError},
		{model.ErrCodeUpstreamTimeout, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := StatusForCode(tt.code); got != tt.want {
			t.Errorf("StatusForCode(%s) = %d, want %d", tt.code, got, tt.want)
		}
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, model.NewDuplicateIdentityError("alice@acme.example"))

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeDuplicateIdentity {
		t.Errorf("expected %s, got %s", model.ErrCodeDuplicateIdentity, body.Code)
	}
	if body.Message == "" || body.Action == "" {
		t.Error("expected message and action to be populated")
	}
}

func TestWriteErrorNonAPIError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.ErrBodyNotAllowed)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("expected INTERNAL_ERROR, got %s", body.Code)
	}
}
