package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"leech-bot/internal/service"
)

func protectedRouter(tokens *service.AdminTokenService, ownerID int64) *gin.Engine {
	r := gin.New()
	r.GET("/protected", AdminAuthMiddleware(tokens, ownerID), func(c *gin.Context) {
		claims, ok := GetAdminClaims(c)
		if !ok || claims.OwnerID == 0 {
			c.Status(http.StatusUnauthorized)
			return
		}
		c.Status(http.StatusOK)
	})
	return r
}

func TestAdminAuthMiddleware_AllowsOwnerToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewAdminTokenService("secret", time.Hour)
	token, _, err := tokens.Generate(999)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protectedRouter(tokens, 999).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminAuthMiddleware_Rejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tokens := service.NewAdminTokenService("secret", time.Hour)
	otherOwner, _, err := tokens.Generate(123)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	cases := []struct {
		name   string
		tokens *service.AdminTokenService
		header string
		want   int
	}{
		{"missing token", tokens, "", http.StatusUnauthorized},
		{"not bearer", tokens, "Basic abc", http.StatusUnauthorized},
		{"garbage token", tokens, "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"other owner", tokens, "Bearer " + otherOwner, http.StatusForbidden},
		{"disabled", service.NewAdminTokenService("", time.Hour), "Bearer " + otherOwner, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			protectedRouter(tc.tokens, 999).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}
