package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/uppalcrm/uppalcrm/internal/config"

	"github.com/gin-gonic/gin"
)

func signToken(t *testing.T, secret string, claims map[string]interface{}) string {
	t.Helper()
	header, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	payload, _ := json.Marshal(claims)
	h := base64.RawURLEncoding.EncodeToString(header)
	p := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(h + "." + p))
	return h + "." + p + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func authTestRouter(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AuthMiddleware(cfg))
	r.GET("/test", func(c *gin.Context) {
		org, _ := c.Get("organization_id")
		user, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"organization_id": org, "user_id": user})
	})
	return r
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := authTestRouter(cfg)

	tests := []struct {
		name       string
		authHeader string
	}{
		{"missing authorization header", ""},
		{"invalid bearer format", "Basic token-value"},
		{"only bearer prefix", "Bearer "},
		{"malformed jwt", "Bearer not.a.valid.jwt"},
		{"wrong signature", "Bearer " + signToken(t, "other-secret", map[string]interface{}{"user_id": 1, "organization_id": 1})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/test", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := authTestRouter(cfg)

	token := signToken(t, "test-secret", map[string]interface{}{
		"user_id":         7,
		"organization_id": 3,
		"exp":             time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["organization_id"].(float64) != 3 || body["user_id"].(float64) != 7 {
		t.Fatalf("context values = %v", body)
	}
}

func TestAuthMiddleware_RejectsExpiredToken(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := authTestRouter(cfg)

	token := signToken(t, "test-secret", map[string]interface{}{
		"user_id":         7,
		"organization_id": 3,
		"exp":             time.Now().Add(-time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_RejectsTokenWithoutOrgScope(t *testing.T) {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret"}}
	r := authTestRouter(cfg)

	token := signToken(t, "test-secret", map[string]interface{}{
		"user_id": 7,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}
