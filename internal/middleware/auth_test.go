package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/berth-ops/notify-api/internal/middleware"
	"github.com/berth-ops/notify-api/pkg/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *auth.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	mw := middleware.NewAuthMiddleware(tokens)

	r := gin.New()
	protected := r.Group("/", mw.Authenticate())
	protected.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"subject": c.GetString(middleware.ContextSubject),
			"role":    c.GetString(middleware.ContextRole),
		})
	})
	protected.GET("/admin", mw.RequireRole(auth.RoleAdmin), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	protected.GET("/viewer", mw.RequireRole(auth.RoleViewer), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r, tokens
}

func authGet(r http.Handler, path, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func TestAuthenticateMissingHeader(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := authGet(r, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing authorization header", errorMessage(t, w))
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, err := tokens.Generate("ops-dashboard", auth.RoleAdmin)
	assert.NoError(t, err)

	for _, header := range []string{"Token " + token, "Bearer", token} {
		w := authGet(r, "/whoami", header)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "invalid authorization format", errorMessage(t, w))
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	r, _ := newAuthRouter(t)

	w := authGet(r, "/whoami", "Bearer not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "invalid token", errorMessage(t, w))
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	r, _ := newAuthRouter(t)

	other := auth.NewTokenManager("different-secret", time.Hour)
	token, err := other.Generate("ops-dashboard", auth.RoleAdmin)
	assert.NoError(t, err)

	w := authGet(r, "/whoami", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateSetsIdentity(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, err := tokens.Generate("ops-dashboard", auth.RoleViewer)
	assert.NoError(t, err)

	w := authGet(r, "/whoami", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Subject string `json:"subject"`
		Role    string `json:"role"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ops-dashboard", body.Subject)
	assert.Equal(t, auth.RoleViewer, body.Role)
}

func TestRequireRoleForbidsViewer(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, err := tokens.Generate("ops-dashboard", auth.RoleViewer)
	assert.NoError(t, err)

	w := authGet(r, "/admin", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "permission denied", errorMessage(t, w))
}

func TestRequireRoleAdminPassesEveryCheck(t *testing.T) {
	r, tokens := newAuthRouter(t)
	token, err := tokens.Generate("deploy-bot", auth.RoleAdmin)
	assert.NoError(t, err)

	for _, path := range []string{"/admin", "/viewer"} {
		w := authGet(r, path, "Bearer "+token)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
