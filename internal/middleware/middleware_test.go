package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"fastlink/internal/config"
	auth "fastlink/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func get(r http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	m := auth.NewManager("secret", "fastlink", 1)
	token, err := m.GenerateToken("user-1", "alice", "user")
	require.NoError(t, err)
	r := newRouter(AuthMiddleware(m))

	w := get(r, "/whoami", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Token "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer garbage").Code)
}

func TestOptionalAuthMiddleware(t *testing.T) {
	m := auth.NewManager("secret", "fastlink", 1)
	token, err := m.GenerateToken("user-1", "alice", "user")
	require.NoError(t, err)
	r := newRouter(OptionalAuthMiddleware(m))

	w := get(r, "/whoami", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String(), "没有令牌时为匿名调用方")

	w = get(r, "/whoami", "Bearer "+token)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, get(r, "/whoami", "Bearer garbage").Code)
}

func TestRateLimit(t *testing.T) {
	r := newRouter(RateLimit(&config.Limit{
		Enabled:   true,
		Requests:  1,
		Burst:     2,
		SkipPaths: []string{"/health"},
	}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/whoami", "").Code)
	assert.Equal(t, http.StatusOK, get(r, "/whoami", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/whoami", "").Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/health", "").Code, "跳过的路径不受限流影响")
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	r := newRouter(RateLimit(&config.Limit{Enabled: false, Requests: 1, Burst: 1}))
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, get(r, "/whoami", "").Code)
	}
}

func TestGinZapRecovery(t *testing.T) {
	r := gin.New()
	r.Use(GinZapRecovery(zap.NewNop(), true), GinZapLogger(zap.NewNop()))
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := get(r, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "服务器内部错误")
}
