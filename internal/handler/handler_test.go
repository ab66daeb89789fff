package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fastlink/internal/cache"
	"fastlink/internal/middleware"
	"fastlink/internal/service"
	"fastlink/internal/shortcode"
	"fastlink/internal/store"
	auth "fastlink/pkg/jwt"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// syncDispatcher 同步记录访问, 便于断言访问次数
type syncDispatcher struct {
	resolver *service.Resolver
}

func (d *syncDispatcher) Dispatch(code string) {
	_ = d.resolver.RecordUsage(context.Background(), code)
}

type testEnv struct {
	router *gin.Engine
	tokens *auth.TokenManager
	mr     *miniredis.Miniredis
}

// setupTest 为集成测试初始化一个干净的环境: 内存数据库 + miniredis
func setupTest(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "无法连接到内存数据库")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.New(db)
	require.NoError(t, s.AutoMigrate(), "数据库迁移失败")

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewRedisCache(client, "shortlink:")

	log := zap.NewNop().Sugar()
	dispatcher := &syncDispatcher{}
	resolver := service.NewResolver(s, c, shortcode.NewGenerator(c, log), dispatcher,
		service.Settings{ExpiryWindow: 30 * 24 * time.Hour, CacheTTL: 24 * time.Hour}, log)
	dispatcher.resolver = resolver

	tokens := auth.NewManager("test-secret", "fastlink", 1)
	h := NewShortLinkHandler(resolver, "http://sho.rt", s, c, log)

	router := gin.New()
	h.RegisterRoutes(router, middleware.AuthMiddleware(tokens), middleware.OptionalAuthMiddleware(tokens))
	return &testEnv{router: router, tokens: tokens, mr: mr}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := e.tokens.GenerateToken(userID, userID, "user")
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// TestShortLinkHandler_Integration 测试创建和重定向的完整流程
func TestShortLinkHandler_Integration(t *testing.T) {
	env := setupTest(t)
	originalURL := "https://www.google.com/very/long/path/that/needs/shortening"

	w := env.do(t, http.MethodPost, "/api/url", "", CreateURLRequest{OriginalURL: originalURL})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	link := decode[LinkResponse](t, w)
	assert.Len(t, link.ShortCode, shortcode.DefaultLength)
	assert.Equal(t, "http://sho.rt/"+link.ShortCode, link.ShortLink)
	assert.Equal(t, originalURL, link.OriginalURL)

	w = env.do(t, http.MethodGet, "/"+link.ShortCode, "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, originalURL, w.Header().Get("Location"))

	w = env.do(t, http.MethodGet, "/"+link.ShortCode+"?no_redirect=true", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, originalURL, decode[map[string]string](t, w)["redirect_url"])

	w = env.do(t, http.MethodGet, "/"+link.ShortCode+"/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[service.Stats](t, w)
	assert.Equal(t, int64(2), stats.HitCount)
	assert.NotNil(t, stats.LastUsedAt)
}

func TestShortLinkHandler_CreateValidation(t *testing.T) {
	env := setupTest(t)

	w := env.do(t, http.MethodPost, "/api/url", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/url", "", CreateURLRequest{OriginalURL: "not-a-url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/url", "Bearer-less", CreateURLRequest{OriginalURL: "https://example.com"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "携带无效令牌时拒绝")
}

func TestShortLinkHandler_RedirectNotFound(t *testing.T) {
	env := setupTest(t)
	w := env.do(t, http.MethodGet, "/zzzzz", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, decode[ErrorResponse](t, w).Error)
}

func TestShortLinkHandler_CreateCustom(t *testing.T) {
	env := setupTest(t)
	alice := env.token(t, "alice")
	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	req := CreateCustomRequest{OriginalURL: "https://example.com", ShortCode: "promo", Expiration: future}
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/api/shorten", "", req).Code)

	w := env.do(t, http.MethodPost, "/api/shorten", alice, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "promo", decode[LinkResponse](t, w).ShortCode)

	w = env.do(t, http.MethodPost, "/api/shorten", alice, req)
	assert.Equal(t, http.StatusBadRequest, w.Code, "重复短码")

	past := req
	past.ShortCode = "late"
	past.Expiration = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/shorten", alice, past).Code)

	malformed := req
	malformed.ShortCode = "weird"
	malformed.Expiration = "tomorrow"
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/api/shorten", alice, malformed).Code)
}

func TestShortLinkHandler_DeleteAndList(t *testing.T) {
	env := setupTest(t)
	alice := env.token(t, "alice")
	bob := env.token(t, "bob")

	w := env.do(t, http.MethodPost, "/api/url", alice, CreateURLRequest{OriginalURL: "https://example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	code := decode[LinkResponse](t, w).ShortCode

	w = env.do(t, http.MethodGet, "/api/my_urls", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]service.Listing](t, w), 1)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodDelete, "/api/links/"+code, bob, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodDelete, "/api/links/"+code, alice, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/"+code, "", nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodDelete, "/api/links/"+code, alice, nil).Code)

	w = env.do(t, http.MethodGet, "/api/my_urls?url_type=expired", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	expired := decode[[]service.Listing](t, w)
	require.Len(t, expired, 1)
	assert.Equal(t, code, expired[0].ShortCode)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/my_urls?url_type=all", alice, nil).Code)
}

func TestShortLinkHandler_UpdateLink(t *testing.T) {
	env := setupTest(t)
	alice := env.token(t, "alice")

	w := env.do(t, http.MethodPost, "/api/url", alice, CreateURLRequest{OriginalURL: "https://example.com/v1"})
	require.Equal(t, http.StatusCreated, w.Code)
	oldCode := decode[LinkResponse](t, w).ShortCode

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPut, "/api/links/"+oldCode, alice, UpdateLinkRequest{}).Code)
	assert.Equal(t, http.StatusForbidden,
		env.do(t, http.MethodPut, "/api/links/"+oldCode, env.token(t, "bob"), UpdateLinkRequest{Regenerate: true}).Code)

	w = env.do(t, http.MethodPut, "/api/links/"+oldCode, alice, UpdateLinkRequest{
		OriginalURL: "https://example.com/v2",
		Regenerate:  true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[LinkResponse](t, w)
	assert.NotEqual(t, oldCode, updated.ShortCode)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/"+oldCode, "", nil).Code)
	w = env.do(t, http.MethodGet, "/"+updated.ShortCode, "", nil)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/v2", w.Header().Get("Location"))
}

func TestShortLinkHandler_Search(t *testing.T) {
	env := setupTest(t)

	w := env.do(t, http.MethodPost, "/api/url", "", CreateURLRequest{OriginalURL: "https://example.com/find-me"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodGet, "/api/search?original_url=https://example.com/find-me", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]LinkResponse](t, w), 1)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/search?original_url=https://nope.example", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/search", "", nil).Code)
}

func TestShortLinkHandler_HealthCheck(t *testing.T) {
	env := setupTest(t)

	w := env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	env.mr.Close()
	w = env.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrExpired, http.StatusNotFound},
		{service.ErrForbidden, http.StatusForbidden},
		{service.ErrCodeAlreadyExists, http.StatusBadRequest},
		{service.ErrInvalidExpiration, http.StatusBadRequest},
		{service.ErrGenerationExhausted, http.StatusInternalServerError},
		{fmt.Errorf("%w: boom", service.ErrTransientStore), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}
