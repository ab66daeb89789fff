package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fastlink/internal/middleware"
	"fastlink/internal/model"
	"fastlink/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger 健康检查依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// ShortLinkHandler 处理器
type ShortLinkHandler struct {
	resolver *service.Resolver
	baseURL  string
	store    Pinger
	cache    Pinger
	logger   *zap.SugaredLogger
}

// NewShortLinkHandler 创建处理器实例, baseURL 用于拼接完整短链接
func NewShortLinkHandler(resolver *service.Resolver, baseURL string, store, cache Pinger, logger *zap.SugaredLogger) *ShortLinkHandler {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ShortLinkHandler{
		resolver: resolver,
		baseURL:  baseURL,
		store:    store,
		cache:    cache,
		logger:   logger.Named("handler"),
	}
}

// CreateURLRequest 创建短链接请求
type CreateURLRequest struct {
	OriginalURL string `json:"original_url" binding:"required" example:"https://github.com/gin-gonic/gin"`
}

// CreateCustomRequest 自定义短码请求, expiration 为 RFC3339 时间
type CreateCustomRequest struct {
	OriginalURL     string `json:"original_url" binding:"required" example:"https://github.com/gin-gonic/gin"`
	ShortCode       string `json:"short_code" binding:"required" example:"gin"`
	Expiration      string `json:"expiration" binding:"required" example:"2030-01-01T00:00:00Z"`
	FixedExpiration bool   `json:"fixed_expiration"`
}

// UpdateLinkRequest 修改短链接请求
type UpdateLinkRequest struct {
	OriginalURL string `json:"original_url" example:"https://github.com/gin-gonic/gin"`
	Regenerate  bool   `json:"regenerate"`
}

// LinkResponse 短链接信息
type LinkResponse struct {
	ShortCode       string     `json:"short_code" example:"a1B2c"`
	ShortLink       string     `json:"short_link" example:"http://localhost:8080/a1B2c"`
	OriginalURL     string     `json:"original_url"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	FixedExpiration bool       `json:"fixed_expiration"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error string `json:"error"`
}

func (h *ShortLinkHandler) linkResponse(m *model.URLMapping) LinkResponse {
	return LinkResponse{
		ShortCode:       m.ShortCode,
		ShortLink:       h.baseURL + m.ShortCode,
		OriginalURL:     m.OriginalURL,
		CreatedAt:       m.CreatedAt,
		ExpiresAt:       m.ExpiresAt,
		FixedExpiration: m.FixedExpiration,
	}
}

// HealthCheck godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *ShortLinkHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{"database": "ok", "cache": "ok"}
	status := http.StatusOK
	if err := h.store.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := h.cache.Ping(ctx); err != nil {
		checks["cache"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks, "timestamp": time.Now()})
}

// CreateURL godoc
// @Summary 创建短链接
// @Description 为长 URL 生成短码; 携带令牌时链接归属于调用方
// @Tags ShortLink
// @Accept json
// @Produce json
// @Param request body CreateURLRequest true "长链接 URL"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/url [post]
func (h *ShortLinkHandler) CreateURL(c *gin.Context) {
	var req CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
		return
	}

	m, err := h.resolver.Create(c.Request.Context(), req.OriginalURL, middleware.UserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.linkResponse(m))
}

// CreateCustom godoc
// @Summary 创建自定义短链接
// @Description 指定短码与过期时间; fixed_expiration 为 true 时访问不会顺延过期时间
// @Tags ShortLink
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param request body CreateCustomRequest true "自定义短链接"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Router /api/shorten [post]
func (h *ShortLinkHandler) CreateCustom(c *gin.Context) {
	var req CreateCustomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
		return
	}
	expiresAt, err := time.Parse(time.RFC3339, req.Expiration)
	if err != nil {
		h.fail(c, service.ErrInvalidExpiration)
		return
	}

	m, err := h.resolver.CreateCustom(c.Request.Context(), service.CustomRequest{
		OriginalURL:     req.OriginalURL,
		ShortCode:       req.ShortCode,
		ExpiresAt:       expiresAt,
		FixedExpiration: req.FixedExpiration,
		Owner:           middleware.UserID(c),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.linkResponse(m))
}

// RedirectToOriginal godoc
// @Summary 访问短链接
// @Description 302 跳转到原始 URL; no_redirect=true 时返回 JSON
// @Tags ShortLink
// @Produce json
// @Param code path string true "短码"
// @Param no_redirect query bool false "不跳转"
// @Success 302
// @Success 200 {object} map[string]string
// @Failure 404 {object} ErrorResponse
// @Router /{code} [get]
func (h *ShortLinkHandler) RedirectToOriginal(c *gin.Context) {
	target, err := h.resolver.Resolve(c.Request.Context(), c.Param("code"), true)
	if err != nil {
		h.fail(c, err)
		return
	}

	if noRedirect, _ := strconv.ParseBool(c.Query("no_redirect")); noRedirect {
		c.JSON(http.StatusOK, gin.H{"redirect_url": target})
		return
	}
	c.Redirect(http.StatusFound, target)
}

// GetStats godoc
// @Summary 短链接统计
// @Tags ShortLink
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} service.Stats
// @Failure 404 {object} ErrorResponse
// @Router /{code}/stats [get]
func (h *ShortLinkHandler) GetStats(c *gin.Context) {
	stats, err := h.resolver.Stats(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Search godoc
// @Summary 按原始 URL 查找短链接
// @Tags ShortLink
// @Produce json
// @Param original_url query string true "原始 URL"
// @Success 200 {array} LinkResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/search [get]
func (h *ShortLinkHandler) Search(c *gin.Context) {
	originalURL := c.Query("original_url")
	if originalURL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "缺少 original_url 参数"})
		return
	}

	list, err := h.resolver.Search(c.Request.Context(), originalURL)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]LinkResponse, 0, len(list))
	for i := range list {
		out = append(out, h.linkResponse(&list[i]))
	}
	c.JSON(http.StatusOK, out)
}

// MyURLs godoc
// @Summary 我的短链接
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Param url_type query string false "active 或 expired" default(active)
// @Success 200 {array} service.Listing
// @Failure 400 {object} ErrorResponse
// @Router /api/my_urls [get]
func (h *ShortLinkHandler) MyURLs(c *gin.Context) {
	list, err := h.resolver.List(c.Request.Context(), middleware.UserID(c), c.Query("url_type"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// UpdateLink godoc
// @Summary 修改短链接
// @Description 修改原始 URL, 或 regenerate=true 时重新生成短码; 仅创建者可操作
// @Tags ShortLink
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param code path string true "短码"
// @Param request body UpdateLinkRequest true "修改内容"
// @Success 200 {object} LinkResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [put]
func (h *ShortLinkHandler) UpdateLink(c *gin.Context) {
	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "无效的请求数据: " + err.Error()})
		return
	}
	if req.OriginalURL == "" && !req.Regenerate {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "original_url 与 regenerate 至少提供一个"})
		return
	}

	m, err := h.resolver.Update(c.Request.Context(), c.Param("code"), middleware.UserID(c), service.UpdateRequest{
		OriginalURL: req.OriginalURL,
		Regenerate:  req.Regenerate,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.linkResponse(m))
}

// DeleteLink godoc
// @Summary 删除短链接
// @Description 移入归档表, 仅创建者可操作
// @Tags ShortLink
// @Security ApiKeyAuth
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/links/{code} [delete]
func (h *ShortLinkHandler) DeleteLink(c *gin.Context) {
	code := c.Param("code")
	if _, err := h.resolver.Delete(c.Request.Context(), code, middleware.UserID(c)); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "删除成功", "short_code": code})
}

// statusOf 业务错误到 HTTP 状态码
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExpired):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrCodeAlreadyExists),
		errors.Is(err, service.ErrInvalidExpiration),
		errors.Is(err, service.ErrInvalidURL),
		errors.Is(err, service.ErrInvalidCode),
		errors.Is(err, service.ErrInvalidListKind):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrTransientStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *ShortLinkHandler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s 失败: %v", c.Request.Method, c.Request.URL.Path, err)
		if errors.Is(err, service.ErrTransientStore) {
			msg = service.ErrTransientStore.Error()
		}
	}
	c.JSON(status, ErrorResponse{Error: msg})
}
