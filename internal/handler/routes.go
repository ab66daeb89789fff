package handler

import "github.com/gin-gonic/gin"

// RegisterRoutes 注册短链接相关路由
// requireAuth 用于只允许登录用户的接口, optionalAuth 用于匿名也可访问但需识别调用方的接口
func (h *ShortLinkHandler) RegisterRoutes(router gin.IRouter, requireAuth, optionalAuth gin.HandlerFunc) {
	router.GET("/health", h.HealthCheck)
	router.GET("/:code", h.RedirectToOriginal)
	router.GET("/:code/stats", h.GetStats)

	api := router.Group("/api")
	{
		api.GET("/search", h.Search)
		api.POST("/url", optionalAuth, h.CreateURL)
	}

	authed := api.Group("")
	authed.Use(requireAuth)
	{
		authed.POST("/shorten", h.CreateCustom)
		authed.GET("/my_urls", h.MyURLs)
		authed.PUT("/links/:code", h.UpdateLink)
		authed.DELETE("/links/:code", h.DeleteLink)
	}
}
