package middleware

import (
	"errors"
	"net/http"
	"strings"

	auth "fastlink/pkg/jwt"

	"github.com/gin-gonic/gin"
)

// ContextUserID 认证通过后存入上下文的用户标识
const ContextUserID = "user_id"

// AuthMiddleware JWT认证中间件, 缺少或无效的令牌返回 401
func AuthMiddleware(jwtManager *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
			c.Abort()
			return
		}

		claims, err := parseBearer(jwtManager, authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		// 将用户信息存入上下文
		c.Set(ContextUserID, claims.UserID)
		c.Set("username", claims.Username)
		c.Set("role", claims.Role)

		c.Next()
	}
}

// OptionalAuthMiddleware 有令牌时校验并写入用户信息, 没有令牌时按匿名调用方处理
func OptionalAuthMiddleware(jwtManager *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		claims, err := parseBearer(jwtManager, authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

// UserID 返回当前调用方, 匿名时为空字符串
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

var (
	errBadScheme    = errors.New("认证格式错误")
	errInvalidToken = errors.New("无效的认证令牌")
)

func parseBearer(jwtManager *auth.TokenManager, header string) (*auth.Claims, error) {
	// 提取Bearer token
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, errBadScheme
	}
	claims, err := jwtManager.ValidateToken(parts[1])
	if err != nil || claims.UserID == "" {
		return nil, errInvalidToken
	}
	return claims, nil
}
