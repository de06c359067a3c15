package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/undercover-game/internal/errors"
	"github.com/wfunc/undercover-game/internal/logger"
	"github.com/wfunc/undercover-game/internal/utils"
	"go.uber.org/zap"
)

const claimsKey = "playerClaims"

// TokenValidator 玩家令牌校验，由 utils.TokenManager 实现
type TokenValidator interface {
	ValidateToken(token string) (*utils.PlayerClaims, error)
}

// AuthMiddleware 玩家令牌认证中间件
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware 创建认证中间件
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// RequirePlayer 需要有效玩家令牌
func (m *AuthMiddleware) RequirePlayer() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := m.tokens.ValidateToken(extractToken(c))
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// extractToken 从请求中提取令牌
func extractToken(c *gin.Context) string {
	// 1. Authorization: Bearer
	bearerToken := c.GetHeader("Authorization")
	if bearerToken != "" {
		parts := strings.Split(bearerToken, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}

	// 2. X-Access-Token
	if token := c.GetHeader("X-Access-Token"); token != "" {
		return token
	}

	// 3. 浏览器的WebSocket无法设置请求头，只能走查询参数
	return c.Query("token")
}

// GetPlayer 从上下文获取玩家令牌信息
func GetPlayer(c *gin.Context) (*utils.PlayerClaims, bool) {
	if v, exists := c.Get(claimsKey); exists {
		if claims, ok := v.(*utils.PlayerClaims); ok {
			return claims, true
		}
	}
	return nil, false
}

// AbortWithError 按错误码写出错误响应并中止
func AbortWithError(c *gin.Context, err error) {
	appErr, ok := apperrors.As(err)
	if !ok {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	if apperrors.IsCritical(appErr) {
		logger.Error("严重错误",
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(RequestIDKey)),
			zap.Error(appErr),
			zap.String("stack", appErr.GetStack()))
	}

	// 调用栈不返回给客户端
	resp := *appErr
	resp.Stack = nil
	c.AbortWithStatusJSON(appErr.HTTPStatus(), apperrors.NewErrorResponse(&resp, c.GetString(RequestIDKey)))
}
