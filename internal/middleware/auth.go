// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"org-authority-go/internal/model"
	"org-authority-go/pkg/log"
	"org-authority-go/pkg/token"
	"strings"

	"github.com/gin-gonic/gin"
)

// 上下文中保存调用方信息的键。
const (
	ContextActor     = "actor"
	ContextCompanyID = "companyID"
	ContextClaims    = "claims"
)

// TenantHeader 可由网关附带，用于校验调用方没有越租户访问。
const TenantHeader = "X-Company-ID"

// AuthMiddleware 创建一个 Gin 中间件，用于 JWT 认证。
// 它会从请求头中提取 token，验证其有效性，并把调用方与租户存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "请求未包含授权头")
			return
		}

		// Token 以 "Bearer <token>" 的形式提供
		const bearerPrefix = "Bearer "
		if !strings.HasPrefix(authHeader, bearerPrefix) {
			abort(c, http.StatusUnauthorized, "无效的授权头格式")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnf("[AuthMiddleware] token 校验失败, path: %s, error: %v", c.Request.URL.Path, err)
			abort(c, http.StatusUnauthorized, "无效或已过期的 token")
			return
		}

		if tenant := c.GetHeader(TenantHeader); tenant != "" && tenant != claims.CompanyID {
			log.Warnf("[AuthMiddleware] 租户不匹配, userId: %s, token 租户: %s, 请求租户: %s", claims.UserID, claims.CompanyID, tenant)
			abort(c, http.StatusForbidden, "无权访问该租户")
			return
		}

		c.Set(ContextActor, model.Actor{UserID: claims.UserID, Name: claims.Name, Email: claims.Email})
		c.Set(ContextCompanyID, claims.CompanyID)
		c.Set(ContextClaims, claims)

		c.Next()
	}
}

// ActorFrom 返回 AuthMiddleware 写入的调用方。
func ActorFrom(c *gin.Context) model.Actor {
	v, _ := c.Get(ContextActor)
	actor, _ := v.(model.Actor)
	return actor
}

// CompanyFrom 返回 AuthMiddleware 写入的租户 ID。
func CompanyFrom(c *gin.Context) string {
	return c.GetString(ContextCompanyID)
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "message": message, "data": nil})
}
