// Package middleware 提供 HTTP 请求的中间件
package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware 创建 CORS 跨域中间件
// 参数:
//   - allowOrigins: 允许的来源列表，为空时允许所有来源（仅适合开发环境）
//
// 返回:
//   - gin.HandlerFunc: Gin 中间件函数
func CORSMiddleware(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
		},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}

	if len(allowOrigins) == 0 {
		// 允许携带凭据时不能用 *，退回按来源回显
		cfg.AllowOriginFunc = func(origin string) bool { return true }
	} else {
		cfg.AllowOrigins = allowOrigins
	}

	return cors.New(cfg)
}
