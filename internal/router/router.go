package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"helpdesk-autoreply/internal/handler"
)

// SetupRouter configures the Gin router with routes and middleware
func SetupRouter(h *handler.Handlers) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(loggerMiddleware())
	h.SetupRoutes(r)
	return r
}

// loggerMiddleware writes one access line per request; the reviewer is included when authenticated
func loggerMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		reviewer, _ := param.Keys["reviewer"].(string)
		if reviewer == "" {
			reviewer = "-"
		}
		return fmt.Sprintf("%s %s [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			reviewer,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	})
}
