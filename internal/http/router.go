package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas base.
func NewRouter(
	logger *zap.Logger,
	healthH *HealthHandler,
	verifyH *VerifyHandler,
	adminH *AdminHandler,
	adminAuth gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(verifyPageTemplate)

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/", healthH.Health)
	r.GET("/health", healthH.Health)

	r.GET("/verify/:token", verifyH.Confirm)
	r.POST("/verify/:token", verifyH.Verify)

	admin := r.Group("/admin", adminAuth)
	admin.GET("/stats", adminH.Stats)
	admin.GET("/users/:id", adminH.UserStats)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
// El path de /verify lleva el token, por eso se loguea la ruta registrada.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("route", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
