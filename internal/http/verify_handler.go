package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"leech-bot/internal/service"
)

// VerifiedNotifier avisa al usuario por el chat cuando verifica desde la web.
type VerifiedNotifier interface {
	NotifyVerified(ctx context.Context, userID int64)
}

// VerifyHandler resuelve tokens que vuelven por el callback web del shortlink.
type VerifyHandler struct {
	logger   *zap.Logger
	resolver *service.VerificationResolver
	notifier VerifiedNotifier
}

func NewVerifyHandler(logger *zap.Logger, resolver *service.VerificationResolver, notifier VerifiedNotifier) *VerifyHandler {
	return &VerifyHandler{
		logger:   logger,
		resolver: resolver,
		notifier: notifier,
	}
}

const verifyPageName = "verify_confirm"

// La página no consume el token: solo el POST del botón lo hace, así los
// crawlers que precargan el link no verifican a nadie.
var verifyPageTemplate = template.Must(template.New(verifyPageName).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><meta name="robots" content="noindex"><title>Verify your account</title></head>
<body>
<h1>Almost done</h1>
<p>Press the button to verify your Telegram account.</p>
<form method="post" action="/verify/{{.Token}}"><button type="submit">Verify Now</button></form>
</body>
</html>`))

// Confirm maneja GET /verify/:token y solo muestra el botón de confirmación.
func (h *VerifyHandler) Confirm(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, verifyPageName, gin.H{"Token": c.Param("token")})
}

// Verify maneja POST /verify/:token.
func (h *VerifyHandler) Verify(c *gin.Context) {
	tok, err := h.resolver.Resolve(c.Request.Context(), c.Param("token"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTokenNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "verification token not found"})
		case errors.Is(err, service.ErrTokenExpired):
			c.JSON(http.StatusGone, gin.H{"error": "verification token expired"})
		case errors.Is(err, service.ErrTokenAlreadyConsumed):
			c.JSON(http.StatusConflict, gin.H{"error": "verification token already used"})
		default:
			h.logger.Error("web verification failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "please try again later"})
		}
		return
	}

	if h.notifier != nil {
		h.notifier.NotifyVerified(c.Request.Context(), tok.UserID)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "verified",
		"user_id": tok.UserID,
		"message": "Your account has been verified. Go back to the bot and continue.",
	})
}
