package httpapi

import (
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/gin-gonic/gin"
)

func refreshCookie(c *gin.Context, cfg goSession.CookieConfig) (string, bool) {
	v, err := c.Cookie(cfg.Name)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}

func setRefreshCookie(c *gin.Context, cfg goSession.CookieConfig, token string, expiresAt, now time.Time) {
	maxAge := int(expiresAt.Sub(now) / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.Name,
		Value:    token,
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}

func clearRefreshCookie(c *gin.Context, cfg goSession.CookieConfig) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.Name,
		Value:    "",
		Path:     cfg.Path,
		Domain:   cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	})
}
