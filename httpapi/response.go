package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/gateway"
	"github.com/gin-gonic/gin"
)

// Envelope is the JSON body of every API response.
type Envelope struct {
	IsSuccess bool      `json:"isSuccess"`
	Code      int       `json:"code"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserInfo is returned by login and me.
type UserInfo struct {
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// AccessTokenData is returned by refresh.
type AccessTokenData struct {
	AccessToken string `json:"accessToken"`
}

// MessagesData is returned by the history endpoint.
type MessagesData struct {
	Messages []gateway.Message `json:"messages"`
}

const (
	msgSuccess      = "success"
	msgBadRequest   = "bad request"
	msgUnauthorized = "unauthorized"
	msgRateLimited  = "too many requests"
	msgUnavailable  = "service unavailable"
	msgInternal     = "internal error"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Envelope{
		IsSuccess: true,
		Code:      http.StatusOK,
		Message:   msgSuccess,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, Envelope{
		Code:      status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func unavailable(c *gin.Context) {
	c.Header("Retry-After", "1")
	fail(c, http.StatusServiceUnavailable, msgUnavailable)
}
