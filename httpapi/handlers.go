package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/gin-gonic/gin"
)

const accessTokenHeader = "New-Access-Token"

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

func (s *Server) requestContext(c *gin.Context) context.Context {
	return goSession.WithClientIP(c.Request.Context(), c.ClientIP())
}

// Login accepts, in order: a valid bearer access token, a refresh cookie,
// then a credential body. A rejected cookie falls through to credentials
// when a body is present.
func (s *Server) Login(c *gin.Context) {
	ctx := s.requestContext(c)

	if token, found := middleware.TokenFromRequest(c.Request, ""); found {
		if res, err := s.sessions.Validate(ctx, token); err == nil {
			c.Header(accessTokenHeader, token)
			ok(c, s.userInfo(res.UserID, ""))
			return
		}
	}

	hasBody := c.Request.ContentLength != 0
	if rt, found := refreshCookie(c, s.opts.Cookie); found {
		pair, err := s.sessions.Refresh(ctx, rt)
		switch {
		case err == nil:
			s.writePair(c, pair)
			ok(c, s.userInfo(pair.UserID, ""))
			return
		case errors.Is(err, goSession.ErrStoreUnavailable):
			unavailable(c)
			return
		case goSession.IsRefreshRejection(err) && hasBody:
			clearRefreshCookie(c, s.opts.Cookie)
		default:
			s.refreshError(c, err)
			return
		}
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := s.sessions.Login(ctx, goSession.Credentials{
		UsernameOrEmail: req.UsernameOrEmail,
		Password:        req.Password,
	})
	switch {
	case err == nil:
	case errors.Is(err, goSession.ErrAuthFailed):
		fail(c, http.StatusUnauthorized, msgUnauthorized)
		return
	case errors.Is(err, goSession.ErrLoginRateLimited):
		fail(c, http.StatusTooManyRequests, msgRateLimited)
		return
	case errors.Is(err, goSession.ErrStoreUnavailable):
		unavailable(c)
		return
	default:
		s.logger.Error("login failed", "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}

	s.writePair(c, &res.TokenPair)
	ok(c, s.userInfo(res.User.UserID, res.User.Username))
}

// Refresh rotates the refresh cookie. Any rejection clears the cookie; a
// store outage leaves it in place so the client can retry.
func (s *Server) Refresh(c *gin.Context) {
	if !s.originAllowed(c.Request) {
		fail(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	rt, found := refreshCookie(c, s.opts.Cookie)
	if !found {
		clearRefreshCookie(c, s.opts.Cookie)
		fail(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	pair, err := s.sessions.Refresh(s.requestContext(c), rt)
	if err != nil {
		s.refreshError(c, err)
		return
	}

	s.writePair(c, pair)
	ok(c, AccessTokenData{AccessToken: pair.AccessToken})
}

func (s *Server) refreshError(c *gin.Context, err error) {
	switch {
	case goSession.IsRefreshRejection(err):
		clearRefreshCookie(c, s.opts.Cookie)
		fail(c, http.StatusUnauthorized, msgUnauthorized)
	case errors.Is(err, goSession.ErrStoreUnavailable):
		unavailable(c)
	default:
		s.logger.Error("refresh failed", "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
	}
}

// Logout revokes the cookie's chain and blacklists a presented access token.
func (s *Server) Logout(c *gin.Context) {
	rt, _ := refreshCookie(c, s.opts.Cookie)
	access, _ := middleware.TokenFromRequest(c.Request, "")

	if err := s.sessions.Logout(s.requestContext(c), rt, access); err != nil {
		if errors.Is(err, goSession.ErrStoreUnavailable) {
			unavailable(c)
			return
		}
		s.logger.Error("logout failed", "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}

	clearRefreshCookie(c, s.opts.Cookie)
	c.Status(http.StatusNoContent)
}

// Me returns the authenticated user.
func (s *Server) Me(c *gin.Context) {
	ok(c, s.userInfo(middleware.UserIDFromContext(c.Request.Context()), ""))
}

type privateMessagesRequest struct {
	FriendID string `json:"friendId" binding:"required"`
	Page     int    `json:"page"`
}

// PrivateMessages returns one page of the caller's conversation with friendId.
func (s *Server) PrivateMessages(c *gin.Context) {
	var req privateMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, msgBadRequest)
		return
	}
	userID := middleware.UserIDFromContext(c.Request.Context())
	msgs, err := s.opts.History.ListPrivate(c.Request.Context(), userID, req.FriendID, req.Page)
	if err != nil {
		s.logger.Error("list private messages failed", "user_id", userID, "error", err)
		fail(c, http.StatusInternalServerError, msgInternal)
		return
	}
	ok(c, MessagesData{Messages: msgs})
}

// Health pings the refresh store.
func (s *Server) Health(c *gin.Context) {
	if err := s.sessions.Ping(c.Request.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		unavailable(c)
		return
	}
	ok(c, gin.H{"status": "ok"})
}

func (s *Server) writePair(c *gin.Context, pair *goSession.TokenPair) {
	setRefreshCookie(c, s.opts.Cookie, pair.RefreshToken, pair.RefreshExpiresAt, s.now())
	c.Header(accessTokenHeader, pair.AccessToken)
}

func (s *Server) userInfo(userID, username string) UserInfo {
	if username == "" && s.opts.Users != nil {
		username = s.opts.Users.Username(userID)
	}
	return UserInfo{UserID: userID, Username: username}
}

// requireAccess adapts the bearer guard to gin.
func (s *Server) requireAccess(c *gin.Context) {
	token, found := middleware.TokenFromRequest(c.Request, "")
	if !found {
		fail(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	res, err := s.sessions.Validate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, goSession.ErrStoreUnavailable) {
			unavailable(c)
			return
		}
		fail(c, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	c.Request = c.Request.WithContext(middleware.WithAuthResult(c.Request.Context(), res))
	c.Next()
}

// requestLogger logs one line per request. Query strings are dropped since
// the chat handshake carries a token there.
func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Info("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
		"ip", c.ClientIP(),
	)
}
