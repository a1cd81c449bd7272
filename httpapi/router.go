package httpapi

import (
	"github.com/MrEthical07/goSession/middleware"
	"github.com/gin-gonic/gin"
)

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger)
	s.Register(r)
	return r
}

// Register mounts the routes on r.
func (s *Server) Register(r gin.IRouter) {
	user := r.Group("/api/user")
	{
		user.POST("/login", s.Login)
		user.GET("/me", s.requireAccess, s.Me)
	}

	auth := r.Group("/api/auth")
	{
		auth.POST("/refresh", s.Refresh)
		auth.POST("/logout", s.Logout)
	}

	if s.opts.History != nil {
		r.POST("/api/chat/messages/private/getMessage", s.requireAccess, s.PrivateMessages)
	}
	if s.opts.Chat != nil {
		guard := middleware.Guard(s.sessions, middleware.Options{QueryParam: "token"})
		r.GET("/ws/chat", gin.WrapH(guard(s.opts.Chat)))
	}
	if s.opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.opts.Metrics))
	}
	r.GET("/healthz", s.Health)
}
