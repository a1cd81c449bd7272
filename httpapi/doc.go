// Package httpapi exposes the session engine over HTTP with gin.
//
// Routes:
//
//	POST /api/user/login    credentials, bearer token or refresh cookie
//	POST /api/auth/refresh  rotates the refresh cookie
//	POST /api/auth/logout   revokes the chain and clears the cookie
//	GET  /api/user/me       bearer protected
//	POST /api/chat/messages/private/getMessage
//	                        bearer protected history page, when configured
//	GET  /ws/chat           chat gateway upgrade, when configured
//	GET  /metrics           Prometheus text, when configured
//	GET  /healthz           store ping
//
// Access tokens travel in the New-Access-Token response header. Refresh
// tokens only ever travel in an HttpOnly cookie.
//
// # What this package must NOT do
//
//   - Tell clients why a refresh token was rejected. Every rejection is the
//     same 401 body.
//   - Log raw tokens.
package httpapi
