// Package middleware provides net/http access token guards.
//
// [Guard] reads a bearer token (or, optionally, a query parameter), calls
// Validate and stores the [goSession.AuthResult] in the request context.
//
// # Architecture boundaries
//
// The guard never touches refresh tokens or cookies. Refresh handling belongs
// to package httpapi.
//
// # What this package must NOT do
//
//   - Distinguish rejection reasons in responses.
//   - Log tokens.
package middleware
