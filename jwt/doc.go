// Package jwt issues and verifies short-lived access tokens.
//
// A [Manager] is built once from key material and then only signs and checks
// tokens; it performs no I/O and keeps no per-token state. Clock skew leeway
// applies to the exp/iat checks and nothing else.
package jwt
