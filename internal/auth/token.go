package auth

import (
	"net/http"
	"strings"
)

// TokenCookie carries the operator JWT for browser-based consoles.
const TokenCookie = "operator_token"

// ExtractAccessToken returns the operator token from the cookie, falling
// back to a Bearer Authorization header.
func ExtractAccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(TokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	return ""
}
