package api

import (
	"strings"
)

// bearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func bearerToken(authHeader string) (string, bool) {
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
