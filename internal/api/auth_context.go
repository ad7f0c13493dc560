package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/seedhypermedia/wxr-importer/internal/auth"
)

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// operatorKey is the context key for the token's operator.
const operatorKey ctxKey = "operator"

// GetOperator returns the authenticated operator from context.
// Returns 401 error if the request carried no valid token.
func GetOperator(ctx context.Context) (string, error) {
	operator, ok := ctx.Value(operatorKey).(string)
	if !ok || operator == "" {
		return "", huma.Error401Unauthorized("Authentication required")
	}
	return operator, nil
}

// setOperator stores the operator in context.
func setOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey, operator)
}

// authMiddleware returns a middleware that validates Bearer tokens and stores the operator in context.
// If no token is present or invalid, continues without an operator in context.
// Handlers use GetOperator to check authentication.
func authMiddleware(tokens *auth.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifyAPIToken(token)
			if err != nil {
				// Invalid token - continue without operator (handler will reject)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(setOperator(r.Context(), claims.Operator)))
		})
	}
}
