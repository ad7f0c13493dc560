package auth

import (
	"time"
)

// APIClaims are the claims carried by an API token.
// They are encrypted in v4.local tokens, so they're not readable without the key.
type APIClaims struct {
	// Operator names who the token was issued to, for logs.
	Operator string `json:"operator"`

	// Standard PASETO claims
	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
