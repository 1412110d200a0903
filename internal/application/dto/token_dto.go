package dto

import (
	"github.com/golang-jwt/jwt/v5"
)

// GenerateTokenRequest is the body of POST /api/v1/tokens.
type GenerateTokenRequest struct {
	// Claims are merged into the token; iat, exp and iss are set by the
	// service and cannot be overridden here.
	Claims map[string]interface{} `json:"claims"`

	// TTLSeconds overrides the default token lifetime when positive.
	TTLSeconds int `json:"ttl_seconds,omitempty" binding:"omitempty,min=1"`

	// Issuer overrides the default issuer when set.
	Issuer string `json:"issuer,omitempty"`
}

// TokenResponse carries a freshly signed token.
type TokenResponse struct {
	Token string `json:"token"`
}

// VerifyTokenRequest is the body of POST /api/v1/tokens/verify.
type VerifyTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// VerifyTokenResponse reports a successful verification.
type VerifyTokenResponse struct {
	Valid    bool          `json:"valid"`
	KeyID    string        `json:"key_id"`
	Fallback bool          `json:"fallback"`
	Claims   jwt.MapClaims `json:"claims"`
}
