package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenOptions parameterizes token generation.
type TokenOptions struct {
	// TTL is the token lifetime; a zero value falls back to the service
	// default.
	TTL time.Duration

	// Issuer overrides the configured issuer claim when non-empty.
	Issuer string
}

// VerifiedToken is the result of a successful verification.
type VerifiedToken struct {
	// Claims are the token's claims as verified.
	Claims jwt.MapClaims

	// KeyID identifies the signing key that verified the token.
	KeyID string

	// Fallback is true when verification succeeded only against the static
	// fallback secret because the rotation subsystem was unavailable.
	// Callers may treat such results with reduced trust.
	Fallback bool
}
