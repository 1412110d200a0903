// Package models contains the domain entities of the key service.
package models

import (
	"time"

	"github.com/crewbill/keysvc/pkg/constants"
)

// SigningKey is the durable record of one symmetric signing key and its
// lifecycle state. It is mutated only by the rotation coordinator and the
// explicit admin revoke/activate operations; the retention sweep is the only
// deletion path.
type SigningKey struct {
	// KeyID is the opaque unique identifier, immutable once created.
	KeyID string `gorm:"column:key_id;primaryKey" json:"key_id"`

	// Secret is the symmetric secret material. It is never serialized and
	// never returned by any read API.
	Secret string `gorm:"column:secret_material" json:"-"`

	// Status is the lifecycle state: active, valid or revoked.
	Status constants.KeyStatus `gorm:"column:status;index:idx_signing_keys_status_expiry" json:"status"`

	// Algorithm is the HMAC variant used to sign tokens with this key.
	Algorithm constants.SigningAlgorithm `gorm:"column:algorithm" json:"algorithm"`

	// CreatedAt is when the record was inserted.
	CreatedAt time.Time `gorm:"column:created_at;index:idx_signing_keys_created,sort:desc" json:"created_at"`

	// ActivatedAt is when the key last became the active signing key.
	ActivatedAt *time.Time `gorm:"column:activated_at" json:"activated_at,omitempty"`

	// DeactivatedAt is when the key was demoted from active to valid.
	DeactivatedAt *time.Time `gorm:"column:deactivated_at" json:"deactivated_at,omitempty"`

	// ExpiresAt is the hard end of the key's verification eligibility.
	ExpiresAt time.Time `gorm:"column:expires_at;index:idx_signing_keys_status_expiry" json:"expires_at"`

	// RevokedAt is when the key entered the terminal revoked state.
	RevokedAt *time.Time `gorm:"column:revoked_at" json:"revoked_at,omitempty"`

	// RevocationReason records why the key was revoked.
	RevocationReason *string `gorm:"column:revocation_reason" json:"revocation_reason,omitempty"`

	// RotationType records the key's provenance: initial, automatic,
	// manual or emergency.
	RotationType constants.RotationType `gorm:"column:rotation_type" json:"rotation_type"`

	// CreatedBy is the actor that caused the key to exist: "system" or an
	// admin identity.
	CreatedBy string `gorm:"column:created_by" json:"created_by"`
}

// TableName sets the GORM table name.
func (SigningKey) TableName() string {
	return "signing_keys"
}

// IsExpired reports whether the key's expiry has elapsed at the given instant.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return !k.ExpiresAt.After(now)
}

// VerificationEligible reports whether tokens may still be verified against
// this key: active or valid, and unexpired. Expired valid records are excluded
// even before the sweep moves them to revoked.
func (k *SigningKey) VerificationEligible(now time.Time) bool {
	if k.Status != constants.KeyStatusActive && k.Status != constants.KeyStatusValid {
		return false
	}
	return !k.IsExpired(now)
}

// Redacted returns a copy safe for read APIs: secret material blanked.
func (k *SigningKey) Redacted() *SigningKey {
	c := *k
	c.Secret = ""
	return &c
}
