package dto

import (
	"github.com/crewbill/keysvc/internal/domain/models"
)

// RotateKeyRequest is the body of POST /keys/rotate. All fields are optional.
type RotateKeyRequest struct {
	// LifetimeDays overrides the configured key lifetime when positive.
	LifetimeDays int `json:"lifetime_days,omitempty" binding:"omitempty,min=1,max=3650"`

	// CreatedBy identifies the admin triggering the rotation.
	CreatedBy string `json:"created_by,omitempty"`
}

// EmergencyRotateRequest is the body of POST /keys/emergency-rotate.
type EmergencyRotateRequest struct {
	// Reason is mandatory; emergency rotations are always audited with one.
	Reason string `json:"reason" binding:"required"`

	LifetimeDays int    `json:"lifetime_days,omitempty" binding:"omitempty,min=1,max=3650"`
	CreatedBy    string `json:"created_by,omitempty"`
}

// RevokeKeyRequest is the body of POST /keys/:key_id/revoke.
type RevokeKeyRequest struct {
	// Reason defaults to a generic administrative reason when omitted.
	Reason string `json:"reason,omitempty"`
}

// KeyListResponse wraps a key listing. Secrets are redacted before the keys
// reach this layer.
type KeyListResponse struct {
	Keys  []*models.SigningKey `json:"keys"`
	Count int                  `json:"count"`
}

// CleanupResponse reports how many revoked records the retention sweep
// deleted.
type CleanupResponse struct {
	Deleted int64 `json:"deleted"`
}
