package models

import (
	"time"

	"github.com/crewbill/keysvc/pkg/constants"
)

// RotationOptions parameterizes a rotation.
type RotationOptions struct {
	// RotationType records the provenance of the new key; defaults to manual.
	RotationType constants.RotationType

	// KeyLifetimeDays overrides the configured key lifetime when positive.
	KeyLifetimeDays int

	// CreatedBy identifies the actor triggering the rotation; defaults to
	// the system actor.
	CreatedBy string
}

// RotationResult reports the outcome of a completed rotation.
type RotationResult struct {
	// NewKey is the freshly activated key, secret redacted.
	NewKey *SigningKey `json:"new_key"`

	// PreviousKey is the demoted (or, for emergency rotation, revoked)
	// prior active key, if one existed. Secret redacted.
	PreviousKey *SigningKey `json:"previous_key,omitempty"`

	// RevokedCount is how many records the rotation revoked: the expiry
	// sweep for normal rotations, everything non-revoked for emergencies.
	RevokedCount int64 `json:"revoked_count"`
}

// RotationEvent is the structured event emitted for monitoring after every
// rotation, admin revoke/activate, self-heal repair and retention cleanup.
type RotationEvent struct {
	EventID      string                   `json:"event_id"`
	EventType    constants.AuditEventType `json:"event_type"`
	NewKeyID     string                   `json:"new_key_id,omitempty"`
	PreviousKeyID string                  `json:"previous_key_id,omitempty"`
	RotationType constants.RotationType   `json:"rotation_type,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
	Actor        string                   `json:"actor,omitempty"`
	OccurredAt   time.Time                `json:"occurred_at"`
}
