// Package constants defines system-wide constants for the crewbill key service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Key Status Constants
// ================================================================================

// KeyStatus represents the lifecycle status of a signing key
type KeyStatus string

const (
	// KeyStatusActive indicates the key currently used to sign newly issued tokens.
	// At most one key is active at any instant.
	KeyStatusActive KeyStatus = "active"

	// KeyStatusValid indicates a key no longer used for signing but still
	// accepted when verifying previously issued tokens (grace period)
	KeyStatusValid KeyStatus = "valid"

	// KeyStatusRevoked indicates a key permanently rejected for both signing
	// and verification. Terminal: no key ever leaves this status.
	KeyStatusRevoked KeyStatus = "revoked"
)

// ================================================================================
// Rotation Type Constants
// ================================================================================

// RotationType records the provenance of a signing key
type RotationType string

const (
	// RotationTypeInitial marks a key created by the self-healing initializer
	RotationTypeInitial RotationType = "initial"

	// RotationTypeAutomatic marks a key created by the scheduled rotation timer
	RotationTypeAutomatic RotationType = "automatic"

	// RotationTypeManual marks a key created by an admin-triggered rotation
	RotationTypeManual RotationType = "manual"

	// RotationTypeEmergency marks a key created by an emergency rotation,
	// which revokes every previously issued key
	RotationTypeEmergency RotationType = "emergency"
)

// ================================================================================
// Signing Algorithm Constants
// ================================================================================

// SigningAlgorithm represents the HMAC algorithm used for token signing
type SigningAlgorithm string

const (
	// AlgorithmHS256 represents HMAC with SHA-256 (default)
	AlgorithmHS256 SigningAlgorithm = "HS256"

	// AlgorithmHS384 represents HMAC with SHA-384
	AlgorithmHS384 SigningAlgorithm = "HS384"

	// AlgorithmHS512 represents HMAC with SHA-512
	AlgorithmHS512 SigningAlgorithm = "HS512"
)

// DefaultSigningAlgorithm is the algorithm used when none is configured
const DefaultSigningAlgorithm = AlgorithmHS256

// ================================================================================
// Key Lifecycle Defaults
// ================================================================================

const (
	// MinSecretLength is the minimum accepted length for key secret material
	MinSecretLength = 32

	// DefaultKeyLifetime is the default expiry horizon for newly created keys (90 days)
	DefaultKeyLifetime = 90 * 24 * time.Hour

	// DefaultRotationInterval is the default automatic rotation cadence (30 days)
	DefaultRotationInterval = 30 * 24 * time.Hour

	// MinRotationInterval is the floor for the automatic rotation cadence;
	// configured values below it are clamped (1 day)
	MinRotationInterval = 24 * time.Hour

	// DefaultCacheTTL is the maximum staleness tolerated by the in-process
	// key cache before it refreshes from the store (5 minutes)
	DefaultCacheTTL = 5 * time.Minute

	// DefaultRetentionWindow is how long revoked key records are kept before
	// the cleanup timer deletes them (180 days)
	DefaultRetentionWindow = 180 * 24 * time.Hour

	// CleanupInterval is the cadence of the retention cleanup timer
	CleanupInterval = 24 * time.Hour

	// ExpiryWarningWindow is how close to expiry the active key may get
	// before the health check raises a warning (7 days)
	ExpiryWarningWindow = 7 * 24 * time.Hour

	// DefaultFallbackTolerance bounds how long the token service may keep
	// serving from the static fallback secret before it hard-fails
	DefaultFallbackTolerance = time.Hour
)

// ================================================================================
// Rotation Retry Constants
// ================================================================================

const (
	// RotationMaxRetries is the number of attempts made against transient
	// store write conflicts before a rotation is surfaced as failed
	RotationMaxRetries = 3

	// RotationRetryBackoff is the linear backoff unit between rotation
	// retries (250ms x attempt)
	RotationRetryBackoff = 250 * time.Millisecond
)

// ================================================================================
// Revocation Reason Constants
// ================================================================================

const (
	// RevocationReasonExpired is recorded when the expiry sweep revokes a key
	RevocationReasonExpired = "expired active key auto-revoked"

	// RevocationReasonEmergency prefixes the operator-supplied reason on
	// emergency rotations
	RevocationReasonEmergency = "emergency rotation"

	// RevocationReasonRotationSweep is recorded when a normal rotation sweeps
	// an already-expired record
	RevocationReasonRotationSweep = "expired key swept during rotation"
)

// ================================================================================
// Actor Constants
// ================================================================================

const (
	// ActorSystem identifies keys created by the service itself
	// (initializer and scheduler) rather than by an administrator
	ActorSystem = "system"
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType categorizes emitted audit events
type AuditEventType string

const (
	// AuditEventKeyRotated is emitted after a successful normal rotation
	AuditEventKeyRotated AuditEventType = "key_rotated"

	// AuditEventEmergencyRotation is emitted after an emergency rotation;
	// monitoring must be able to tell it apart from a normal rotation
	AuditEventEmergencyRotation AuditEventType = "emergency_rotation"

	// AuditEventKeyRevoked is emitted when a single key is revoked by an admin
	AuditEventKeyRevoked AuditEventType = "key_revoked"

	// AuditEventKeyActivated is emitted when a valid key is promoted by an admin
	AuditEventKeyActivated AuditEventType = "key_activated"

	// AuditEventSelfHeal is emitted when the initializer had to repair state
	AuditEventSelfHeal AuditEventType = "key_self_heal"

	// AuditEventRetentionCleanup is emitted after revoked records are deleted
	AuditEventRetentionCleanup AuditEventType = "key_retention_cleanup"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type used for values stored in request contexts
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyActor carries the authenticated admin identity, when present
	ContextKeyActor ContextKey = "actor"
)

// ================================================================================
// Log Level Constants
// ================================================================================

// LogLevel represents the severity level of log messages
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)
