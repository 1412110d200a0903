package models

import "time"

// HealthReport is the rotation-subsystem health summary exposed by the admin
// surface. Issues mean the subsystem cannot do its job; warnings mean it can
// but an operator should look.
type HealthReport struct {
	Healthy   bool      `json:"healthy"`
	Issues    []string  `json:"issues"`
	Warnings  []string  `json:"warnings"`
	CheckedAt time.Time `json:"checked_at"`
}

// Known issue and warning strings. The admin API contract names these.
const (
	IssueNoActiveKey      = "no active key"
	IssueActiveKeyExpired = "active key expired"
	IssueNoValidKeys      = "no valid keys available"

	WarningActiveKeyExpiringSoon = "active key expires within 7 days"
	WarningCacheStale            = "cache stale"
)
