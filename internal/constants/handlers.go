// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultAuditLimit is the default number of audit records returned
	DefaultAuditLimit = 50

	// MaxAuditLimit caps the number of audit records per request
	MaxAuditLimit = 500
)

// File upload constants
const (
	// MaxUploadSize is the maximum file upload size in bytes (32MB)
	MaxUploadSize = 32 << 20
)

// Banner is the message returned by the root endpoint
const Banner = "Neural Scan API v2.0 Running"
