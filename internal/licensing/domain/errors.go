package domain

import "errors"

// Machine-discriminable reason codes carried on invalid results.
const (
	ReasonMissingKey    = "missing_key"
	ReasonInvalidKey    = "invalid_license"
	ReasonDeviceLimit   = "device_limit_reached"
	ReasonQuotaExceeded = "quota_exceeded"
	ReasonUnavailable   = "authority_unavailable"
)

var (
	// ErrLicenseNotFound marks a lookup against an unknown or inactive key.
	ErrLicenseNotFound = errors.New("license not found")
	// ErrQuotaExceeded marks an exhausted daily credit allowance.
	ErrQuotaExceeded = errors.New("daily credit limit reached")
	// ErrAuthorityUnavailable marks an unreachable or timed-out license
	// authority. Gating decisions fail closed on this error.
	ErrAuthorityUnavailable = errors.New("license authority unavailable")
)
