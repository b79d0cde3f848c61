package domain

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists licenses and their devices.
//
// Reads return nil for absent rows. ConsumeCredit and ResetCredits are
// conditional updates: two concurrent callers must never both succeed
// past the allowance, and a reset window must never be extended twice.
type Repository interface {
	// GetActiveByKey returns the active license with the key, or nil.
	GetActiveByKey(ctx context.Context, licenseKey string) (*License, error)
	Create(ctx context.Context, license *License) error

	// DevicesByLicense returns every device bound to the license.
	DevicesByLicense(ctx context.Context, licenseID uuid.UUID) ([]Device, error)
	// AddDevice inserts a new device row.
	AddDevice(ctx context.Context, device *Device) error
	// TouchDevice updates last_active and client version for an
	// existing fingerprint.
	TouchDevice(ctx context.Context, licenseID uuid.UUID, fingerprint, clientVersion string, lastActive int64) error

	// ConsumeCredit atomically increments the used counter when the
	// allowance permits. Returns the remaining balance, or
	// ErrQuotaExceeded without mutation when the allowance is spent.
	ConsumeCredit(ctx context.Context, licenseID uuid.UUID) (int, error)

	// ResetCredits zeroes the used counter and advances the reset
	// timestamp to resetAt, guarded on the previously observed
	// timestamp. Reports whether this call performed the reset.
	ResetCredits(ctx context.Context, licenseID uuid.UUID, observedResetAt, resetAt int64) (bool, error)
}
