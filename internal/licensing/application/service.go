package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sidecue/sidecue/internal/licensing/domain"
)

const resetWindow = 24 * time.Hour

// SnapshotCache stores the last-known-good validation result per license
// key so offline clients keep their entitlements until the authority is
// reachable again.
type SnapshotCache interface {
	StoreSnapshot(ctx context.Context, licenseKey string, result domain.ValidationResult) error
	Snapshot(ctx context.Context, licenseKey string) (*domain.ValidationResult, error)
}

// Authority is the hosted license API. When configured, validation and
// credit consumption go through it instead of the local license store;
// ErrAuthorityUnavailable from it routes onto the offline path.
type Authority interface {
	ValidateLicense(ctx context.Context, licenseKey, deviceFingerprint, clientVersion string) (*domain.ValidationResult, error)
	UseCredit(ctx context.Context, licenseKey string) (*domain.CreditResult, error)
}

// Service is the license gate: it validates keys, enforces the device
// cap, performs the daily credit reset, and meters credit consumption.
type Service struct {
	repo      domain.Repository
	authority Authority
	cache     SnapshotCache
	clock     func() time.Time
	logger    *slog.Logger
}

// NewService creates the gate against the local license store. cache
// may be nil; offline fallback is then disabled.
func NewService(repo domain.Repository, cache SnapshotCache, clock func() time.Time, logger *slog.Logger) *Service {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, clock: clock, logger: logger}
}

// NewOnlineService creates the gate against the hosted authority. The
// local repo still backs key-to-tier lookups that never leave the
// device, such as the playbook allow-list.
func NewOnlineService(authority Authority, repo domain.Repository, cache SnapshotCache, clock func() time.Time, logger *slog.Logger) *Service {
	svc := NewService(repo, cache, clock, logger)
	svc.authority = authority
	return svc
}

// Validate checks a license key for a device and returns a structured
// result. Invalid keys and exceeded device limits are results, never
// errors; only unexpected storage failures surface as errors.
func (s *Service) Validate(ctx context.Context, licenseKey, deviceFingerprint, clientVersion string) (*domain.ValidationResult, error) {
	if licenseKey == "" {
		return &domain.ValidationResult{
			Valid:      false,
			Tier:       domain.TierFree,
			Message:    "Missing license key",
			ReasonCode: domain.ReasonMissingKey,
			Features:   domain.FreeTierFeatures(),
		}, nil
	}

	if s.authority != nil {
		return s.validateOnline(ctx, licenseKey, deviceFingerprint, clientVersion)
	}

	license, err := s.repo.GetActiveByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, domain.ErrAuthorityUnavailable) {
			return s.offlineFallback(ctx, licenseKey, err)
		}
		return nil, err
	}
	if license == nil {
		return &domain.ValidationResult{
			Valid:      false,
			Tier:       domain.TierFree,
			Message:    "Invalid or expired license",
			ReasonCode: domain.ReasonInvalidKey,
			Features:   domain.FreeTierFeatures(),
		}, nil
	}

	devices, err := s.repo.DevicesByLicense(ctx, license.ID)
	if err != nil {
		return nil, err
	}
	known := false
	for _, d := range devices {
		if d.Fingerprint == deviceFingerprint {
			known = true
			break
		}
	}
	if !known && len(devices) >= license.DeviceLimit {
		return &domain.ValidationResult{
			Valid:      false,
			Tier:       license.Tier,
			Message:    fmt.Sprintf("Device limit reached (%d devices)", license.DeviceLimit),
			ReasonCode: domain.ReasonDeviceLimit,
		}, nil
	}

	now := s.clock()
	if known {
		if err := s.repo.TouchDevice(ctx, license.ID, deviceFingerprint, clientVersion, now.Unix()); err != nil {
			return nil, err
		}
	} else {
		device := &domain.Device{
			LicenseID:     license.ID,
			Fingerprint:   deviceFingerprint,
			LastActive:    now.Unix(),
			ClientVersion: clientVersion,
		}
		if err := s.repo.AddDevice(ctx, device); err != nil {
			return nil, err
		}
	}

	if !license.Unlimited() && now.Unix() > license.CreditsResetAt {
		reset, err := s.repo.ResetCredits(ctx, license.ID, license.CreditsResetAt, now.Add(resetWindow).Unix())
		if err != nil {
			return nil, err
		}
		if reset {
			license.AICreditsUsedToday = 0
			license.CreditsResetAt = now.Add(resetWindow).Unix()
		} else {
			// A concurrent validation won the reset; re-read the row
			// rather than double-extending the window.
			refreshed, err := s.repo.GetActiveByKey(ctx, licenseKey)
			if err == nil && refreshed != nil {
				license = refreshed
			}
		}
	}

	remaining := domain.UnlimitedCredits
	if !license.Unlimited() {
		remaining = license.CreditsRemaining()
	}

	result := &domain.ValidationResult{
		Valid:      true,
		Tier:       license.Tier,
		LicenseKey: license.LicenseKey,
		Features:   domain.FeaturesForTier(license.Tier, remaining, license.DeviceLimit, len(devices)),
	}
	if s.cache != nil {
		if err := s.cache.StoreSnapshot(ctx, licenseKey, *result); err != nil {
			s.logger.Warn("failed to cache license snapshot", "error", err)
		}
	}
	return result, nil
}

// validateOnline delegates validation to the hosted authority, keeping
// the snapshot cache current so an outage can serve the last-known-good
// result.
func (s *Service) validateOnline(ctx context.Context, licenseKey, deviceFingerprint, clientVersion string) (*domain.ValidationResult, error) {
	result, err := s.authority.ValidateLicense(ctx, licenseKey, deviceFingerprint, clientVersion)
	if err != nil {
		if errors.Is(err, domain.ErrAuthorityUnavailable) {
			return s.offlineFallback(ctx, licenseKey, err)
		}
		return nil, err
	}
	if result.Valid && s.cache != nil {
		if err := s.cache.StoreSnapshot(ctx, licenseKey, *result); err != nil {
			s.logger.Warn("failed to cache license snapshot", "error", err)
		}
	}
	return result, nil
}

// offlineFallback serves the cached last-known snapshot when the
// authority is unreachable. Without a snapshot the gate fails closed.
func (s *Service) offlineFallback(ctx context.Context, licenseKey string, cause error) (*domain.ValidationResult, error) {
	if s.cache != nil {
		snapshot, err := s.cache.Snapshot(ctx, licenseKey)
		if err != nil {
			s.logger.Warn("snapshot lookup failed", "error", err)
		}
		if snapshot != nil {
			s.logger.Warn("license authority unreachable, serving cached snapshot", "error", cause)
			return snapshot, nil
		}
	}
	return &domain.ValidationResult{
		Valid:      false,
		Tier:       domain.TierFree,
		Message:    "License authority unavailable",
		ReasonCode: domain.ReasonUnavailable,
		Features:   domain.FreeTierFeatures(),
	}, nil
}

// ConsumeCredit spends one metered AI credit. Unlimited tiers succeed
// without counting; an exhausted allowance is a structured refusal, not
// an error.
func (s *Service) ConsumeCredit(ctx context.Context, licenseKey string) (*domain.CreditResult, error) {
	if s.authority != nil {
		result, err := s.authority.UseCredit(ctx, licenseKey)
		if err != nil {
			if errors.Is(err, domain.ErrAuthorityUnavailable) {
				return &domain.CreditResult{
					Success:    false,
					Message:    "License authority unavailable",
					ReasonCode: domain.ReasonUnavailable,
				}, nil
			}
			return nil, err
		}
		return result, nil
	}

	license, err := s.repo.GetActiveByKey(ctx, licenseKey)
	if err != nil {
		if errors.Is(err, domain.ErrAuthorityUnavailable) {
			return &domain.CreditResult{
				Success:    false,
				Message:    "License authority unavailable",
				ReasonCode: domain.ReasonUnavailable,
			}, nil
		}
		return nil, err
	}
	if license == nil {
		return &domain.CreditResult{
			Success:    false,
			Message:    "Invalid license",
			ReasonCode: domain.ReasonInvalidKey,
		}, nil
	}

	if license.Unlimited() {
		return &domain.CreditResult{
			Success:          true,
			Unlimited:        true,
			CreditsRemaining: domain.UnlimitedCredits,
		}, nil
	}

	remaining, err := s.repo.ConsumeCredit(ctx, license.ID)
	if err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			return &domain.CreditResult{
				Success:    false,
				Message:    "Daily limit reached",
				ReasonCode: domain.ReasonQuotaExceeded,
			}, nil
		}
		return nil, err
	}
	return &domain.CreditResult{Success: true, CreditsRemaining: remaining}, nil
}

// PlaybooksForLicense returns the playbook allow-list of a key. Unknown
// keys yield an empty list rather than an error.
func (s *Service) PlaybooksForLicense(ctx context.Context, licenseKey string) ([]string, error) {
	license, err := s.repo.GetActiveByKey(ctx, licenseKey)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return []string{}, nil
	}
	return domain.PlaybooksForTier(license.Tier), nil
}
