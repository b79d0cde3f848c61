package application

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/sidecue/sidecue/internal/licensing/domain"
	"github.com/sidecue/sidecue/internal/licensing/infrastructure/cache"
	"github.com/sidecue/sidecue/internal/licensing/infrastructure/persistence"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/migrations"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newGate(t *testing.T) (*Service, domain.Repository, *fixedClock) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(context.Background(), db))

	repo := persistence.NewSQLiteLicenseRepository(db)
	clock := &fixedClock{now: time.Unix(1_700_000_000, 0)}
	svc := NewService(repo, cache.NewMemorySnapshotCache(), func() time.Time { return clock.now }, nil)
	return svc, repo, clock
}

func seedLicense(t *testing.T, repo domain.Repository, tier domain.Tier, resetAt int64) *domain.License {
	t.Helper()
	l := domain.NewLicense("key-"+uuid.NewString(), "user-1", tier)
	l.CreditsResetAt = resetAt
	require.NoError(t, repo.Create(context.Background(), l))
	return l
}

func TestValidate_MissingKey(t *testing.T) {
	svc, _, _ := newGate(t)

	res, err := svc.Validate(context.Background(), "", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonMissingKey, res.ReasonCode)
	assert.Equal(t, domain.TierFree, res.Tier)
	assert.False(t, res.Features.UnlimitedAI)
}

func TestValidate_UnknownKeyIsResultNotError(t *testing.T) {
	svc, _, _ := newGate(t)

	res, err := svc.Validate(context.Background(), "nope", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonInvalidKey, res.ReasonCode)
	assert.NotEmpty(t, res.Message)
}

func TestValidate_RegistersDeviceOnce(t *testing.T) {
	svc, repo, clock := newGate(t)
	l := seedLicense(t, repo, domain.TierPro, clock.now.Add(time.Hour).Unix())

	for i := 0; i < 3; i++ {
		res, err := svc.Validate(context.Background(), l.LicenseKey, "device-a", "1.0.0")
		require.NoError(t, err)
		assert.True(t, res.Valid)
	}

	devices, err := repo.DevicesByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1, "revalidation must not duplicate the device row")
}

func TestValidate_DeviceLimit(t *testing.T) {
	svc, repo, clock := newGate(t)
	// Pro allows two devices.
	l := seedLicense(t, repo, domain.TierPro, clock.now.Add(time.Hour).Unix())

	for _, device := range []string{"device-a", "device-b"} {
		res, err := svc.Validate(context.Background(), l.LicenseKey, device, "1.0.0")
		require.NoError(t, err)
		require.True(t, res.Valid)
	}

	res, err := svc.Validate(context.Background(), l.LicenseKey, "device-c", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonDeviceLimit, res.ReasonCode)
	assert.Contains(t, res.Message, "2 devices")

	// The refused device must not have been registered.
	devices, err := repo.DevicesByLicense(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Len(t, devices, 2)

	// Known devices keep validating at the limit.
	res, err = svc.Validate(context.Background(), l.LicenseKey, "device-a", "1.0.1")
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_DailyResetHappensOnce(t *testing.T) {
	svc, repo, clock := newGate(t)
	l := seedLicense(t, repo, domain.TierFree, clock.now.Add(-time.Minute).Unix())

	// Burn the allowance, then cross the reset boundary.
	for i := 0; i < 3; i++ {
		_, err := repo.ConsumeCredit(context.Background(), l.ID)
		require.NoError(t, err)
	}

	res, err := svc.Validate(context.Background(), l.LicenseKey, "device-a", "1.0.0")
	require.NoError(t, err)
	require.True(t, res.Valid)
	assert.Equal(t, 5, res.Features.AICreditsRemaining, "reset restores the full allowance")

	// A second validate inside the same day must not reset again.
	_, err = repo.ConsumeCredit(context.Background(), l.ID)
	require.NoError(t, err)
	clock.advance(time.Hour)
	res, err = svc.Validate(context.Background(), l.LicenseKey, "device-a", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Features.AICreditsRemaining)
}

func TestValidate_TierFeatures(t *testing.T) {
	svc, repo, clock := newGate(t)
	resetAt := clock.now.Add(time.Hour).Unix()

	pro := seedLicense(t, repo, domain.TierPro, resetAt)
	res, err := svc.Validate(context.Background(), pro.LicenseKey, "device-a", "1.0.0")
	require.NoError(t, err)
	assert.True(t, res.Features.UnlimitedAI)
	assert.True(t, res.Features.CustomPlaybooks)
	assert.Contains(t, res.Features.Models, "gpt-4o")

	starter := seedLicense(t, repo, domain.TierStarter, resetAt)
	res, err = svc.Validate(context.Background(), starter.LicenseKey, "device-b", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Features.UnlimitedAI)
	assert.False(t, res.Features.CustomPlaybooks)
	assert.Equal(t, []string{"gpt-4o-mini"}, res.Features.Models)
}

func TestConsumeCredit_MeteredToExhaustion(t *testing.T) {
	svc, repo, clock := newGate(t)
	l := seedLicense(t, repo, domain.TierFree, clock.now.Add(time.Hour).Unix())

	for want := 4; want >= 0; want-- {
		res, err := svc.ConsumeCredit(context.Background(), l.LicenseKey)
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.Equal(t, want, res.CreditsRemaining)
	}

	res, err := svc.ConsumeCredit(context.Background(), l.LicenseKey)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonQuotaExceeded, res.ReasonCode)
	assert.Zero(t, res.CreditsRemaining)
}

func TestConsumeCredit_UnlimitedDoesNotCount(t *testing.T) {
	svc, repo, clock := newGate(t)
	l := seedLicense(t, repo, domain.TierEnterprise, clock.now.Add(time.Hour).Unix())

	for i := 0; i < 10; i++ {
		res, err := svc.ConsumeCredit(context.Background(), l.LicenseKey)
		require.NoError(t, err)
		require.True(t, res.Success)
		assert.True(t, res.Unlimited)
	}

	got, err := repo.GetActiveByKey(context.Background(), l.LicenseKey)
	require.NoError(t, err)
	assert.Zero(t, got.AICreditsUsedToday)
}

func TestConsumeCredit_InvalidKey(t *testing.T) {
	svc, _, _ := newGate(t)

	res, err := svc.ConsumeCredit(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonInvalidKey, res.ReasonCode)
}

// unavailableLicenseRepo simulates an unreachable authority backend.
type unavailableLicenseRepo struct {
	domain.Repository
}

func (unavailableLicenseRepo) GetActiveByKey(ctx context.Context, licenseKey string) (*domain.License, error) {
	return nil, domain.ErrAuthorityUnavailable
}

func TestValidate_OfflineFallbackServesSnapshot(t *testing.T) {
	snapshots := cache.NewMemorySnapshotCache()
	snapshot := domain.ValidationResult{Valid: true, Tier: domain.TierPro, LicenseKey: "key-1"}
	require.NoError(t, snapshots.StoreSnapshot(context.Background(), "key-1", snapshot))

	svc := NewService(unavailableLicenseRepo{}, snapshots, nil, nil)
	res, err := svc.Validate(context.Background(), "key-1", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, domain.TierPro, res.Tier)
}

func TestValidate_OfflineWithoutSnapshotFailsClosed(t *testing.T) {
	svc := NewService(unavailableLicenseRepo{}, cache.NewMemorySnapshotCache(), nil, nil)

	res, err := svc.Validate(context.Background(), "key-1", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonUnavailable, res.ReasonCode)
}

func TestConsumeCredit_OfflineFailsClosed(t *testing.T) {
	svc := NewService(unavailableLicenseRepo{}, nil, nil, nil)

	res, err := svc.ConsumeCredit(context.Background(), "key-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonUnavailable, res.ReasonCode)
}

// fakeAuthority stands in for the hosted license API.
type fakeAuthority struct {
	validate  func(licenseKey string) (*domain.ValidationResult, error)
	useCredit func(licenseKey string) (*domain.CreditResult, error)
}

func (a *fakeAuthority) ValidateLicense(ctx context.Context, licenseKey, deviceFingerprint, clientVersion string) (*domain.ValidationResult, error) {
	return a.validate(licenseKey)
}

func (a *fakeAuthority) UseCredit(ctx context.Context, licenseKey string) (*domain.CreditResult, error) {
	return a.useCredit(licenseKey)
}

func TestValidate_OnlineDelegatesAndCachesSnapshot(t *testing.T) {
	snapshots := cache.NewMemorySnapshotCache()
	online := &fakeAuthority{validate: func(licenseKey string) (*domain.ValidationResult, error) {
		return &domain.ValidationResult{Valid: true, Tier: domain.TierPro, LicenseKey: licenseKey}, nil
	}}

	svc := NewOnlineService(online, nil, snapshots, nil, nil)
	res, err := svc.Validate(context.Background(), "key-1", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, domain.TierPro, res.Tier)

	// A later outage must serve the result cached above.
	outage := &fakeAuthority{validate: func(string) (*domain.ValidationResult, error) {
		return nil, domain.ErrAuthorityUnavailable
	}}
	svc = NewOnlineService(outage, nil, snapshots, nil, nil)
	res, err = svc.Validate(context.Background(), "key-1", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, domain.TierPro, res.Tier)
}

func TestValidate_OnlineOutageWithoutSnapshotFailsClosed(t *testing.T) {
	outage := &fakeAuthority{validate: func(string) (*domain.ValidationResult, error) {
		return nil, domain.ErrAuthorityUnavailable
	}}

	svc := NewOnlineService(outage, nil, cache.NewMemorySnapshotCache(), nil, nil)
	res, err := svc.Validate(context.Background(), "key-1", "device-a", "1.0.0")
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, domain.ReasonUnavailable, res.ReasonCode)
	assert.False(t, res.Features.UnlimitedAI)
}

func TestConsumeCredit_OnlinePassesRefusalThrough(t *testing.T) {
	online := &fakeAuthority{useCredit: func(string) (*domain.CreditResult, error) {
		return &domain.CreditResult{Success: false, Message: "Daily limit reached", ReasonCode: domain.ReasonQuotaExceeded}, nil
	}}

	svc := NewOnlineService(online, nil, nil, nil, nil)
	res, err := svc.ConsumeCredit(context.Background(), "key-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonQuotaExceeded, res.ReasonCode)
}

func TestConsumeCredit_OnlineOutageFailsClosed(t *testing.T) {
	outage := &fakeAuthority{useCredit: func(string) (*domain.CreditResult, error) {
		return nil, domain.ErrAuthorityUnavailable
	}}

	svc := NewOnlineService(outage, nil, nil, nil, nil)
	res, err := svc.ConsumeCredit(context.Background(), "key-1")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.ReasonUnavailable, res.ReasonCode)
}
