package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/licensing/domain"
)

const licenseColumns = `id, license_key, user_id, tier, status,
	ai_credits_daily, ai_credits_used_today, credits_reset_at, device_limit,
	COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
	created_at, updated_at`

// SQLiteLicenseRepository stores licenses in the embedded database. Used
// for the offline cache of the last validated license state.
type SQLiteLicenseRepository struct {
	db *sql.DB
}

// NewSQLiteLicenseRepository creates a new repository.
func NewSQLiteLicenseRepository(db *sql.DB) *SQLiteLicenseRepository {
	return &SQLiteLicenseRepository{db: db}
}

func (r *SQLiteLicenseRepository) GetActiveByKey(ctx context.Context, licenseKey string) (*domain.License, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+licenseColumns+` FROM licenses WHERE license_key = ? AND status = ?`,
		licenseKey, domain.StatusActive)
	l, err := scanLicense(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return l, nil
}

func (r *SQLiteLicenseRepository) Create(ctx context.Context, l *domain.License) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO licenses (
			id, license_key, user_id, tier, status,
			ai_credits_daily, ai_credits_used_today, credits_reset_at, device_limit,
			stripe_customer_id, stripe_subscription_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID.String(), l.LicenseKey, l.UserID, string(l.Tier), l.Status,
		l.AICreditsDaily, l.AICreditsUsedToday, l.CreditsResetAt, l.DeviceLimit,
		nullable(l.StripeCustomerID), nullable(l.StripeSubscriptionID), l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert license: %w", err)
	}
	return nil
}

func (r *SQLiteLicenseRepository) DevicesByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Device, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, license_id, device_fingerprint, last_active, COALESCE(client_version, ''), created_at
		FROM devices WHERE license_id = ? ORDER BY created_at ASC`,
		licenseID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		var d domain.Device
		var id, lid string
		if err := rows.Scan(&id, &lid, &d.Fingerprint, &d.LastActive, &d.ClientVersion, &d.CreatedAt); err != nil {
			return nil, err
		}
		if d.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing device id: %w", err)
		}
		if d.LicenseID, err = uuid.Parse(lid); err != nil {
			return nil, fmt.Errorf("parsing license id: %w", err)
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *SQLiteLicenseRepository) AddDevice(ctx context.Context, d *domain.Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt == 0 {
		d.CreatedAt = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, license_id, device_fingerprint, last_active, client_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID.String(), d.LicenseID.String(), d.Fingerprint, d.LastActive, nullable(d.ClientVersion), d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *SQLiteLicenseRepository) TouchDevice(ctx context.Context, licenseID uuid.UUID, fingerprint, clientVersion string, lastActive int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE devices SET last_active = ?, client_version = ?
		WHERE license_id = ? AND device_fingerprint = ?`,
		lastActive, nullable(clientVersion), licenseID.String(), fingerprint,
	)
	if err != nil {
		return fmt.Errorf("touch device: %w", err)
	}
	return nil
}

// ConsumeCredit increments the used counter only while the allowance
// permits, in one guarded statement so concurrent consumers cannot both
// take the last credit.
func (r *SQLiteLicenseRepository) ConsumeCredit(ctx context.Context, licenseID uuid.UUID) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE licenses
		SET ai_credits_used_today = ai_credits_used_today + 1, updated_at = ?
		WHERE id = ? AND ai_credits_used_today < ai_credits_daily`,
		time.Now().Unix(), licenseID.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("consume credit: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, domain.ErrQuotaExceeded
	}

	var remaining int
	err = r.db.QueryRowContext(ctx,
		`SELECT ai_credits_daily - ai_credits_used_today FROM licenses WHERE id = ?`,
		licenseID.String()).Scan(&remaining)
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// ResetCredits performs the daily reset guarded on the reset timestamp
// the caller observed, so two racing validations extend the window once.
func (r *SQLiteLicenseRepository) ResetCredits(ctx context.Context, licenseID uuid.UUID, observedResetAt, resetAt int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE licenses
		SET ai_credits_used_today = 0, credits_reset_at = ?, updated_at = ?
		WHERE id = ? AND credits_reset_at = ?`,
		resetAt, time.Now().Unix(), licenseID.String(), observedResetAt,
	)
	if err != nil {
		return false, fmt.Errorf("reset credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanLicense(scan func(dest ...any) error) (*domain.License, error) {
	var l domain.License
	var id, tier string
	err := scan(&id, &l.LicenseKey, &l.UserID, &tier, &l.Status,
		&l.AICreditsDaily, &l.AICreditsUsedToday, &l.CreditsResetAt, &l.DeviceLimit,
		&l.StripeCustomerID, &l.StripeSubscriptionID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parsing license id: %w", err)
	}
	l.Tier = domain.Tier(tier)
	return &l, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ domain.Repository = (*SQLiteLicenseRepository)(nil)
