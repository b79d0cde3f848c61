package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sidecue/sidecue/internal/licensing/domain"
	"github.com/sidecue/sidecue/internal/shared/infrastructure/database"
)

// PostgresLicenseRepository is the authoritative license store used by
// the hosted authority.
type PostgresLicenseRepository struct {
	conn database.Connection
}

// NewPostgresLicenseRepository creates a new repository.
func NewPostgresLicenseRepository(conn database.Connection) *PostgresLicenseRepository {
	return &PostgresLicenseRepository{conn: conn}
}

// remapErr tags unreachable-backend failures so gating can fail closed
// with a distinguishable reason.
func remapErr(err error) error {
	if err == nil {
		return nil
	}
	if database.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", domain.ErrAuthorityUnavailable, err)
	}
	return err
}

func (r *PostgresLicenseRepository) GetActiveByKey(ctx context.Context, licenseKey string) (*domain.License, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, license_key, user_id, tier, status,
		       ai_credits_daily, ai_credits_used_today, credits_reset_at, device_limit,
		       COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''),
		       created_at, updated_at
		FROM licenses WHERE license_key = $1 AND status = $2`,
		licenseKey, domain.StatusActive)

	var l domain.License
	var tier string
	err := row.Scan(&l.ID, &l.LicenseKey, &l.UserID, &tier, &l.Status,
		&l.AICreditsDaily, &l.AICreditsUsedToday, &l.CreditsResetAt, &l.DeviceLimit,
		&l.StripeCustomerID, &l.StripeSubscriptionID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, remapErr(err)
	}
	l.Tier = domain.Tier(tier)
	return &l, nil
}

func (r *PostgresLicenseRepository) Create(ctx context.Context, l *domain.License) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO licenses (
			id, license_key, user_id, tier, status,
			ai_credits_daily, ai_credits_used_today, credits_reset_at, device_limit,
			stripe_customer_id, stripe_subscription_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''),
		          EXTRACT(EPOCH FROM now())::BIGINT, EXTRACT(EPOCH FROM now())::BIGINT)`,
		l.ID, l.LicenseKey, l.UserID, string(l.Tier), l.Status,
		l.AICreditsDaily, l.AICreditsUsedToday, l.CreditsResetAt, l.DeviceLimit,
		l.StripeCustomerID, l.StripeSubscriptionID,
	)
	if err != nil {
		return remapErr(fmt.Errorf("insert license: %w", err))
	}
	return nil
}

func (r *PostgresLicenseRepository) DevicesByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Device, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, license_id, device_fingerprint, last_active, COALESCE(client_version, ''), created_at
		FROM devices WHERE license_id = $1 ORDER BY created_at ASC`,
		licenseID)
	if err != nil {
		return nil, remapErr(err)
	}
	defer rows.Close()

	var devices []domain.Device
	for rows.Next() {
		var d domain.Device
		if err := rows.Scan(&d.ID, &d.LicenseID, &d.Fingerprint, &d.LastActive, &d.ClientVersion, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, remapErr(rows.Err())
}

func (r *PostgresLicenseRepository) AddDevice(ctx context.Context, d *domain.Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	row := r.conn.QueryRow(ctx, `
		INSERT INTO devices (id, license_id, device_fingerprint, last_active, client_version, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), EXTRACT(EPOCH FROM now())::BIGINT)
		RETURNING created_at`,
		d.ID, d.LicenseID, d.Fingerprint, d.LastActive, d.ClientVersion,
	)
	if err := row.Scan(&d.CreatedAt); err != nil {
		return remapErr(fmt.Errorf("insert device: %w", err))
	}
	return nil
}

func (r *PostgresLicenseRepository) TouchDevice(ctx context.Context, licenseID uuid.UUID, fingerprint, clientVersion string, lastActive int64) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE devices SET last_active = $1, client_version = NULLIF($2, '')
		WHERE license_id = $3 AND device_fingerprint = $4`,
		lastActive, clientVersion, licenseID, fingerprint,
	)
	if err != nil {
		return remapErr(fmt.Errorf("touch device: %w", err))
	}
	return nil
}

// ConsumeCredit takes one credit in a single guarded update so two
// concurrent consumers can never both spend the last one.
func (r *PostgresLicenseRepository) ConsumeCredit(ctx context.Context, licenseID uuid.UUID) (int, error) {
	row := r.conn.QueryRow(ctx, `
		UPDATE licenses
		SET ai_credits_used_today = ai_credits_used_today + 1,
		    updated_at = EXTRACT(EPOCH FROM now())::BIGINT
		WHERE id = $1 AND ai_credits_used_today < ai_credits_daily
		RETURNING ai_credits_daily - ai_credits_used_today`,
		licenseID,
	)
	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if database.IsNoRows(err) {
			return 0, domain.ErrQuotaExceeded
		}
		return 0, remapErr(fmt.Errorf("consume credit: %w", err))
	}
	return remaining, nil
}

// ResetCredits advances the reset window guarded on the timestamp the
// caller observed. Exactly one of two racing resets wins.
func (r *PostgresLicenseRepository) ResetCredits(ctx context.Context, licenseID uuid.UUID, observedResetAt, resetAt int64) (bool, error) {
	res, err := r.conn.Exec(ctx, `
		UPDATE licenses
		SET ai_credits_used_today = 0, credits_reset_at = $1,
		    updated_at = EXTRACT(EPOCH FROM now())::BIGINT
		WHERE id = $2 AND credits_reset_at = $3`,
		resetAt, licenseID, observedResetAt,
	)
	if err != nil {
		return false, remapErr(fmt.Errorf("reset credits: %w", err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

var _ domain.Repository = (*PostgresLicenseRepository)(nil)
