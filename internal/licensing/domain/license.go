package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level attached to a license.
type Tier string

const (
	TierFree       Tier = "free"
	TierStarter    Tier = "starter"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// UnlimitedCredits marks a daily allowance that bypasses all counting.
const UnlimitedCredits = 999999

// Status values for a license.
const (
	StatusActive   = "active"
	StatusCanceled = "canceled"
)

// License is a paid entitlement bound to a user, metered daily.
type License struct {
	ID                   uuid.UUID
	LicenseKey           string
	UserID               string
	Tier                 Tier
	Status               string
	AICreditsDaily       int
	AICreditsUsedToday   int
	CreditsResetAt       int64
	DeviceLimit          int
	StripeCustomerID     string
	StripeSubscriptionID string
	CreatedAt            int64
	UpdatedAt            int64
}

// NewLicense creates an active license with the tier's default limits.
func NewLicense(key, userID string, tier Tier) *License {
	now := time.Now().Unix()
	limits := LimitsForTier(tier)
	return &License{
		ID:             uuid.New(),
		LicenseKey:     key,
		UserID:         userID,
		Tier:           tier,
		Status:         StatusActive,
		AICreditsDaily: limits.AICreditsDaily,
		DeviceLimit:    limits.DeviceLimit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Unlimited reports whether the license bypasses credit counting.
func (l *License) Unlimited() bool {
	return l.AICreditsDaily == UnlimitedCredits
}

// CreditsRemaining returns the metered balance. Meaningless for
// unlimited licenses; callers must check Unlimited first.
func (l *License) CreditsRemaining() int {
	remaining := l.AICreditsDaily - l.AICreditsUsedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TierLimits are the defaults provisioned per tier at purchase time.
type TierLimits struct {
	AICreditsDaily int
	DeviceLimit    int
}

// LimitsForTier maps a tier to its provisioned limits. Unknown tiers
// fall back to starter.
func LimitsForTier(tier Tier) TierLimits {
	switch tier {
	case TierFree:
		return TierLimits{AICreditsDaily: 5, DeviceLimit: 1}
	case TierPro:
		return TierLimits{AICreditsDaily: UnlimitedCredits, DeviceLimit: 2}
	case TierEnterprise:
		return TierLimits{AICreditsDaily: UnlimitedCredits, DeviceLimit: 10}
	default:
		return TierLimits{AICreditsDaily: 5, DeviceLimit: 1}
	}
}

// Device is one installed client bound to a license.
type Device struct {
	ID            uuid.UUID
	LicenseID     uuid.UUID
	Fingerprint   string
	LastActive    int64
	ClientVersion string
	CreatedAt     int64
}

// Features are the tier-derived entitlements returned to the client.
type Features struct {
	AICreditsRemaining int      `json:"aiCreditsRemaining"`
	Playbooks          []string `json:"playbooks"`
	CustomPlaybooks    bool     `json:"customPlaybooks"`
	UnlimitedAI        bool     `json:"unlimitedAI"`
	Models             []string `json:"models"`
	DeviceLimit        int      `json:"deviceLimit,omitempty"`
	CurrentDevices     int      `json:"currentDevices,omitempty"`
}

// FreeTierFeatures is the entitlement set handed out when no valid
// license is presented.
func FreeTierFeatures() Features {
	return Features{
		AICreditsRemaining: 5,
		Playbooks:          []string{"sales-demo", "objection-handler"},
		CustomPlaybooks:    false,
		UnlimitedAI:        false,
		Models:             []string{"gpt-4o-mini"},
	}
}

// FeaturesForTier derives the entitlement set of a validated license.
func FeaturesForTier(tier Tier, creditsRemaining, deviceLimit, currentDevices int) Features {
	paid := tier == TierPro || tier == TierEnterprise
	f := Features{
		AICreditsRemaining: creditsRemaining,
		Playbooks:          PlaybooksForTier(tier),
		CustomPlaybooks:    paid,
		UnlimitedAI:        paid,
		Models:             ModelsForTier(tier),
		DeviceLimit:        deviceLimit,
		CurrentDevices:     currentDevices,
	}
	return f
}

// PlaybooksForTier is the playbook allow-list per tier.
func PlaybooksForTier(tier Tier) []string {
	switch tier {
	case TierPro:
		return []string{"sales-demo", "objection-handler", "technical-interview", "behavioral-interview", "customer-support", "general-meeting"}
	case TierEnterprise:
		return []string{"*"}
	default:
		return []string{"sales-demo", "objection-handler"}
	}
}

// ModelsForTier is the model allow-list per tier.
func ModelsForTier(tier Tier) []string {
	switch tier {
	case TierPro, TierEnterprise:
		return []string{"gpt-4o", "claude-3-5-sonnet", "gemini-2.5-flash"}
	default:
		return []string{"gpt-4o-mini"}
	}
}

// ValidationResult is the structured outcome of a license validation.
// Invalid results carry a human-readable message plus a reason code;
// they are never errors.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Tier       Tier     `json:"tier"`
	LicenseKey string   `json:"license_key,omitempty"`
	Message    string   `json:"message,omitempty"`
	ReasonCode string   `json:"reasonCode,omitempty"`
	Features   Features `json:"features"`
}

// CreditResult is the structured outcome of consuming one AI credit.
type CreditResult struct {
	Success          bool   `json:"success"`
	CreditsRemaining int    `json:"creditsRemaining"`
	Unlimited        bool   `json:"unlimited,omitempty"`
	Message          string `json:"message,omitempty"`
	ReasonCode       string `json:"reasonCode,omitempty"`
}
