package settings

// DB config keys and defaults for runtime-tunable settings.
const (
	// CreditsEnabledKey globally toggles credit grants and consumption.
	CreditsEnabledKey = "CREDITS_ENABLED"
	// PeriodKeyV2Key switches the period key scheme for new grants.
	PeriodKeyV2Key = "CREDIT_PERIOD_KEY_V2"
	// DistributionPageSizeKey controls the distribution job page size.
	DistributionPageSizeKey = "DISTRIBUTION_PAGE_SIZE"
	// ConsumeRateLimitKey caps consume calls per user per minute.
	ConsumeRateLimitKey = "CONSUME_RATE_LIMIT_PER_MINUTE"

	// DefaultCreditsEnabled is the fallback credits toggle.
	DefaultCreditsEnabled = true
	// DefaultPeriodKeyV2 keeps the legacy period key scheme.
	DefaultPeriodKeyV2 = false
	// DefaultDistributionPageSize is the fallback job page size.
	DefaultDistributionPageSize = 200
	// DefaultConsumeRateLimit is the fallback consume rate limit.
	DefaultConsumeRateLimit = 60
)

// CreditsEnabled reports whether the credit system is globally enabled.
func CreditsEnabled() bool {
	return BoolValue(CreditsEnabledKey, DefaultCreditsEnabled)
}

// PeriodKeyV2Enabled reports whether the v2 period key scheme is active.
func PeriodKeyV2Enabled() bool {
	return BoolValue(PeriodKeyV2Key, DefaultPeriodKeyV2)
}

// DistributionPageSize returns the distribution job page size.
func DistributionPageSize() int {
	size := IntValue(DistributionPageSizeKey, DefaultDistributionPageSize)
	if size <= 0 {
		return DefaultDistributionPageSize
	}
	return size
}

// ConsumeRateLimit returns the per-user consume rate limit per minute.
func ConsumeRateLimit() int {
	limit := IntValue(ConsumeRateLimitKey, DefaultConsumeRateLimit)
	if limit <= 0 {
		return DefaultConsumeRateLimit
	}
	return limit
}
