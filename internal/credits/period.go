package credits

import (
	"time"

	"github.com/auroralabs/aurora/internal/settings"
)

// PeriodKey derives a deterministic integer identifying the billing period a
// reference time falls in. It is stored on period-scoped grant rows so that
// granting twice for the same (user, type, period) is a no-op.
//
// Two schemes coexist behind the CREDIT_PERIOD_KEY_V2 setting. Rows keep the
// key computed at grant time; flipping the flag opens at most one extra grant
// window in the month of the flip, since dedupe only compares keys produced
// by the active scheme.
func PeriodKey(ref time.Time) int {
	if settings.PeriodKeyV2Enabled() {
		return periodKeyV2(ref)
	}
	return periodKeyV1(ref)
}

// periodKeyV1 encodes the period as year*100+month, e.g. 202608.
func periodKeyV1(ref time.Time) int {
	t := ref.UTC()
	return t.Year()*100 + int(t.Month())
}

// periodKeyV2 encodes the period as whole months since 2000-01. The monotonic
// encoding makes period arithmetic (previous/next period) a plain ±1.
func periodKeyV2(ref time.Time) int {
	t := ref.UTC()
	return (t.Year()-2000)*12 + int(t.Month()) - 1
}
