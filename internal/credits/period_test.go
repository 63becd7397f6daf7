package credits

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/auroralabs/aurora/internal/settings"
)

func TestPeriodKeyDefaultScheme(t *testing.T) {
	settings.StoreDBConfig(time.Now(), nil)

	ref := time.Date(2026, time.August, 15, 10, 0, 0, 0, time.UTC)
	if got := PeriodKey(ref); got != 202608 {
		t.Fatalf("expected 202608, got %d", got)
	}

	// The key is derived from UTC regardless of the input zone.
	zone := time.FixedZone("UTC+14", 14*3600)
	late := time.Date(2026, time.September, 1, 1, 0, 0, 0, zone)
	if got := PeriodKey(late); got != 202608 {
		t.Fatalf("expected 202608 for UTC-normalized time, got %d", got)
	}
}

func TestPeriodKeyV2Scheme(t *testing.T) {
	settings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		settings.PeriodKeyV2Key: json.RawMessage(`true`),
	})
	defer settings.StoreDBConfig(time.Now(), nil)

	ref := time.Date(2026, time.August, 15, 0, 0, 0, 0, time.UTC)
	if got := PeriodKey(ref); got != (2026-2000)*12+7 {
		t.Fatalf("expected %d, got %d", (2026-2000)*12+7, got)
	}

	// Consecutive months differ by exactly one.
	next := PeriodKey(ref.AddDate(0, 1, 0))
	if next != PeriodKey(ref)+1 {
		t.Fatalf("expected consecutive keys, got %d then %d", PeriodKey(ref), next)
	}
}
