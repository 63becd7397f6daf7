package creem

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/auroralabs/aurora/internal/apperr"
	"github.com/auroralabs/aurora/internal/config"
	wh "github.com/auroralabs/aurora/internal/webhook"
)

const testSecret = "whsec_test"

func sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func testProvider(t *testing.T) *Provider {
	t.Helper()
	provider, errNew := New(config.CreemConfig{
		APIKey:        "ck_test",
		WebhookSecret: testSecret,
		APIBase:       "https://api.creem.test",
	})
	if errNew != nil {
		t.Fatalf("new provider: %v", errNew)
	}
	return provider
}

func TestVerifySignature(t *testing.T) {
	payload := `{"id":"evt_1"}`
	if !VerifySignature(payload, sign(payload), testSecret) {
		t.Fatal("expected valid signature to verify")
	}
	if VerifySignature(payload, sign(payload+"x"), testSecret) {
		t.Fatal("expected tampered payload to fail")
	}
	if VerifySignature(payload, "", testSecret) {
		t.Fatal("expected empty signature to fail")
	}
	if VerifySignature(payload, sign(payload), "") {
		t.Fatal("expected empty secret to fail")
	}
}

func TestParseEventRejectsBadSignature(t *testing.T) {
	provider := testProvider(t)

	payload := `{"id":"evt_1","eventType":"checkout.completed","object":{}}`
	_, errParse := provider.ParseEvent([]byte(payload), "deadbeef")
	if !apperr.Is(errParse, apperr.CodeSecurityViolation) {
		t.Fatalf("expected security violation, got %v", errParse)
	}

	_, errParse = provider.ParseEvent(nil, sign(payload))
	if !apperr.Is(errParse, apperr.CodeSecurityViolation) {
		t.Fatalf("expected security violation for empty payload, got %v", errParse)
	}
}

func TestParseEventMissingSecretIsMisconfiguration(t *testing.T) {
	provider, errNew := New(config.CreemConfig{APIKey: "ck_test"})
	if errNew != nil {
		t.Fatalf("new provider: %v", errNew)
	}
	_, errParse := provider.ParseEvent([]byte(`{}`), "sig")
	if !apperr.Is(errParse, apperr.CodeCreemMisconfigured) {
		t.Fatalf("expected misconfiguration, got %v", errParse)
	}
}

func TestParseCheckoutCompleted(t *testing.T) {
	provider := testProvider(t)

	payload := `{
		"id": "evt_chk",
		"eventType": "checkout.completed",
		"object": {
			"id": "co_1",
			"metadata": {"user_id": "42", "credits": "250"},
			"customer": {"id": "cust_1"},
			"product": {"id": "prod_1"}
		}
	}`
	event, errParse := provider.ParseEvent([]byte(payload), sign(payload))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if event.Type != wh.EventCheckoutCompleted {
		t.Fatalf("expected checkout event, got %s", event.Type)
	}
	if event.UserID != 42 || event.PackCredits != 250 {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.CustomerID != "cust_1" || event.PriceID != "prod_1" {
		t.Fatalf("unexpected identifiers %+v", event)
	}
	if event.Mode != wh.ModePayment {
		t.Fatalf("expected payment mode, got %s", event.Mode)
	}
}

func TestParseSubscriptionEvents(t *testing.T) {
	provider := testProvider(t)

	payload := `{
		"id": "evt_sub",
		"eventType": "subscription.paid",
		"object": {
			"id": "sub_1",
			"status": "paid",
			"metadata": {"user_id": "7", "price_id": "price_pro"},
			"customer": {"id": "cust_7"},
			"product": {"id": "prod_pro"},
			"current_period_start_date": "2026-08-01T00:00:00Z",
			"current_period_end_date": "2026-09-01T00:00:00Z"
		}
	}`
	event, errParse := provider.ParseEvent([]byte(payload), sign(payload))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if event.Type != wh.EventSubscriptionUpdated {
		t.Fatalf("expected subscription update, got %s", event.Type)
	}
	if event.Status != "active" {
		t.Fatalf("expected normalized active status, got %s", event.Status)
	}
	if event.PriceID != "price_pro" {
		t.Fatalf("expected metadata price id to win, got %s", event.PriceID)
	}
	if event.PeriodStart == nil || event.PeriodStart.Month() != 8 {
		t.Fatalf("unexpected period start %v", event.PeriodStart)
	}

	canceled := `{
		"id": "evt_cancel",
		"eventType": "subscription.canceled",
		"object": {"id": "sub_1", "status": "canceled", "customer": {"id": "cust_7"}, "product": {"id": "prod_pro"}}
	}`
	event, errParse = provider.ParseEvent([]byte(canceled), sign(canceled))
	if errParse != nil {
		t.Fatalf("parse canceled: %v", errParse)
	}
	if event.Type != wh.EventSubscriptionDeleted {
		t.Fatalf("expected deletion, got %s", event.Type)
	}
}

func TestParseUnknownEventTypeIsIgnored(t *testing.T) {
	provider := testProvider(t)

	payload := `{"id":"evt_other","eventType":"refund.created","object":{}}`
	event, errParse := provider.ParseEvent([]byte(payload), sign(payload))
	if errParse != nil {
		t.Fatalf("parse: %v", errParse)
	}
	if event.Type != wh.EventIgnored {
		t.Fatalf("expected ignored event, got %s", event.Type)
	}
	if event.ID != "evt_other" {
		t.Fatalf("ignored events still carry the dedupe id, got %q", event.ID)
	}
}
