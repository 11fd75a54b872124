package id

import (
	"encoding/json"
	"testing"
)

func TestNewAndParse(t *testing.T) {
	evtID := NewEventID()
	if evtID.Prefix() != PrefixEvent {
		t.Errorf("prefix = %q, want %q", evtID.Prefix(), PrefixEvent)
	}

	parsed, err := Parse(evtID.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed != evtID {
		t.Errorf("roundtrip mismatch: %s vs %s", parsed, evtID)
	}
}

func TestParseWithPrefix(t *testing.T) {
	whID := NewWebhookID()

	if _, err := ParseWebhookID(whID.String()); err != nil {
		t.Fatalf("ParseWebhookID: %v", err)
	}
	if _, err := ParseEventID(whID.String()); err == nil {
		t.Error("ParseEventID accepted a webhook id")
	}
	if _, err := Parse("not-a-typeid"); err == nil {
		t.Error("Parse accepted garbage")
	}
}

func TestJSONRoundtrip(t *testing.T) {
	delID := NewDeliveryID()

	raw, err := json.Marshal(delID)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var back ID
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back != delID {
		t.Errorf("roundtrip mismatch: %s vs %s", back, delID)
	}
}

func TestNil(t *testing.T) {
	if !Nil.IsNil() {
		t.Error("Nil.IsNil() = false")
	}
	if NewEventID().IsNil() {
		t.Error("fresh id reported nil")
	}
}
