package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/signature"
	"github.com/lojix/backbone/webhook"
)

func testEvent() *event.Event {
	return &event.Event{
		ID:            id.NewEventID(),
		Type:          "product.price_changed",
		Payload:       map[string]any{"ean": "789", "oldPrice": 10.0, "newPrice": 12.0},
		Timestamp:     time.Now().UTC(),
		AggregateType: "product",
		AggregateID:   "789",
		OrgID:         "org_1",
		UserID:        "user_internal",
		CorrelationID: "corr_1",
	}
}

func TestSenderHeadersAndSignature(t *testing.T) {
	evt := testEvent()
	wh := &webhook.Webhook{ID: id.NewWebhookID(), Secret: "whsec_test", Active: true}
	d := New(wh.ID, evt.ID, 6)

	var gotBody []byte
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	wh.URL = srv.URL

	res := NewSender(5 * time.Second).Send(context.Background(), wh, evt, d)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, error = %q", res.StatusCode, res.Error)
	}

	if got := gotHeader.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := gotHeader.Get("X-Event-Id"); got != evt.ID.String() {
		t.Errorf("X-Event-Id = %q", got)
	}
	if got := gotHeader.Get("X-Event-Type"); got != evt.Type {
		t.Errorf("X-Event-Type = %q", got)
	}
	if got := gotHeader.Get("X-Delivery-Id"); got != d.ID.String() {
		t.Errorf("X-Delivery-Id = %q", got)
	}

	// The signature must verify against the raw body exactly as received.
	if !signature.Verify(gotBody, wh.Secret, gotHeader.Get("X-Signature")) {
		t.Error("X-Signature does not verify against the received body")
	}
}

func TestSenderEnvelopeExcludesUser(t *testing.T) {
	evt := testEvent()
	wh := &webhook.Webhook{ID: id.NewWebhookID(), Secret: "whsec_test", Active: true}
	d := New(wh.ID, evt.ID, 6)

	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	wh.URL = srv.URL

	NewSender(5 * time.Second).Send(context.Background(), wh, evt, d)

	var wire map[string]any
	if err := json.Unmarshal(gotBody, &wire); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if _, ok := wire["userId"]; ok {
		t.Error("wire envelope leaks userId")
	}
	if wire["orgId"] != "org_1" {
		t.Errorf("orgId = %v", wire["orgId"])
	}
	if wire["type"] != evt.Type {
		t.Errorf("type = %v", wire["type"])
	}
	if wire["aggregateId"] != "789" {
		t.Errorf("aggregateId = %v", wire["aggregateId"])
	}
}

func TestSenderConnectionError(t *testing.T) {
	evt := testEvent()
	wh := &webhook.Webhook{
		ID:     id.NewWebhookID(),
		URL:    "http://127.0.0.1:1", // nothing listens here
		Secret: "whsec_test",
	}
	d := New(wh.ID, evt.ID, 6)

	res := NewSender(time.Second).Send(context.Background(), wh, evt, d)
	if res.StatusCode != 0 {
		t.Errorf("status = %d, want 0 for network failure", res.StatusCode)
	}
	if res.Error == "" {
		t.Error("expected an error message")
	}
}
