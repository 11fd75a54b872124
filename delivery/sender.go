package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/signature"
	"github.com/lojix/backbone/webhook"
)

const maxDrainBody = 4096 // drain at most 4KB of the response for keep-alive reuse

// envelope is the wire format POSTed to webhook endpoints. The acting user
// is deliberately excluded: external receivers get tenancy, not identity.
type envelope struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
	AggregateType string         `json:"aggregateType"`
	AggregateID   string         `json:"aggregateId"`
	OrgID         string         `json:"orgId,omitempty"`
	CorrelationID string         `json:"correlationId,omitempty"`
}

// Sender performs the HTTP POST of one event to one webhook.
type Sender struct {
	client *http.Client
}

// NewSender creates a sender with the given per-request timeout.
func NewSender(timeout time.Duration) *Sender {
	return &Sender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers evt to wh and returns the attempt result. The body is the
// event envelope as JSON; X-Signature carries the hex HMAC-SHA256 of the
// raw body under the webhook's secret.
func (s *Sender) Send(ctx context.Context, wh *webhook.Webhook, evt *event.Event, d *Delivery) Result {
	body, err := json.Marshal(envelope{
		ID:            evt.ID.String(),
		Type:          evt.Type,
		Payload:       evt.Payload,
		Timestamp:     evt.Timestamp,
		AggregateType: evt.AggregateType,
		AggregateID:   evt.AggregateID,
		OrgID:         evt.OrgID,
		CorrelationID: evt.CorrelationID,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal envelope: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "backbone/1.0")
	req.Header.Set("X-Event-Id", evt.ID.String())
	req.Header.Set("X-Event-Type", evt.Type)
	req.Header.Set("X-Delivery-Id", d.ID.String())
	req.Header.Set("X-Signature", signature.Sign(body, wh.Secret))

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBody))

	return Result{
		StatusCode: resp.StatusCode,
		LatencyMs:  int(latency),
	}
}
