package webhook

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/lojix/backbone/catalog"
	"github.com/lojix/backbone/id"
	"github.com/lojix/backbone/internal/entity"
	"github.com/lojix/backbone/signature"
)

// Service exposes the webhook management operations used by the admin layer.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a new webhook service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		logger: logger,
	}
}

// Register creates a new webhook. A signing secret is generated when the
// input does not provide one.
func (svc *Service) Register(ctx context.Context, in Input) (*Webhook, error) {
	if _, err := url.ParseRequestURI(in.URL); err != nil {
		return nil, &ValidationError{Field: "url", Message: "invalid URL"}
	}

	if len(in.EventTypes) == 0 {
		return nil, &ValidationError{Field: "event_types", Message: "at least one event type pattern required"}
	}
	for _, p := range in.EventTypes {
		if !catalog.ValidPattern(p) {
			return nil, &ValidationError{Field: "event_types", Message: "invalid pattern " + p}
		}
	}

	secret := in.Secret
	if secret == "" {
		secret = signature.GenerateSecret()
	}

	wh := &Webhook{
		Entity:     entity.New(),
		ID:         id.NewWebhookID(),
		OrgID:      in.OrgID,
		URL:        in.URL,
		Secret:     secret,
		EventTypes: in.EventTypes,
		Active:     true,
		RateLimit:  in.RateLimit,
	}

	if err := svc.store.CreateWebhook(ctx, wh); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook registered",
		"webhook_id", wh.ID, "org_id", wh.OrgID, "patterns", wh.EventTypes)

	return wh, nil
}

// Get returns a webhook by ID.
func (svc *Service) Get(ctx context.Context, whID id.ID) (*Webhook, error) {
	return svc.store.GetWebhook(ctx, whID)
}

// List returns the webhooks of an organization.
func (svc *Service) List(ctx context.Context, orgID string, opts ListOpts) ([]*Webhook, error) {
	return svc.store.ListWebhooks(ctx, orgID, opts)
}

// Deactivate stops deliveries to a webhook. Pending deliveries already
// enqueued are failed by the engine when it observes the inactive flag.
func (svc *Service) Deactivate(ctx context.Context, whID id.ID) error {
	return svc.store.SetActive(ctx, whID, false)
}

// Activate re-enables deliveries to a webhook.
func (svc *Service) Activate(ctx context.Context, whID id.ID) error {
	return svc.store.SetActive(ctx, whID, true)
}

// RotateSecret generates a new signing secret for a webhook and returns it.
func (svc *Service) RotateSecret(ctx context.Context, whID id.ID) (string, error) {
	wh, err := svc.store.GetWebhook(ctx, whID)
	if err != nil {
		return "", err
	}

	wh.Secret = signature.GenerateSecret()
	wh.Touch()
	if err := svc.store.UpdateWebhook(ctx, wh); err != nil {
		return "", err
	}

	return wh.Secret, nil
}

// ValidationError indicates invalid registration input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
