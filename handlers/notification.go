package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lojix/backbone/event"
)

// Notification turns operational events into push notifications for the
// people who need to act on them. Failures are best effort; a push that
// cannot be sent is logged and never retried.
type Notification struct {
	push      PushSender
	directory Directory
	logger    *slog.Logger
}

// NewNotification creates the notification handler.
func NewNotification(push PushSender, directory Directory, logger *slog.Logger) *Notification {
	return &Notification{push: push, directory: directory, logger: logger}
}

// Patterns returns the event types this handler subscribes to.
func (n *Notification) Patterns() []string {
	return []string{
		"solicitacao.created",
		"solicitacao.status_changed",
		"inventory.completed",
		"system.error",
	}
}

// Handle routes the event to the matching notification.
func (n *Notification) Handle(ctx context.Context, evt *event.Event) error {
	switch evt.Type {
	case "solicitacao.created":
		return n.solicitacaoCreated(ctx, evt)
	case "solicitacao.status_changed":
		return n.statusChanged(ctx, evt)
	case "inventory.completed":
		return n.inventoryCompleted(ctx, evt)
	case "system.error":
		return n.systemError(ctx, evt)
	}
	return nil
}

func (n *Notification) solicitacaoCreated(ctx context.Context, evt *event.Event) error {
	storeID := str(evt.Payload, "storeId")
	managers, err := n.directory.StoreManagers(ctx, storeID)
	if err != nil {
		return fmt.Errorf("resolve store managers: %w", err)
	}
	if len(managers) == 0 {
		return nil
	}
	body := fmt.Sprintf("Produto %s, quantidade %v", str(evt.Payload, "ean"), evt.Payload["quantity"])
	return n.push.SendPush(ctx, managers, "Nova solicitação de mercadoria", body)
}

func (n *Notification) statusChanged(ctx context.Context, evt *event.Event) error {
	requester := str(evt.Payload, "requesterId")
	if requester == "" {
		return nil
	}
	body := fmt.Sprintf("Solicitação %s agora está: %s",
		str(evt.Payload, "solicitacaoId"), str(evt.Payload, "newStatus"))
	return n.push.SendPush(ctx, []string{requester}, "Solicitação atualizada", body)
}

func (n *Notification) inventoryCompleted(ctx context.Context, evt *event.Event) error {
	storeID := str(evt.Payload, "storeId")
	managers, err := n.directory.StoreManagers(ctx, storeID)
	if err != nil {
		return fmt.Errorf("resolve store managers: %w", err)
	}
	if len(managers) == 0 {
		return nil
	}
	body := fmt.Sprintf("Contagem %s finalizada", str(evt.Payload, "countId"))
	return n.push.SendPush(ctx, managers, "Inventário concluído", body)
}

// systemError only pages on critical severity; lesser severities stay
// in the logs.
func (n *Notification) systemError(ctx context.Context, evt *event.Event) error {
	if str(evt.Payload, "severity") != "critical" {
		return nil
	}
	admins, err := n.directory.Admins(ctx)
	if err != nil {
		return fmt.Errorf("resolve admins: %w", err)
	}
	if len(admins) == 0 {
		return nil
	}
	body := fmt.Sprintf("[%s] %s", str(evt.Payload, "component"), str(evt.Payload, "message"))
	return n.push.SendPush(ctx, admins, "Erro crítico no sistema", body)
}

// str reads a payload field as a string, tolerating absent keys.
func str(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
