package handlers

import (
	"context"
	"sync"
	"testing"

	"github.com/lojix/backbone/event"
	"github.com/lojix/backbone/id"
)

type push struct {
	userIDs []string
	title   string
	body    string
}

type fakePush struct {
	mu   sync.Mutex
	sent []push
}

func (f *fakePush) SendPush(_ context.Context, userIDs []string, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, push{userIDs: userIDs, title: title, body: body})
	return nil
}

type fakeDirectory struct {
	managers map[string][]string
	admins   []string
}

func (f *fakeDirectory) StoreManagers(_ context.Context, storeID string) ([]string, error) {
	return f.managers[storeID], nil
}

func (f *fakeDirectory) Admins(_ context.Context) ([]string, error) {
	return f.admins, nil
}

func notifEvent(eventType string, payload map[string]any) *event.Event {
	return &event.Event{ID: id.NewEventID(), Type: eventType, Payload: payload}
}

func TestNotifySolicitacaoCreated(t *testing.T) {
	sender := &fakePush{}
	dir := &fakeDirectory{managers: map[string][]string{"store_7": {"mgr_1", "mgr_2"}}}
	n := NewNotification(sender, dir, nil)

	evt := notifEvent("solicitacao.created", map[string]any{
		"solicitacaoId": "sol_1",
		"storeId":       "store_7",
		"ean":           "789",
		"quantity":      3,
		"requesterId":   "user_x",
	})
	if err := n.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d pushes, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if len(got.userIDs) != 2 {
		t.Errorf("notified %v, want both managers", got.userIDs)
	}
	if got.title == "" || got.body == "" {
		t.Error("empty push content")
	}
}

func TestNotifyStatusChangedTargetsRequester(t *testing.T) {
	sender := &fakePush{}
	n := NewNotification(sender, &fakeDirectory{}, nil)

	evt := notifEvent("solicitacao.status_changed", map[string]any{
		"solicitacaoId": "sol_1",
		"storeId":       "store_7",
		"oldStatus":     "open",
		"newStatus":     "approved",
		"requesterId":   "user_x",
	})
	if err := n.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(sender.sent) != 1 || len(sender.sent[0].userIDs) != 1 || sender.sent[0].userIDs[0] != "user_x" {
		t.Errorf("push = %+v, want exactly the requester", sender.sent)
	}
}

func TestNotifyStatusChangedWithoutRequesterIsSkipped(t *testing.T) {
	sender := &fakePush{}
	n := NewNotification(sender, &fakeDirectory{}, nil)

	evt := notifEvent("solicitacao.status_changed", map[string]any{
		"solicitacaoId": "sol_1",
		"storeId":       "store_7",
		"oldStatus":     "open",
		"newStatus":     "approved",
	})
	if err := n.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d pushes without a requester", len(sender.sent))
	}
}

func TestNotifySystemErrorSeverityGate(t *testing.T) {
	sender := &fakePush{}
	dir := &fakeDirectory{admins: []string{"admin_1"}}
	n := NewNotification(sender, dir, nil)

	info := notifEvent("system.error", map[string]any{
		"severity": "warning", "message": "disk filling", "component": "store",
	})
	if err := n.Handle(context.Background(), info); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("non-critical error paged the admins")
	}

	critical := notifEvent("system.error", map[string]any{
		"severity": "critical", "message": "store down", "component": "postgres",
	})
	if err := n.Handle(context.Background(), critical); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].userIDs[0] != "admin_1" {
		t.Errorf("critical error pushes = %+v", sender.sent)
	}
}
