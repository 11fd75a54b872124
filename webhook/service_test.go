package webhook_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lojix/backbone/store/memory"
	"github.com/lojix/backbone/webhook"
)

func TestRegisterGeneratesSecret(t *testing.T) {
	ctx := context.Background()
	svc := webhook.NewService(memory.New(), nil)

	wh, err := svc.Register(ctx, webhook.Input{
		OrgID:      "org_1",
		URL:        "https://example.test/hook",
		EventTypes: []string{"product.*"},
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !wh.Active {
		t.Error("new webhook not active")
	}
	if !strings.HasPrefix(wh.Secret, "whsec_") {
		t.Errorf("generated secret %q missing prefix", wh.Secret)
	}
	if wh.ID.IsNil() {
		t.Error("webhook got no ID")
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	svc := webhook.NewService(memory.New(), nil)

	tests := []struct {
		name  string
		input webhook.Input
		field string
	}{
		{
			"bad url",
			webhook.Input{OrgID: "org_1", URL: "not a url", EventTypes: []string{"*"}},
			"url",
		},
		{
			"no patterns",
			webhook.Input{OrgID: "org_1", URL: "https://example.test"},
			"event_types",
		},
		{
			"bad pattern",
			webhook.Input{OrgID: "org_1", URL: "https://example.test", EventTypes: []string{"prod*ct.created"}},
			"event_types",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.input)
			var verr *webhook.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if verr.Field != tt.field {
				t.Errorf("field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
}

func TestDeactivateActivate(t *testing.T) {
	ctx := context.Background()
	svc := webhook.NewService(memory.New(), nil)

	wh, err := svc.Register(ctx, webhook.Input{
		OrgID: "org_1", URL: "https://example.test", EventTypes: []string{"*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Deactivate(ctx, wh.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	got, _ := svc.Get(ctx, wh.ID)
	if got.Active {
		t.Error("webhook active after Deactivate")
	}

	if err := svc.Activate(ctx, wh.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	got, _ = svc.Get(ctx, wh.ID)
	if !got.Active {
		t.Error("webhook inactive after Activate")
	}
}

func TestRotateSecret(t *testing.T) {
	ctx := context.Background()
	svc := webhook.NewService(memory.New(), nil)

	wh, err := svc.Register(ctx, webhook.Input{
		OrgID: "org_1", URL: "https://example.test", EventTypes: []string{"*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.RotateSecret(ctx, wh.ID)
	if err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}
	if rotated == wh.Secret {
		t.Error("secret unchanged after rotation")
	}

	got, _ := svc.Get(ctx, wh.ID)
	if got.Secret != rotated {
		t.Error("rotated secret not persisted")
	}
}

func TestListScopedToOrg(t *testing.T) {
	ctx := context.Background()
	svc := webhook.NewService(memory.New(), nil)

	for _, org := range []string{"org_1", "org_1", "org_2"} {
		if _, err := svc.Register(ctx, webhook.Input{
			OrgID: org, URL: "https://example.test", EventTypes: []string{"*"},
		}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := svc.List(ctx, "org_1", webhook.ListOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("List returned %d, want 2", len(got))
	}
}
