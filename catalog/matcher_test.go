package catalog

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern   string
		eventType string
		want      bool
	}{
		{"solicitacao.created", "solicitacao.created", true},
		{"solicitacao.created", "solicitacao.status_changed", false},
		{"solicitacao.*", "solicitacao.created", true},
		{"solicitacao.*", "solicitacao.status_changed", true},
		{"solicitacao.*", "solicitacaoextra.created", false},
		{"solicitacao.*", "solicitacao", false},
		{"*", "product.price_changed", true},
		{"*", "system.error", true},
		{"product.*", "product.price_changed", true},
		{"product.*", "inventory.completed", false},
		{"*.created", "product.created", true},
		{"*.created", "product.deleted", false},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.eventType); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.eventType, got, tt.want)
		}
	}
}

func TestValidPattern(t *testing.T) {
	tests := []struct {
		pattern string
		want    bool
	}{
		{"*", true},
		{"solicitacao.created", true},
		{"solicitacao.*", true},
		{"*.created", true},
		{"", false},
		{"solicitacao.", false},
		{".created", false},
		{"solicit*.created", false},
	}

	for _, tt := range tests {
		if got := ValidPattern(tt.pattern); got != tt.want {
			t.Errorf("ValidPattern(%q) = %v, want %v", tt.pattern, got, tt.want)
		}
	}
}
