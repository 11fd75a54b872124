package signature

import (
	"strings"
	"testing"
)

func TestSignDeterministic(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"product.created"}`)

	a := Sign(body, "whsec_test")
	b := Sign(body, "whsec_test")
	if a != b {
		t.Errorf("same input produced different signatures: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(a))
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := Sign(body, "secret")

	if !Verify(body, "secret", sig) {
		t.Error("valid signature rejected")
	}
	if Verify(body, "other", sig) {
		t.Error("signature accepted with wrong secret")
	}
	if Verify([]byte(`{"id":"evt_2"}`), "secret", sig) {
		t.Error("signature accepted for tampered body")
	}
	if Verify(body, "secret", sig[:10]) {
		t.Error("truncated signature accepted")
	}
}

func TestGenerateSecret(t *testing.T) {
	a := GenerateSecret()
	b := GenerateSecret()

	if !strings.HasPrefix(a, "whsec_") {
		t.Errorf("secret %q missing whsec_ prefix", a)
	}
	if a == b {
		t.Error("two generated secrets are identical")
	}
}
