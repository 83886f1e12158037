package notify

import (
	"strings"
	"testing"
)

func TestRenderer_Links(t *testing.T) {
	r := NewRenderer("https://portal.example.com/")
	tok := strings.Repeat("a", 64)

	m, err := r.Verification("a@x.com", tok)
	if err != nil {
		t.Fatalf("Verification: %v", err)
	}
	if m.Link != "https://portal.example.com/auth/verify-email?token="+tok {
		t.Errorf("verification link = %q", m.Link)
	}
	if m.Subject == "" || !strings.Contains(m.Body, m.Link) || m.Kind != KindVerification {
		t.Errorf("verification message = %+v", m)
	}

	m, err = r.PasswordReset("a@x.com", tok)
	if err != nil {
		t.Fatalf("PasswordReset: %v", err)
	}
	if m.Link != "https://portal.example.com/auth/reset?token="+tok || !strings.Contains(m.Body, "1 hour") {
		t.Errorf("reset message = %+v", m)
	}
}

func TestRenderer_TwoFactorHasNoLink(t *testing.T) {
	m, err := NewRenderer("https://p").TwoFactor("a@x.com", "123456")
	if err != nil {
		t.Fatalf("TwoFactor: %v", err)
	}
	if m.Link != "" || m.Code != "123456" || !strings.Contains(m.Body, "123456") {
		t.Errorf("two-factor message = %+v", m)
	}
}
