package notify

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

const (
	verifyPath = "/auth/verify-email"
	resetPath  = "/auth/reset"
)

var bodies = template.Must(template.New("bodies").Parse(`
{{- define "verification" -}}
Confirm your email address by opening this link: {{.Link}}
The link expires in 24 hours.
{{- end -}}
{{- define "password-reset" -}}
Reset your password by opening this link: {{.Link}}
The link expires in 1 hour. If you did not ask for a reset, ignore this message.
{{- end -}}
{{- define "two-factor" -}}
Your sign-in code is {{.Code}}. It expires in 10 minutes.
{{- end -}}`))

var subjects = map[Kind]string{
	KindVerification:  "Confirm your email",
	KindPasswordReset: "Reset your password",
	KindTwoFactor:     "Your sign-in code",
}

// Renderer turns challenge values into messages. Links are built from BaseURL.
type Renderer struct {
	baseURL string
}

// NewRenderer returns a Renderer for links under baseURL (e.g. https://portal.example.com).
func NewRenderer(baseURL string) *Renderer {
	return &Renderer{baseURL: strings.TrimRight(baseURL, "/")}
}

// Verification renders the email verification message carrying token in a link.
func (r *Renderer) Verification(recipient, token string) (Message, error) {
	return r.render(Message{Kind: KindVerification, Recipient: recipient, Link: r.link(verifyPath, token)})
}

// PasswordReset renders the password reset message carrying token in a link.
func (r *Renderer) PasswordReset(recipient, token string) (Message, error) {
	return r.render(Message{Kind: KindPasswordReset, Recipient: recipient, Link: r.link(resetPath, token)})
}

// TwoFactor renders the two-factor code message.
func (r *Renderer) TwoFactor(recipient, code string) (Message, error) {
	return r.render(Message{Kind: KindTwoFactor, Recipient: recipient, Code: code})
}

func (r *Renderer) link(path, token string) string {
	return r.baseURL + path + "?token=" + url.QueryEscape(token)
}

func (r *Renderer) render(m Message) (Message, error) {
	var buf bytes.Buffer
	if err := bodies.ExecuteTemplate(&buf, string(m.Kind), m); err != nil {
		return Message{}, fmt.Errorf("notify: render %s: %w", m.Kind, err)
	}
	m.Subject = subjects[m.Kind]
	m.Body = buf.String()
	return m, nil
}
