// Package mail renders and delivers transactional email.
package mail

import (
	"bytes"
	"fmt"
	"net/smtp"
	"text/template"

	"github.com/vitapersonal/authserver/config"
)

// Sender delivers a single email. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(to, subject, body string) error
}

// SMTPSender delivers email over SMTP with plain authentication.
type SMTPSender struct {
	cfg config.SMTPConfig
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers the message to a single recipient.
func (s *SMTPSender) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		s.cfg.FromName, s.cfg.From, to, subject, body)

	return smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg))
}

// ResetEmailParams is passed as data when executing the reset email
// template.
type ResetEmailParams struct {
	Name     string
	ResetURL string
	Sender   string
}

// resetEmailTemplate is the body of the password reset email.
var resetEmailTemplate = template.Must(template.New("reset").Parse(`Hi {{.Name}},

Someone requested a password reset for your account. To choose a new
password, open this link:

{{.ResetURL}}

If you did not request a reset, you can ignore this email.


Regards,

{{.Sender}}
`))

// ResetEmailSubject is the subject line of the password reset email.
const ResetEmailSubject = "Reset your password"

// RenderResetEmail renders the password reset email body.
func RenderResetEmail(params ResetEmailParams) (string, error) {
	var buf bytes.Buffer
	if err := resetEmailTemplate.Execute(&buf, params); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ResetURL builds the public-facing URL for a reset hash.
func ResetURL(external config.ExternalConfig, hash string) string {
	return fmt.Sprintf("%s://%s/password_reset/%s", external.Scheme, external.Domain, hash)
}
