// Package mail delivers password reset messages.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/log"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends a message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// ResetMessage builds the password reset email. When baseURL is set the body
// contains a link to the reset page, otherwise the bare token.
func ResetMessage(to, name, token, baseURL string, expiresAt time.Time) Message {
	var b strings.Builder
	greeting := "Hello"
	if name != "" {
		greeting += " " + name
	}
	fmt.Fprintf(&b, "%s,\n\n", greeting)
	b.WriteString("We received a request to reset your password.\n\n")
	if baseURL != "" {
		fmt.Fprintf(&b, "Open this link to choose a new password:\n%s/reset-password?token=%s\n\n",
			strings.TrimRight(baseURL, "/"), url.QueryEscape(token))
	} else {
		fmt.Fprintf(&b, "Your reset token is: %s\n\n", token)
	}
	fmt.Fprintf(&b, "The token expires at %s UTC. If you did not ask for this, ignore this email.\n",
		expiresAt.UTC().Format("2006-01-02 15:04"))

	return Message{To: to, Subject: "Reset your password", Body: b.String()}
}

// LogMailer writes messages to the log instead of sending them. Used when no
// SMTP server is configured.
type LogMailer struct {
	logger *log.Logger
}

func NewLogMailer(logger *log.Logger) *LogMailer {
	return &LogMailer{logger: logger.WithComponent(log.ComponentMail)}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "Email not sent, no SMTP server configured",
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// SMTPConfig holds the SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends through an SMTP relay with PLAIN auth when credentials are set.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.sendMail(addr, auth, m.cfg.From, []string{msg.To}, m.render(msg)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func (m *SMTPMailer) render(msg Message) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return buf.Bytes()
}
