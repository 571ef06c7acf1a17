package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/yuin/goldmark"

	"git.home.luguber.info/inful/bookbuilder/internal/config"
)

// Mailer delivers status updates over SMTP for flows without a review
// issue. Bodies are rendered from markdown to HTML.
type Mailer struct {
	cfg  config.MailConfig
	to   []string
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewMailer assembles the mail sink.
func NewMailer(cfg config.MailConfig, recipients []string) *Mailer {
	return &Mailer{cfg: cfg, to: recipients, send: smtp.SendMail}
}

// Notify renders and sends one mail. Mail carries no chaining identifier.
func (m *Mailer) Notify(_ context.Context, update Update) (int64, error) {
	if !m.cfg.Enabled || len(m.to) == 0 {
		return 0, nil
	}
	subject := fmt.Sprintf("[%s] %s", update.Kind, update.Title)
	body, err := renderMailBody(update)
	if err != nil {
		return 0, err
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(m.to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	if err := m.send(addr, auth, m.cfg.From, m.to, msg.Bytes()); err != nil {
		return 0, fmt.Errorf("send mail: %w", err)
	}
	return 0, nil
}

// renderMailBody converts the update's markdown content into an HTML
// document body.
func renderMailBody(update Update) (string, error) {
	var md strings.Builder
	fmt.Fprintf(&md, "## %s\n\n", update.Title)
	if update.Repo != "" {
		fmt.Fprintf(&md, "Repository: `%s`", update.Repo)
		if update.Commit != "" {
			fmt.Fprintf(&md, " at `%s`", update.Commit)
		}
		md.WriteString("\n\n")
	}
	if update.Message != "" {
		md.WriteString(update.Message + "\n")
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &html); err != nil {
		return "", fmt.Errorf("render mail body: %w", err)
	}
	return "<html><body>" + html.String() + "</body></html>", nil
}
