package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"github.com/yuto-kimura/salonbook/services/notify-worker/internal/delivery"
)

// EmailSender sends via unauthenticated SMTP (Mailpit-compatible).
type EmailSender struct {
	host string
	addr string
	from string
}

func NewEmailSender(host, port, from string) *EmailSender {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	from = strings.TrimSpace(from)
	if from == "" {
		from = "no-reply@salonbook.local"
	}
	return &EmailSender{
		host: host,
		addr: fmt.Sprintf("%s:%s", host, port),
		from: from,
	}
}

func (s *EmailSender) Name() string { return "email" }

// Send runs the SMTP conversation over a context-bound connection so a
// hung server cannot outlive the per-attempt timeout.
func (s *EmailSender) Send(ctx context.Context, p delivery.Payload) error {
	if strings.TrimSpace(p.CustomerEmail) == "" {
		return errors.New("delivery has no recipient email")
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close()

	if err := client.Mail(s.from); err != nil {
		return err
	}
	if err := client.Rcpt(p.CustomerEmail); err != nil {
		return err
	}
	wc, err := client.Data()
	if err != nil {
		return err
	}
	msg := buildMessage(s.from, p.CustomerEmail, Subject(p), Body(p))
	if _, err := wc.Write([]byte(msg)); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) string {
	// Minimal RFC 5322 message; enough for Mailpit and most SMTP relays.
	return fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		from,
		to,
		subject,
		body,
	)
}
