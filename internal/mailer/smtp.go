package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	gomail "gopkg.in/mail.v2"
)

type SMTPMailer struct {
	fromEmail string
	dialer    *gomail.Dialer
	backoff   time.Duration
}

func NewSMTP(host string, port int, username, password, fromEmail string) *SMTPMailer {
	d := gomail.NewDialer(host, port, username, password)
	d.Timeout = dialTimeout
	return &SMTPMailer{
		fromEmail: fromEmail,
		dialer:    d,
		backoff:   time.Second,
	}
}

// Send renders templateFile and delivers it, retrying with a growing delay
// until ctx is done. The returned int is an HTTP-like status for the
// caller's logs.
func (m *SMTPMailer) Send(ctx context.Context, templateFile, username, email string, data any) (int, error) {
	msg, err := m.build(templateFile, username, email, data)
	if err != nil {
		return -1, err
	}

	var retryErr error
	for i := 0; i < maxRetires; i++ {
		if err := ctx.Err(); err != nil {
			return -1, fmt.Errorf("email not sent: %w", err)
		}
		retryErr = m.dialer.DialAndSend(msg)
		if retryErr == nil {
			return 200, nil
		}

		t := time.NewTimer(m.backoff * time.Duration(i+1))
		select {
		case <-ctx.Done():
			t.Stop()
			return -1, fmt.Errorf("email not sent after %d attempts: %w", i+1, errors.Join(ctx.Err(), retryErr))
		case <-t.C:
		}
	}
	return -1, fmt.Errorf("failed to send email after %d attempts: %w", maxRetires, retryErr)
}

func (m *SMTPMailer) build(templateFile, username, email string, data any) (*gomail.Message, error) {
	if email == "" {
		return nil, errors.New("recipient email is empty")
	}

	subject, body, err := Render(templateFile, data)
	if err != nil {
		return nil, err
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.fromEmail, FromName)
	msg.SetAddressHeader("To", email, username)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body)
	return msg, nil
}

// Render executes the "subject" and "body" blocks of an embedded template.
func Render(templateFile string, data any) (subject, body string, err error) {
	tmpl, err := template.ParseFS(FS, "templates/"+templateFile)
	if err != nil {
		return "", "", err
	}

	var s, b bytes.Buffer
	if err := tmpl.ExecuteTemplate(&s, "subject", data); err != nil {
		return "", "", err
	}
	if err := tmpl.ExecuteTemplate(&b, "body", data); err != nil {
		return "", "", err
	}
	return s.String(), b.String(), nil
}
