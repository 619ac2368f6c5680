package mailer

import (
	"context"
	"embed"
	"time"
)

const (
	FromName                    = "SmilePay Billing"
	maxRetires                  = 3
	dialTimeout                 = 5 * time.Second
	PaymentConfirmationTemplate = "payment_confirmation.tmpl"
)

//go:embed "templates"
var FS embed.FS

type Client interface {
	Send(ctx context.Context, templateFile, username, email string, data any) (int, error)
}
