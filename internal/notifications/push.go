package notifications

import (
	"context"
	"errors"
	"fmt"

	"smilepay/internal/billing"

	"github.com/9ssi7/exponent"
)

// PushSender is the part of the Expo SDK the ops notifier needs.
type PushSender interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
}

type ExpoAdapter struct {
	client *exponent.Client
}

func NewExpoAdapter(c *exponent.Client) *ExpoAdapter {
	return &ExpoAdapter{client: c}
}

func (a *ExpoAdapter) Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	return a.client.Publish(ctx, msgs)
}

// OpsPush tells the billing team's devices that an invoice was paid.
type OpsPush struct {
	push   PushSender
	tokens []string
}

func NewOpsPush(push PushSender, tokens []string) *OpsPush {
	return &OpsPush{push: push, tokens: tokens}
}

func (o *OpsPush) Notify(ctx context.Context, template string, n billing.PaymentNotice) error {
	if template != billing.TemplatePaymentConfirmation {
		return nil
	}
	if len(o.tokens) == 0 {
		return errors.New("no ops push tokens")
	}

	title := "Invoice Paid"
	body := fmt.Sprintf("Invoice %s paid %s via %s", n.Invoice.ID, billing.FormatNTD(n.Settlement.Amount), n.MethodName)

	msgs := make([]*exponent.Message, 0, len(o.tokens))
	for _, t := range o.tokens {
		token := exponent.Token(t)
		msgs = append(msgs, &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: title,
			Body:  body,
			// the ops app opens the invoice screen from this payload
			Data: map[string]string{
				"type":          "invoice_paid",
				"invoiceId":     n.Invoice.ID,
				"transactionId": n.Settlement.TransactionID,
				"screen":        "invoice-detail-screen",
			},
		})
	}

	_, err := o.push.Publish(ctx, msgs)
	return err
}
