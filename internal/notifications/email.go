package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"smilepay/internal/billing"
	"smilepay/internal/mailer"
	"smilepay/internal/session"

	"github.com/speps/go-hashids/v2"
)

// ReceiptNumbers turns settlement ids into short public receipt numbers.
type ReceiptNumbers struct {
	h *hashids.HashID
}

func NewReceiptNumbers(salt string) (*ReceiptNumbers, error) {
	hd := hashids.NewData()
	hd.Salt = salt
	hd.MinLength = 8
	h, err := hashids.NewWithData(hd)
	if err != nil {
		return nil, err
	}
	return &ReceiptNumbers{h: h}, nil
}

func (r *ReceiptNumbers) Encode(settlementID int64) (string, error) {
	return r.h.EncodeInt64([]int64{settlementID})
}

func (r *ReceiptNumbers) Decode(receipt string) (int64, error) {
	ids, err := r.h.DecodeInt64WithError(receipt)
	if err != nil {
		return 0, err
	}
	if len(ids) != 1 {
		return 0, fmt.Errorf("invalid receipt number %q", receipt)
	}
	return ids[0], nil
}

// DefaultEmailTimeout caps how long a confirmation may hold up the callback.
const DefaultEmailTimeout = 5 * time.Second

// Email sends the payment confirmation to the invoice's client.
type Email struct {
	mailer   mailer.Client
	receipts *ReceiptNumbers
	timeout  time.Duration
}

func NewEmail(m mailer.Client, receipts *ReceiptNumbers) *Email {
	return &Email{mailer: m, receipts: receipts, timeout: DefaultEmailTimeout}
}

var templateFiles = map[string]string{
	billing.TemplatePaymentConfirmation: mailer.PaymentConfirmationTemplate,
}

func (e *Email) Notify(ctx context.Context, template string, n billing.PaymentNotice) error {
	file, ok := templateFiles[template]
	if !ok {
		return fmt.Errorf("no email template for %q", template)
	}
	if n.Invoice.ClientEmail == "" {
		return errors.New("client has no email address")
	}

	receipt, err := e.receipts.Encode(n.Settlement.ID)
	if err != nil {
		return fmt.Errorf("receipt number: %w", err)
	}

	data := struct {
		InvoiceID     string
		ClientName    string
		ReceiptNo     string
		Amount        string
		Method        string
		TransactionID string
		PaidAt        string
	}{
		InvoiceID:     n.Invoice.ID,
		ClientName:    n.Invoice.ClientName,
		ReceiptNo:     receipt,
		Amount:        billing.FormatNTD(n.Settlement.Amount),
		Method:        n.MethodName,
		TransactionID: n.Settlement.TransactionID,
		PaidAt:        n.Settlement.PaidAt.In(session.Taipei).Format("2006-01-02 15:04:05"),
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if _, err := e.mailer.Send(ctx, file, n.Invoice.ClientName, n.Invoice.ClientEmail, data); err != nil {
		return err
	}
	return nil
}
