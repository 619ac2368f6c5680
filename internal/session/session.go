package session

import (
	"context"
	"strings"
	"time"

	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
)

// Taipei is the provider's local time. Taiwan has no daylight saving time.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// PaymentSession is one issued payment code for one invoice.
type PaymentSession struct {
	InvoiceID    string          `json:"invoice_id"`
	ProviderCode string          `json:"provider_code"`
	Method       smilepay.Method `json:"method"`
	AmountDue    decimal.Decimal `json:"amount_due"`
	// ExpiresAt is zero when the provider gave no usable deadline.
	ExpiresAt time.Time       `json:"expires_at"`
	CreatedAt time.Time       `json:"created_at"`
	Fields    smilepay.Fields `json:"fields"`
}

func (s *PaymentSession) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && s.ExpiresAt.Before(now)
}

// PaymentCode is the value the payer keys in for the session's method.
func (s *PaymentSession) PaymentCode() string {
	return s.Method.PaymentCode(s.Fields)
}

// Store persists payment sessions. Load hides expired sessions; Get does
// not and is meant for auditing. Both return nil, nil when nothing is stored.
type Store interface {
	Load(ctx context.Context, invoiceID string) (*PaymentSession, error)
	Get(ctx context.Context, invoiceID string) (*PaymentSession, error)
	Save(ctx context.Context, s *PaymentSession) error
	Delete(ctx context.Context, invoiceID string) error
}

// Clock returns the current time. Stores default to time.Now.
type Clock func() time.Time

var payEndLayouts = []struct {
	layout   string
	dateOnly bool
}{
	{"2006/01/02 15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006/01/02 15:04", false},
	{"2006/01/02", true},
	{"2006-01-02", true},
}

// ParsePayEndDate reads the PayEndDate value SmilePay returns, in Taipei
// time. A date without a time means the end of that day. Unparseable values
// yield the zero time.
func ParsePayEndDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	for _, l := range payEndLayouts {
		t, err := time.ParseInLocation(l.layout, raw, Taipei)
		if err != nil {
			continue
		}
		if l.dateOnly {
			t = t.Add(24*time.Hour - time.Second)
		}
		return t
	}
	return time.Time{}
}

// FormatPayEndDate is the inverse of ParsePayEndDate.
func FormatPayEndDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(Taipei).Format("2006/01/02 15:04:05")
}
