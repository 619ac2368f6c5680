package smilepay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Bodies SmilePay expects in reply to a notification.
const (
	AckOK    = "<Roturlstatus>SmilePay_OK</Roturlstatus>"
	AckError = "<Roturlstatus>ERROR</Roturlstatus>"
)

var ErrMalformedCallback = errors.New("smilepay: malformed callback")

var requiredCallbackFields = []string{"Od_sob", "Amount", "Response_id", "Smseid"}

// CallbackEvent is one payment notification from SmilePay.
type CallbackEvent struct {
	InvoiceRef     string
	TransactionID  string
	ResponseID     string
	Amount         decimal.Decimal
	PurchaseAmount decimal.Decimal
	Fee            decimal.Decimal
	TraceID        string
	PaymentNo      string
	Digest         string
	Classif        string
	ProcessDate    string
	ProcessTime    string
	AuthCode       string
	ErrDesc        string
}

// ParseCallback reads the notification fields. Od_sob, Amount, Response_id
// and Smseid must be present; the invoice reference falls back to Data_id
// when Od_sob is empty.
func ParseCallback(values map[string]string) (*CallbackEvent, error) {
	for _, key := range requiredCallbackFields {
		if _, ok := values[key]; !ok {
			return nil, fmt.Errorf("%w: missing required field %s", ErrMalformedCallback, key)
		}
	}

	get := func(key string) string { return strings.TrimSpace(values[key]) }

	ev := &CallbackEvent{
		InvoiceRef:  get("Od_sob"),
		ResponseID:  get("Response_id"),
		TraceID:     get("Smseid"),
		PaymentNo:   get("Payment_no"),
		Digest:      get("Mid_smilepay"),
		Classif:     get("Classif"),
		ProcessDate: get("Process_date"),
		ProcessTime: get("Process_time"),
		AuthCode:    get("Auth_code"),
		ErrDesc:     get("Errdesc"),
	}
	if ev.InvoiceRef == "" {
		ev.InvoiceRef = get("Data_id")
	}
	if ev.InvoiceRef == "" {
		return nil, fmt.Errorf("%w: Od_sob and Data_id are both empty", ErrMalformedCallback)
	}

	amount, err := decimal.NewFromString(get("Amount"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid Amount %q", ErrMalformedCallback, values["Amount"])
	}
	ev.Amount = amount

	ev.PurchaseAmount = amount
	if raw := get("Purchamt"); raw != "" {
		if pa, err := decimal.NewFromString(raw); err == nil {
			ev.PurchaseAmount = pa
		}
	}

	if raw := get("Fee"); raw != "" {
		if fee, err := decimal.NewFromString(raw); err == nil {
			ev.Fee = fee
		}
	}

	ev.TransactionID = ev.PaymentNo
	if ev.TransactionID == "" {
		ev.TransactionID = ev.TraceID
	}

	return ev, nil
}

// Succeeded reports an authorised payment with a positive amount.
func (ev *CallbackEvent) Succeeded() bool {
	return ev.ResponseID == "1" && ev.Amount.IsPositive()
}

// FailureReason describes why a notification did not settle the invoice.
func (ev *CallbackEvent) FailureReason() string {
	var reason string
	switch {
	case ev.ResponseID == "0":
		reason = "authorization failed"
	case ev.ResponseID != "1":
		reason = "unexpected result code " + ev.ResponseID
	default:
		reason = "zero amount"
	}
	if ev.ErrDesc != "" {
		reason += " - " + ev.ErrDesc
	}
	return reason
}

// MethodName is the readable name of the settling channel.
func (ev *CallbackEvent) MethodName() string {
	return ClassifName(ev.Classif)
}
