package billing

import (
	"errors"

	"smilepay/internal/smilepay"
)

var (
	// ErrConfig means the merchant setup cannot issue codes (missing
	// credentials, unsupported currency). Retrying will not help.
	ErrConfig = errors.New("smilepay configuration error")
	// ErrIssuanceFailed covers network, HTTP, parse and provider-reported
	// failures while requesting a payment code. Safe to retry.
	ErrIssuanceFailed = errors.New("payment code issuance failed")
	ErrInvalidMethod  = errors.New("payment method not available")

	ErrEmptyPayload      = errors.New("empty callback payload")
	ErrMalformedCallback = smilepay.ErrMalformedCallback
	ErrUnknownInvoice    = errors.New("unknown invoice")
	ErrAlreadyProcessed  = errors.New("callback already processed")
	ErrDigestMismatch    = errors.New("callback digest mismatch")
	ErrAmountMismatch    = errors.New("callback amount differs from invoice total")
)
