package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smilepay/internal/domain/settlements"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type DigestPolicy string

const (
	DigestWarn   DigestPolicy = "warn"
	DigestReject DigestPolicy = "reject"
)

// ParseDigestPolicy defaults to DigestWarn.
func ParseDigestPolicy(s string) (DigestPolicy, error) {
	switch DigestPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", DigestWarn:
		return DigestWarn, nil
	case DigestReject:
		return DigestReject, nil
	}
	return "", fmt.Errorf("unknown digest policy %q", s)
}

// defaultMerchantParam is the placeholder that disables digest checks.
const defaultMerchantParam = "0000"

type ReconcilerConfig struct {
	// MerchantParam is the merchant verification parameter used in Mid_smilepay.
	MerchantParam   string
	DigestPolicy    DigestPolicy
	AmountTolerance decimal.Decimal
}

func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		DigestPolicy:    DigestWarn,
		AmountTolerance: decimal.RequireFromString("0.01"),
	}
}

type Outcome string

const (
	OutcomePaid             Outcome = "paid"
	OutcomeFailedNoted      Outcome = "failed_noted"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeUnknownInvoice   Outcome = "unknown_invoice"
	OutcomeDigestRejected   Outcome = "digest_rejected"
	OutcomeEmptyPayload     Outcome = "empty_payload"
	OutcomeError            Outcome = "error"
)

// Result is what the HTTP layer replies with. Ack is the whole body.
type Result struct {
	Ack           string
	Status        int
	Outcome       Outcome
	InvoiceID     string
	TransactionID string
	Err           error
	Warnings      []error
}

// Reconciler applies SmilePay payment notifications to invoices.
type Reconciler struct {
	cfg      ReconcilerConfig
	invoices InvoiceReader
	ledger   SettlementLedger
	notifier Notifier
	activity ActivityLogger
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewReconciler(
	cfg ReconcilerConfig,
	invoices InvoiceReader,
	ledger SettlementLedger,
	notifier Notifier,
	activity ActivityLogger,
	logger *zap.SugaredLogger,
) *Reconciler {
	if cfg.DigestPolicy == "" {
		cfg.DigestPolicy = DigestWarn
	}
	return &Reconciler{
		cfg:      cfg,
		invoices: invoices,
		ledger:   ledger,
		notifier: notifier,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Reconcile never returns a 5xx. Storage failures reply with the ERROR ack
// so SmilePay delivers the notification again.
func (r *Reconciler) Reconcile(ctx context.Context, values map[string]string) Result {
	if len(values) == 0 {
		r.logger.Warnw("smilepay callback with empty payload")
		return Result{Ack: smilepay.AckError, Status: http.StatusBadRequest, Outcome: OutcomeEmptyPayload, Err: ErrEmptyPayload}
	}

	ev, err := smilepay.ParseCallback(values)
	if err != nil {
		r.logger.Warnw("smilepay callback rejected", "err", err, "od_sob", values["Od_sob"], "trace_id", values["Smseid"])
		return accepted(OutcomeMalformed, "", "", err)
	}

	log := r.logger.With("invoice_id", ev.InvoiceRef, "transaction_id", ev.TransactionID, "trace_id", ev.TraceID)

	inv, err := r.invoices.GetByID(ctx, ev.InvoiceRef)
	if err != nil {
		return r.failed(log, ev, fmt.Errorf("load invoice: %w", err))
	}
	if inv == nil {
		log.Warnw("smilepay callback for unknown invoice")
		return accepted(OutcomeUnknownInvoice, ev.InvoiceRef, ev.TransactionID, ErrUnknownInvoice)
	}

	var warnings []error

	if diff := inv.Total.Sub(ev.Amount).Abs(); diff.GreaterThan(r.cfg.AmountTolerance) {
		log.Warnw("callback amount differs from invoice total",
			"invoice_total", inv.Total.String(), "amount", ev.Amount.String(), "diff", diff.String())
		warnings = append(warnings, fmt.Errorf("%w: invoice %s, callback %s", ErrAmountMismatch, inv.Total, ev.Amount))
	}

	// SmilePay signs the purchase amount, which stays put when a fee is
	// deducted from Amount.
	if r.digestEnabled() && ev.Digest != "" {
		if !smilepay.VerifyDigest(r.cfg.MerchantParam, ev.PurchaseAmount, ev.TraceID, ev.Digest) {
			mismatch := fmt.Errorf("%w: got %s, want %d", ErrDigestMismatch, ev.Digest,
				smilepay.ComputeDigest(r.cfg.MerchantParam, ev.PurchaseAmount, ev.TraceID))
			if r.cfg.DigestPolicy == DigestReject {
				log.Warnw("callback rejected on digest mismatch", "err", mismatch)
				r.activity.Log(ctx, inv.ID, "SmilePay Callback Rejected - Digest mismatch, Trace ID: "+ev.TraceID)
				res := accepted(OutcomeDigestRejected, inv.ID, ev.TransactionID, mismatch)
				res.Warnings = warnings
				return res
			}
			log.Warnw("callback digest mismatch, continuing", "err", mismatch)
			warnings = append(warnings, mismatch)
		}
	}

	settled, err := r.ledger.IsSettled(ctx, inv.ID, ev.TransactionID)
	if err != nil {
		return r.failed(log, ev, fmt.Errorf("check settlement: %w", err))
	}
	if settled || inv.IsPaid() {
		log.Infow("smilepay callback already processed", "status", inv.Status)
		res := accepted(OutcomeAlreadyProcessed, inv.ID, ev.TransactionID, ErrAlreadyProcessed)
		res.Warnings = warnings
		return res
	}

	var res Result
	if ev.Succeeded() {
		res = r.settle(ctx, log, inv.ID, ev)
	} else {
		res = r.recordFailure(ctx, log, inv.ID, ev)
	}
	res.Warnings = warnings
	return res
}

func (r *Reconciler) settle(ctx context.Context, log *zap.SugaredLogger, invoiceID string, ev *smilepay.CallbackEvent) Result {
	now := r.now()
	s := &settlements.Settlement{
		InvoiceID:     invoiceID,
		TransactionID: ev.TransactionID,
		Amount:        ev.Amount,
		Fee:           ev.Fee,
		Method:        ev.MethodName(),
		TraceID:       ev.TraceID,
		PaidAt:        now,
	}

	applied, err := r.ledger.ApplySettlement(ctx, s, successNote(ev, now))
	if err != nil {
		return r.failed(log, ev, err)
	}
	if !applied {
		log.Infow("smilepay settlement not applied, invoice settled or no longer payable")
		return accepted(OutcomeAlreadyProcessed, invoiceID, ev.TransactionID, ErrAlreadyProcessed)
	}

	log.Infow("invoice paid via smilepay", "amount", ev.Amount.String(), "fee", ev.Fee.String(), "method", s.Method)
	r.activity.Log(ctx, invoiceID, fmt.Sprintf(
		"SmilePay Payment Success - Invoice: %s, Transaction: %s, Amount: %s",
		invoiceID, ev.TransactionID, ev.Amount.StringFixed(0),
	))

	// re-read so the notice carries the Paid invoice
	inv, err := r.invoices.GetByID(ctx, invoiceID)
	if err != nil || inv == nil {
		log.Warnw("reload paid invoice for notification", "err", err)
	} else if err := r.notifier.Notify(ctx, TemplatePaymentConfirmation, PaymentNotice{
		Invoice:    inv,
		Settlement: s,
		MethodName: s.Method,
	}); err != nil {
		log.Errorw("payment confirmation not sent", "err", err)
	}

	return accepted(OutcomePaid, invoiceID, ev.TransactionID, nil)
}

func (r *Reconciler) recordFailure(ctx context.Context, log *zap.SugaredLogger, invoiceID string, ev *smilepay.CallbackEvent) Result {
	reason := ev.FailureReason()
	recorded, err := r.ledger.RecordFailure(ctx, invoiceID, ev.TransactionID, reason, failureNote(ev, r.now()))
	if err != nil {
		return r.failed(log, ev, err)
	}

	log.Infow("smilepay payment not completed",
		"response_id", ev.ResponseID, "reason", reason, "amount", ev.Amount.String(), "recorded", recorded)
	if recorded {
		r.activity.Log(ctx, invoiceID, fmt.Sprintf(
			"SmilePay Payment Failed - Invoice: %s, Trace ID: %s, Reason: %s",
			invoiceID, ev.TraceID, reason,
		))
	}
	return accepted(OutcomeFailedNoted, invoiceID, ev.TransactionID, nil)
}

func (r *Reconciler) digestEnabled() bool {
	p := strings.TrimSpace(r.cfg.MerchantParam)
	return p != "" && p != defaultMerchantParam
}

func (r *Reconciler) failed(log *zap.SugaredLogger, ev *smilepay.CallbackEvent, err error) Result {
	log.Errorw("smilepay callback not applied", "err", err)
	return Result{
		Ack:           smilepay.AckError,
		Status:        http.StatusOK,
		Outcome:       OutcomeError,
		InvoiceID:     ev.InvoiceRef,
		TransactionID: ev.TransactionID,
		Err:           err,
	}
}

func accepted(o Outcome, invoiceID, txID string, err error) Result {
	return Result{
		Ack:           smilepay.AckOK,
		Status:        http.StatusOK,
		Outcome:       o,
		InvoiceID:     invoiceID,
		TransactionID: txID,
		Err:           err,
	}
}

// IsInformational reports results that are not worth an error log upstream.
func (res Result) IsInformational() bool {
	return res.Err == nil || errors.Is(res.Err, ErrAlreadyProcessed)
}
