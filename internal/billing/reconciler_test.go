package billing

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/settlements"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcilerFixture struct {
	r        *Reconciler
	book     *fakeBook
	notifier *fakeNotifier
	activity *fakeActivity
}

func newReconcilerFixture(cfg ReconcilerConfig, invs ...*invoices.Invoice) *reconcilerFixture {
	f := &reconcilerFixture{
		book:     newFakeBook(invs...),
		notifier: &fakeNotifier{},
		activity: &fakeActivity{},
	}
	f.r = NewReconciler(cfg, f.book, f.book, f.notifier, f.activity, testLogger())
	f.r.now = func() time.Time { return testNow }
	return f
}

func successCallback(invoiceID, paymentNo, amount string) map[string]string {
	return map[string]string{
		"Od_sob":       invoiceID,
		"Amount":       amount,
		"Purchamt":     amount,
		"Response_id":  "1",
		"Smseid":       "SM20240510A" + paymentNo,
		"Payment_no":   paymentNo,
		"Classif":      "B",
		"Process_date": "2024/05/10",
		"Process_time": "09:12:44",
		"Fee":          "15",
	}
}

func failureCallback(invoiceID, smseid string) map[string]string {
	return map[string]string{
		"Od_sob":      invoiceID,
		"Amount":      "0",
		"Purchamt":    "1000",
		"Response_id": "0",
		"Smseid":      smseid,
		"Classif":     "E",
		"Errdesc":     "card declined",
	}
}

func TestReconcileSuccessMarksPaid(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))

	res := f.r.Reconcile(context.Background(), successCallback("INV-1", "P001", "1000"))

	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.NoError(t, res.Err)
	assert.Empty(t, res.Warnings)

	inv := f.book.invoice("INV-1")
	assert.Equal(t, invoices.StatusPaid, inv.Status)
	assert.Contains(t, inv.Notes, "Customer reference 42")
	assert.Contains(t, inv.Notes, "=== SmilePay Payment Completed ===")
	assert.Contains(t, inv.Notes, "Transaction No: P001")
	assert.Contains(t, inv.Notes, "Payment Method: ATM Virtual Account")
	assert.Contains(t, inv.Notes, "Fee: NT$ 15")

	require.Equal(t, 1, f.book.settlementCount())
	s := f.book.settlements[0]
	assert.Equal(t, "P001", s.TransactionID)
	assert.True(t, decimal.NewFromInt(15).Equal(s.Fee))

	require.Equal(t, 1, f.notifier.count())
	assert.Equal(t, TemplatePaymentConfirmation, f.notifier.sent[0].template)
	assert.True(t, f.notifier.sent[0].notice.Invoice.IsPaid())
}

func TestReconcileDuplicateDeliverySettlesOnce(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	cb := successCallback("INV-1", "P001", "1000")

	first := f.r.Reconcile(context.Background(), cb)
	second := f.r.Reconcile(context.Background(), cb)

	assert.Equal(t, OutcomePaid, first.Outcome)
	assert.Equal(t, OutcomeAlreadyProcessed, second.Outcome)
	assert.Equal(t, smilepay.AckOK, second.Ack)
	assert.ErrorIs(t, second.Err, ErrAlreadyProcessed)
	assert.True(t, second.IsInformational())
	assert.Equal(t, 1, f.book.settlementCount())
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileConcurrentDuplicatesSettleOnce(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	cb := successCallback("INV-1", "P001", "1000")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := f.r.Reconcile(context.Background(), cb)
			assert.Equal(t, smilepay.AckOK, res.Ack)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.book.settlementCount())
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileFailureThenSuccess(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	ctx := context.Background()

	res := f.r.Reconcile(ctx, failureCallback("INV-1", "SM0001"))
	assert.Equal(t, OutcomeFailedNoted, res.Outcome)
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.NoError(t, res.Err)

	inv := f.book.invoice("INV-1")
	assert.Equal(t, invoices.StatusUnpaid, inv.Status)
	assert.Contains(t, inv.Notes, "=== SmilePay Payment Failed ===")
	assert.Contains(t, inv.Notes, "Reason: authorization failed - card declined")
	assert.Contains(t, inv.Notes, "Attempted Amount: NT$ 1,000")
	assert.Contains(t, inv.Notes, "Payment Method: 7-11 ibon")

	res = f.r.Reconcile(ctx, successCallback("INV-1", "P002", "1000"))
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, invoices.StatusPaid, f.book.invoice("INV-1").Status)
	assert.Equal(t, 1, f.book.settlementCount())
}

func TestReconcileDuplicateFailureNotedOnce(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	cb := failureCallback("INV-1", "SM0001")

	f.r.Reconcile(context.Background(), cb)
	notes := f.book.invoice("INV-1").Notes
	res := f.r.Reconcile(context.Background(), cb)

	assert.Equal(t, OutcomeFailedNoted, res.Outcome)
	assert.Equal(t, notes, f.book.invoice("INV-1").Notes)
	assert.Len(t, f.activity.messages(), 1)
}

func TestReconcileAfterPaidHasNoSideEffects(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	ctx := context.Background()

	require.Equal(t, OutcomePaid, f.r.Reconcile(ctx, successCallback("INV-1", "P001", "1000")).Outcome)
	notes := f.book.invoice("INV-1").Notes

	later := []map[string]string{
		successCallback("INV-1", "P002", "1000"),
		failureCallback("INV-1", "SM0009"),
	}
	for _, cb := range later {
		res := f.r.Reconcile(ctx, cb)
		assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
		assert.Equal(t, smilepay.AckOK, res.Ack)
	}

	assert.Equal(t, 1, f.book.settlementCount())
	assert.Equal(t, 1, f.notifier.count())
	assert.Equal(t, notes, f.book.invoice("INV-1").Notes)
	assert.Equal(t, invoices.StatusPaid, f.book.invoice("INV-1").Status)
}

// staleInvoices serves a snapshot read before another delivery settled it.
type staleInvoices struct{ inv invoices.Invoice }

func (s staleInvoices) GetByID(context.Context, string) (*invoices.Invoice, error) {
	cp := s.inv
	return &cp, nil
}

func TestReconcileFailureRacingSettlementLeavesPaidInvoice(t *testing.T) {
	book := newFakeBook(unpaidInvoice("INV-1", "1000"))
	snapshot := book.invoice("INV-1")

	applied, err := book.ApplySettlement(context.Background(), &settlements.Settlement{
		InvoiceID: "INV-1", TransactionID: "P001", Amount: decimal.NewFromInt(1000), PaidAt: testNow,
	}, "paid")
	require.NoError(t, err)
	require.True(t, applied)
	notes := book.invoice("INV-1").Notes

	activity := &fakeActivity{}
	r := NewReconciler(DefaultReconcilerConfig(), staleInvoices{inv: snapshot}, book, &fakeNotifier{}, activity, testLogger())
	r.now = func() time.Time { return testNow }

	res := r.Reconcile(context.Background(), failureCallback("INV-1", "SM0001"))
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.Equal(t, notes, book.invoice("INV-1").Notes)
	assert.Equal(t, invoices.StatusPaid, book.invoice("INV-1").Status)
	assert.Empty(t, activity.messages())
}

func TestReconcileSkipsInvoiceNotAwaitingPayment(t *testing.T) {
	inv := unpaidInvoice("INV-1", "1000")
	inv.Status = invoices.StatusCancelled
	f := newReconcilerFixture(DefaultReconcilerConfig(), inv)

	res := f.r.Reconcile(context.Background(), successCallback("INV-1", "P001", "1000"))
	assert.Equal(t, OutcomeAlreadyProcessed, res.Outcome)
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.Equal(t, invoices.StatusCancelled, f.book.invoice("INV-1").Status)
	assert.Equal(t, 0, f.book.settlementCount())
	assert.Equal(t, 0, f.notifier.count())
}

func TestReconcileMalformedIsAcknowledged(t *testing.T) {
	for _, missing := range []string{"Od_sob", "Amount", "Response_id", "Smseid"} {
		t.Run(missing, func(t *testing.T) {
			f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
			cb := successCallback("INV-1", "P001", "1000")
			delete(cb, missing)

			res := f.r.Reconcile(context.Background(), cb)
			assert.Equal(t, OutcomeMalformed, res.Outcome)
			assert.Equal(t, smilepay.AckOK, res.Ack)
			assert.ErrorIs(t, res.Err, ErrMalformedCallback)

			inv := f.book.invoice("INV-1")
			assert.Equal(t, invoices.StatusUnpaid, inv.Status)
			assert.Equal(t, "Customer reference 42", inv.Notes)
			assert.Equal(t, 0, f.book.settlementCount())
		})
	}
}

func TestReconcileUnknownInvoice(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig())

	res := f.r.Reconcile(context.Background(), successCallback("INV-404", "P001", "1000"))
	assert.Equal(t, OutcomeUnknownInvoice, res.Outcome)
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.ErrorIs(t, res.Err, ErrUnknownInvoice)
	assert.Equal(t, 0, f.notifier.count())
}

func TestReconcileEmptyPayload(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig())

	res := f.r.Reconcile(context.Background(), map[string]string{})
	assert.Equal(t, OutcomeEmptyPayload, res.Outcome)
	assert.Equal(t, smilepay.AckError, res.Ack)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.ErrorIs(t, res.Err, ErrEmptyPayload)
}

func TestReconcileAmountWithinFeeStillPays(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))

	res := f.r.Reconcile(context.Background(), successCallback("INV-1", "P001", "980"))
	assert.Equal(t, OutcomePaid, res.Outcome)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], ErrAmountMismatch)
	assert.Equal(t, invoices.StatusPaid, f.book.invoice("INV-1").Status)
}

func TestReconcileDigestPolicy(t *testing.T) {
	signed := func(digest string) map[string]string {
		cb := successCallback("INV-1", "P001", "1000")
		cb["Mid_smilepay"] = digest
		return cb
	}
	good := strconv.Itoa(smilepay.ComputeDigest("5678", decimal.NewFromInt(1000), "SM20240510AP001"))

	tests := []struct {
		name        string
		param       string
		policy      DigestPolicy
		digest      string
		wantOutcome Outcome
		wantWarn    bool
	}{
		{name: "valid digest", param: "5678", policy: DigestReject, digest: good, wantOutcome: OutcomePaid},
		{name: "mismatch warns", param: "5678", policy: DigestWarn, digest: "1", wantOutcome: OutcomePaid, wantWarn: true},
		{name: "mismatch rejected", param: "5678", policy: DigestReject, digest: "1", wantOutcome: OutcomeDigestRejected},
		{name: "default param skips check", param: "0000", policy: DigestReject, digest: "1", wantOutcome: OutcomePaid},
		{name: "unset param skips check", param: "", policy: DigestReject, digest: "1", wantOutcome: OutcomePaid},
		{name: "no digest skips check", param: "5678", policy: DigestReject, digest: "", wantOutcome: OutcomePaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReconcilerConfig()
			cfg.MerchantParam = tt.param
			cfg.DigestPolicy = tt.policy
			f := newReconcilerFixture(cfg, unpaidInvoice("INV-1", "1000"))

			res := f.r.Reconcile(context.Background(), signed(tt.digest))
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			assert.Equal(t, smilepay.AckOK, res.Ack)

			if tt.wantWarn {
				require.Len(t, res.Warnings, 1)
				assert.ErrorIs(t, res.Warnings[0], ErrDigestMismatch)
			} else {
				assert.Empty(t, res.Warnings)
			}
			if tt.wantOutcome == OutcomeDigestRejected {
				assert.ErrorIs(t, res.Err, ErrDigestMismatch)
				assert.Equal(t, invoices.StatusUnpaid, f.book.invoice("INV-1").Status)
				assert.Equal(t, 0, f.book.settlementCount())
			}
		})
	}
}

func TestReconcileDigestCoversPurchaseAmount(t *testing.T) {
	cfg := DefaultReconcilerConfig()
	cfg.MerchantParam = "5678"
	cfg.DigestPolicy = DigestReject
	f := newReconcilerFixture(cfg, unpaidInvoice("INV-1", "1000"))

	cb := successCallback("INV-1", "P001", "985")
	cb["Purchamt"] = "1000"
	cb["Mid_smilepay"] = strconv.Itoa(smilepay.ComputeDigest("5678", decimal.NewFromInt(1000), cb["Smseid"]))

	res := f.r.Reconcile(context.Background(), cb)
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, invoices.StatusPaid, f.book.invoice("INV-1").Status)
	for _, w := range res.Warnings {
		assert.NotErrorIs(t, w, ErrDigestMismatch)
	}

	// a digest over the net amount is not what SmilePay sends
	f = newReconcilerFixture(cfg, unpaidInvoice("INV-2", "1000"))
	cb = successCallback("INV-2", "P002", "985")
	cb["Purchamt"] = "1000"
	cb["Mid_smilepay"] = strconv.Itoa(smilepay.ComputeDigest("5678", decimal.NewFromInt(985), cb["Smseid"]))

	res = f.r.Reconcile(context.Background(), cb)
	assert.Equal(t, OutcomeDigestRejected, res.Outcome)
	assert.Equal(t, invoices.StatusUnpaid, f.book.invoice("INV-2").Status)
}

func TestReconcileNotifierFailureDoesNotChangeAck(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	f.notifier.err = errStorage

	res := f.r.Reconcile(context.Background(), successCallback("INV-1", "P001", "1000"))
	assert.Equal(t, OutcomePaid, res.Outcome)
	assert.Equal(t, smilepay.AckOK, res.Ack)
	assert.NoError(t, res.Err)
}

func TestReconcileStorageFailureAsksForRetry(t *testing.T) {
	f := newReconcilerFixture(DefaultReconcilerConfig(), unpaidInvoice("INV-1", "1000"))
	f.book.applyErr = errStorage

	res := f.r.Reconcile(context.Background(), successCallback("INV-1", "P001", "1000"))
	assert.Equal(t, OutcomeError, res.Outcome)
	assert.Equal(t, smilepay.AckError, res.Ack)
	assert.Equal(t, http.StatusOK, res.Status)
	assert.ErrorIs(t, res.Err, errStorage)
	assert.Equal(t, 0, f.notifier.count())
}

func TestParseDigestPolicy(t *testing.T) {
	p, err := ParseDigestPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DigestWarn, p)

	p, err = ParseDigestPolicy(" Reject ")
	require.NoError(t, err)
	assert.Equal(t, DigestReject, p)

	_, err = ParseDigestPolicy("ignore")
	assert.Error(t, err)
}

func TestFormatNTD(t *testing.T) {
	tests := map[string]string{
		"0":       "NT$ 0",
		"15":      "NT$ 15",
		"980":     "NT$ 980",
		"1000":    "NT$ 1,000",
		"1500.75": "NT$ 1,501",
		"1234567": "NT$ 1,234,567",
		"-2500":   "NT$ -2,500",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatNTD(decimal.RequireFromString(in)), in)
	}
}
