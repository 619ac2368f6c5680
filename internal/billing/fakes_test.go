package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/settlements"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var testNow = time.Date(2024, 5, 10, 9, 30, 0, 0, session.Taipei)

func testLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

type fakeSessions struct {
	mu      sync.Mutex
	byID    map[string]*session.PaymentSession
	now     time.Time
	saveErr error
	saves   int
	loadErr error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[string]*session.PaymentSession{}, now: testNow}
}

func (f *fakeSessions) Load(_ context.Context, id string) (*session.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	s, ok := f.byID[id]
	if !ok || s.Expired(f.now) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Get(_ context.Context, id string) (*session.PaymentSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessions) Save(_ context.Context, s *session.PaymentSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	cp := *s
	f.byID[s.InvoiceID] = &cp
	return nil
}

func (f *fakeSessions) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	res   *smilepay.IssueResponse
	err   error
	delay time.Duration
	last  smilepay.IssueRequest
}

func (f *fakeProvider) Issue(_ context.Context, req smilepay.IssueRequest) (*smilepay.IssueResponse, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	cp := *f.res
	return &cp, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeBook keeps invoices and settlements together, the way the ledger
// transaction sees them.
type fakeBook struct {
	mu          sync.Mutex
	invoices    map[string]*invoices.Invoice
	settlements []*settlements.Settlement
	failures    map[string]bool
	getErr      error
	applyErr    error
}

func newFakeBook(invs ...*invoices.Invoice) *fakeBook {
	b := &fakeBook{invoices: map[string]*invoices.Invoice{}, failures: map[string]bool{}}
	for _, inv := range invs {
		b.invoices[inv.ID] = inv
	}
	return b
}

func unpaidInvoice(id, total string) *invoices.Invoice {
	return &invoices.Invoice{
		ID:          id,
		ClientID:    "client-1",
		Total:       decimal.RequireFromString(total),
		Currency:    "TWD",
		Status:      invoices.StatusUnpaid,
		Notes:       "Customer reference 42",
		ClientName:  "Wang Xiaoming",
		ClientEmail: "wang@example.com",
	}
}

func (b *fakeBook) GetByID(_ context.Context, id string) (*invoices.Invoice, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	inv, ok := b.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (b *fakeBook) IsSettled(_ context.Context, invoiceID, txID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hasSettlement(invoiceID, txID), nil
}

func (b *fakeBook) hasSettlement(invoiceID, txID string) bool {
	for _, s := range b.settlements {
		if s.InvoiceID == invoiceID && s.TransactionID == txID {
			return true
		}
	}
	return false
}

func (b *fakeBook) ApplySettlement(_ context.Context, s *settlements.Settlement, note string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applyErr != nil {
		return false, b.applyErr
	}
	inv, ok := b.invoices[s.InvoiceID]
	if !ok {
		return false, invoices.ErrNotFound
	}
	if inv.Status != invoices.StatusUnpaid || b.hasSettlement(s.InvoiceID, s.TransactionID) {
		return false, nil
	}
	cp := *s
	cp.ID = int64(len(b.settlements) + 1)
	b.settlements = append(b.settlements, &cp)
	inv.Status = invoices.StatusPaid
	paidAt := s.PaidAt
	inv.PaidAt = &paidAt
	inv.Notes = invoices.JoinNote(session.StripBlocks(inv.Notes), note)
	return true, nil
}

func (b *fakeBook) RecordFailure(_ context.Context, invoiceID, txID, _, note string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.applyErr != nil {
		return false, b.applyErr
	}
	inv, ok := b.invoices[invoiceID]
	if !ok {
		return false, invoices.ErrNotFound
	}
	key := invoiceID + "/" + txID
	if inv.IsPaid() || b.failures[key] {
		return false, nil
	}
	b.failures[key] = true
	inv.Notes = invoices.JoinNote(inv.Notes, note)
	return true, nil
}

func (b *fakeBook) invoice(id string) invoices.Invoice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return *b.invoices[id]
}

func (b *fakeBook) settlementCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.settlements)
}

type sentNotice struct {
	template string
	notice   PaymentNotice
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, template string, n PaymentNotice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotice{template: template, notice: n})
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []string
}

func (f *fakeActivity) Log(_ context.Context, _ string, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, message)
}

func (f *fakeActivity) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries...)
}

var errStorage = errors.New("connection reset")
