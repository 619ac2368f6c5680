package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"smilepay/internal/auth"
	"smilepay/internal/billing"
	"smilepay/internal/domain/deliveries"
	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/settlements"
	"smilepay/internal/lock"
	"smilepay/internal/ratelimiter"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2024, 5, 10, 9, 30, 0, 0, session.Taipei)

const (
	adminUser = "ops"
	adminPass = "s3cret"
)

// memLedger holds invoices and settlements behind one mutex.
type memLedger struct {
	mu       sync.Mutex
	invoices map[string]*invoices.Invoice
	settled  []*settlements.Settlement
	failures map[string]bool
	getErr   error
}

func newMemLedger(invs ...*invoices.Invoice) *memLedger {
	l := &memLedger{invoices: map[string]*invoices.Invoice{}, failures: map[string]bool{}}
	for _, inv := range invs {
		l.invoices[inv.ID] = inv
	}
	return l
}

func testInvoice(id, clientID, total string) *invoices.Invoice {
	return &invoices.Invoice{
		ID:          id,
		ClientID:    clientID,
		Total:       decimal.RequireFromString(total),
		Currency:    "TWD",
		Status:      invoices.StatusUnpaid,
		ClientName:  "Lin Meiling",
		ClientEmail: "lin@example.com",
	}
}

func (l *memLedger) GetByID(_ context.Context, id string) (*invoices.Invoice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return nil, l.getErr
	}
	inv, ok := l.invoices[id]
	if !ok {
		return nil, nil
	}
	cp := *inv
	return &cp, nil
}

func (l *memLedger) IsSettled(ctx context.Context, invoiceID, txID string) (bool, error) {
	return l.Exists(ctx, invoiceID, txID)
}

func (l *memLedger) ApplySettlement(_ context.Context, s *settlements.Settlement, note string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.invoices[s.InvoiceID]
	if !ok {
		return false, invoices.ErrNotFound
	}
	if inv.Status != invoices.StatusUnpaid || l.has(s.InvoiceID, s.TransactionID) {
		return false, nil
	}
	cp := *s
	cp.ID = int64(len(l.settled) + 1)
	l.settled = append(l.settled, &cp)
	inv.Status = invoices.StatusPaid
	inv.Notes = invoices.JoinNote(session.StripBlocks(inv.Notes), note)
	return true, nil
}

func (l *memLedger) RecordFailure(_ context.Context, invoiceID, txID, _, note string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.invoices[invoiceID]
	if !ok {
		return false, invoices.ErrNotFound
	}
	key := invoiceID + "/" + txID
	if inv.IsPaid() || l.failures[key] {
		return false, nil
	}
	l.failures[key] = true
	inv.Notes = invoices.JoinNote(inv.Notes, note)
	return true, nil
}

func (l *memLedger) has(invoiceID, txID string) bool {
	for _, s := range l.settled {
		if s.InvoiceID == invoiceID && s.TransactionID == txID {
			return true
		}
	}
	return false
}

func (l *memLedger) Exists(_ context.Context, invoiceID, txID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.has(invoiceID, txID), nil
}

func (l *memLedger) Insert(_ context.Context, s *settlements.Settlement) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.has(s.InvoiceID, s.TransactionID) {
		return false, nil
	}
	l.settled = append(l.settled, s)
	return true, nil
}

func (l *memLedger) InsertFailure(_ context.Context, invoiceID, txID, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := invoiceID + "/" + txID
	if l.failures[key] {
		return false, nil
	}
	l.failures[key] = true
	return true, nil
}

func (l *memLedger) List(_ context.Context, invoiceID string, since *time.Time, limit, offset int) ([]*settlements.Settlement, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*settlements.Settlement
	for _, s := range l.settled {
		if invoiceID != "" && s.InvoiceID != invoiceID {
			continue
		}
		if since != nil && s.PaidAt.Before(*since) {
			continue
		}
		out = append(out, s)
	}
	total := len(out)
	if offset >= total {
		return []*settlements.Settlement{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (l *memLedger) invoice(id string) invoices.Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return *l.invoices[id]
}

type memSessions struct {
	mu   sync.Mutex
	byID map[string]*session.PaymentSession
}

func newMemSessions() *memSessions {
	return &memSessions{byID: map[string]*session.PaymentSession{}}
}

func (m *memSessions) Load(ctx context.Context, id string) (*session.PaymentSession, error) {
	s, err := m.Get(ctx, id)
	if s == nil || err != nil || s.Expired(testNow) {
		return nil, err
	}
	return s, nil
}

func (m *memSessions) Get(_ context.Context, id string) (*session.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memSessions) Save(_ context.Context, s *session.PaymentSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.byID[s.InvoiceID] = &cp
	return nil
}

func (m *memSessions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, id)
	return nil
}

type memDeliveries struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*deliveries.Delivery
	list []*deliveries.Delivery
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{byID: map[uuid.UUID]*deliveries.Delivery{}}
}

func (m *memDeliveries) Insert(_ context.Context, d *deliveries.Delivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.byID[d.ID] = &cp
	m.list = append(m.list, &cp)
	return nil
}

func (m *memDeliveries) SetOutcome(_ context.Context, id uuid.UUID, invoiceID, txID, outcome, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return errors.New("no such delivery")
	}
	if invoiceID != "" {
		d.InvoiceID = invoiceID
	}
	if txID != "" {
		d.TransactionID = txID
	}
	d.Outcome = outcome
	d.Error = errText
	return nil
}

func (m *memDeliveries) GetByID(_ context.Context, id uuid.UUID) (*deliveries.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDeliveries) ListByInvoice(_ context.Context, invoiceID string, limit int) ([]*deliveries.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*deliveries.Delivery{}
	for _, d := range m.list {
		if d.InvoiceID == invoiceID && len(out) < limit {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDeliveries) all() []deliveries.Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]deliveries.Delivery, 0, len(m.list))
	for _, d := range m.list {
		out = append(out, *d)
	}
	return out
}

type stubProvider struct {
	mu    sync.Mutex
	calls int
	res   *smilepay.IssueResponse
	err   error
}

func (p *stubProvider) Issue(_ context.Context, _ smilepay.IssueRequest) (*smilepay.IssueResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	cp := *p.res
	return &cp, nil
}

type nopActivity struct{}

func (nopActivity) Log(context.Context, string, string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, billing.PaymentNotice) error { return nil }

type testEnv struct {
	app        *application
	handler    http.Handler
	ledger     *memLedger
	sessions   *memSessions
	deliveries *memDeliveries
	provider   *stubProvider
	auth       *auth.JWTAuthenticator
}

type envOption func(*testEnv, *smilepay.Credentials, *ratelimiter.Config)

func withoutCredentials() envOption {
	return func(_ *testEnv, c *smilepay.Credentials, _ *ratelimiter.Config) { *c = smilepay.Credentials{} }
}

func withRateLimit(n int) envOption {
	return func(_ *testEnv, _ *smilepay.Credentials, rl *ratelimiter.Config) {
		rl.Enabled = true
		rl.RequestsPerTimeFrame = n
	}
}

func newTestEnv(t *testing.T, ledger *memLedger, opts ...envOption) *testEnv {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPass), bcrypt.MinCost)
	require.NoError(t, err)

	env := &testEnv{
		ledger:     ledger,
		sessions:   newMemSessions(),
		deliveries: newMemDeliveries(),
		provider: &stubProvider{res: &smilepay.IssueResponse{
			Status:     "1",
			SmilePayNO: "SP240510001",
			Amount:     "1000",
			PayEndDate: "2024/05/17 23:59:59",
			AtmBankNo:  "004",
			AtmNo:      "98765432101234",
		}},
		auth: auth.NewJWTAuthenticator("test-secret", "smilepay", "smilepay"),
	}

	creds := smilepay.Credentials{Dcvc: "107", VerifyKey: "ABCD1234"}
	rl := ratelimiter.Config{RequestsPerTimeFrame: 100, TimeFrame: time.Minute}
	for _, opt := range opts {
		opt(env, &creds, &rl)
	}

	logger := zap.NewNop().Sugar()
	cfg := config{
		addr: ":0",
		env:  "test",
		auth: authConfig{
			basic: basicConfig{user: adminUser, passHash: string(hash)},
			token: tokenConfig{secret: "test-secret", iss: "smilepay"},
		},
		rateLimiter: rl,
	}

	env.app = &application{
		config:      cfg,
		logger:      logger,
		invoices:    ledger,
		sessions:    env.sessions,
		settlements: ledger,
		deliveries:  env.deliveries,
		activity:    nopActivity{},
		issuer: billing.NewIssuer(env.sessions, env.provider, creds, smilepay.MethodSetAll,
			lock.NewMemory(), nopActivity{}, logger),
		reconciler: billing.NewReconciler(billing.DefaultReconcilerConfig(), ledger, ledger,
			nopNotifier{}, nopActivity{}, logger),
		authenticator: env.auth,
		rateLimiter:   ratelimiter.NewFixedWindowLimiter(rl.RequestsPerTimeFrame, rl.TimeFrame),
		now:           func() time.Time { return testNow },
	}
	env.handler = env.app.mount()
	return env
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) bearer(t *testing.T, clientID, role string) string {
	t.Helper()
	token, err := e.auth.GenerateToken(clientID, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func adminRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	req.SetBasicAuth(adminUser, adminPass)
	return req
}

func jsonRequest(method, target, body, authz string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	return req
}
