package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SupportedCurrency is the only currency SmilePay settles.
const SupportedCurrency = "TWD"

type Customer struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

type IssueRequest struct {
	InvoiceID string
	Amount    decimal.Decimal
	Currency  string
	Method    smilepay.Method
	Customer  Customer
}

type IssueResult struct {
	Session *session.PaymentSession
	// Created is false when an earlier, still valid session was returned.
	Created bool
}

// Issuer requests at most one live payment code per invoice.
type Issuer struct {
	sessions session.Store
	provider smilepay.Issuer
	creds    smilepay.Credentials
	methods  smilepay.MethodSet
	locker   Locker
	activity ActivityLogger
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewIssuer(
	sessions session.Store,
	provider smilepay.Issuer,
	creds smilepay.Credentials,
	methods smilepay.MethodSet,
	locker Locker,
	activity ActivityLogger,
	logger *zap.SugaredLogger,
) *Issuer {
	return &Issuer{
		sessions: sessions,
		provider: provider,
		creds:    creds,
		methods:  methods,
		locker:   locker,
		activity: activity,
		logger:   logger,
		now:      time.Now,
	}
}

// Issue returns the invoice's live session, or requests a new payment code
// and stores it. The whole check-call-save sequence holds the invoice lock.
func (s *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	unlock, err := s.locker.Lock(ctx, "smilepay:issue:"+req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("lock invoice %s: %w", req.InvoiceID, err)
	}
	defer unlock()

	existing, err := s.sessions.Load(ctx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("load payment session: %w", err)
	}
	if existing != nil {
		s.logger.Infow("payment session reused",
			"invoice_id", req.InvoiceID, "provider_code", existing.ProviderCode)
		return &IssueResult{Session: existing, Created: false}, nil
	}

	if err := s.validate(req); err != nil {
		return nil, err
	}

	res, err := s.provider.Issue(ctx, smilepay.IssueRequest{
		InvoiceID: req.InvoiceID,
		Amount:    req.Amount,
		Method:    req.Method,
		PayerName: req.Customer.Name,
		Phone:     req.Customer.Phone,
		Address:   req.Customer.Address,
		Email:     req.Customer.Email,
	})
	if err == nil && strings.TrimSpace(res.SmilePayNO) == "" {
		err = fmt.Errorf("reply has no SmilePayNO")
	}
	if err != nil {
		s.logger.Warnw("payment code request failed", "invoice_id", req.InvoiceID, "err", err)
		s.activity.Log(ctx, req.InvoiceID, fmt.Sprintf("SmilePay Issuance Failed - Invoice: %s, Error: %v", req.InvoiceID, err))
		return nil, fmt.Errorf("%w: %v", ErrIssuanceFailed, err)
	}

	amountDue := req.Amount
	if a, err := decimal.NewFromString(strings.TrimSpace(res.Amount)); err == nil && a.IsPositive() {
		amountDue = a
	}

	ps := &session.PaymentSession{
		InvoiceID:    req.InvoiceID,
		ProviderCode: strings.TrimSpace(res.SmilePayNO),
		Method:       req.Method,
		AmountDue:    amountDue,
		ExpiresAt:    session.ParsePayEndDate(res.PayEndDate),
		CreatedAt:    s.now(),
		Fields:       res.Fields(),
	}

	// the code is already issued upstream; hand it out even if storing fails
	if err := s.sessions.Save(ctx, ps); err != nil {
		s.logger.Errorw("payment session save failed", "invoice_id", req.InvoiceID, "err", err)
		s.activity.Log(ctx, req.InvoiceID, "SmilePay Save Failed - Invoice: "+req.InvoiceID)
	}

	s.activity.Log(ctx, req.InvoiceID, fmt.Sprintf(
		"SmilePay Payment Created - Invoice: %s, SmilePayNO: %s, Method: %s",
		req.InvoiceID, ps.ProviderCode, ps.Method.Label(),
	))

	return &IssueResult{Session: ps, Created: true}, nil
}

func (s *Issuer) validate(req IssueRequest) error {
	if !s.creds.Complete() {
		return fmt.Errorf("%w: merchant code or verify key is not set", ErrConfig)
	}
	if !strings.EqualFold(strings.TrimSpace(req.Currency), SupportedCurrency) {
		return fmt.Errorf("%w: currency %q is not supported, only %s", ErrConfig, req.Currency, SupportedCurrency)
	}
	if !req.Method.Valid() || !s.methods.Allows(req.Method) {
		return fmt.Errorf("%w: %s", ErrInvalidMethod, req.Method)
	}
	if !req.Amount.IsPositive() {
		return fmt.Errorf("%w: invoice amount must be positive", ErrConfig)
	}
	return nil
}

// Methods lists the payment methods offered to payers.
func (s *Issuer) Methods() []smilepay.Method { return s.methods.Methods() }
