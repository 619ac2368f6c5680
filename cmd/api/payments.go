package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"smilepay/internal/billing"
	"smilepay/internal/domain/invoices"
	"smilepay/internal/session"
	"smilepay/internal/smilepay"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type IssuePaymentPayload struct {
	Method string `json:"method" validate:"required,smilepay_method"`
}

type PaymentSessionResponse struct {
	InvoiceID    string          `json:"invoice_id"`
	ProviderCode string          `json:"provider_code"`
	Method       string          `json:"method"`
	MethodLabel  string          `json:"method_label"`
	PaymentCode  string          `json:"payment_code"`
	BankCode     string          `json:"bank_code,omitempty"`
	AmountDue    decimal.Decimal `json:"amount_due"`
	ExpiresAt    *time.Time      `json:"expires_at"`
	CreatedAt    time.Time       `json:"created_at"`
	Created      bool            `json:"created"`
}

func newPaymentSessionResponse(ps *session.PaymentSession, created bool) PaymentSessionResponse {
	resp := PaymentSessionResponse{
		InvoiceID:    ps.InvoiceID,
		ProviderCode: ps.ProviderCode,
		Method:       ps.Method.String(),
		MethodLabel:  ps.Method.Label(),
		PaymentCode:  ps.PaymentCode(),
		AmountDue:    ps.AmountDue,
		CreatedAt:    ps.CreatedAt,
		Created:      created,
	}
	if ps.Method == smilepay.MethodATM {
		resp.BankCode = ps.Fields.ATMBankCode
	}
	if !ps.ExpiresAt.IsZero() {
		exp := ps.ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp
}

// loadOwnedInvoice writes the error response itself and returns nil when the
// caller may not proceed.
func (app *application) loadOwnedInvoice(w http.ResponseWriter, r *http.Request) *invoices.Invoice {
	principal := getPrincipalFromContext(r)
	if principal == nil {
		app.unauthorizedErrorResponse(w, r, errors.New("not authorized"))
		return nil
	}

	invoiceID := strings.TrimSpace(chi.URLParam(r, "invoiceID"))
	inv, err := app.invoices.GetByID(r.Context(), invoiceID)
	if err != nil {
		app.internalServerError(w, r, err)
		return nil
	}
	if inv == nil {
		app.notFoundResponse(w, r, fmt.Errorf("invoice %s not found", invoiceID))
		return nil
	}
	if !principal.CanAccessClient(inv.ClientID) {
		app.forbiddenResponse(w, r)
		return nil
	}
	return inv
}

// issuePaymentCodeHandler godoc
//
//	@Summary		Get a SmilePay payment code
//	@Description	Returns the invoice's live payment code, requesting one from SmilePay when none is valid.
//	@Tags			payments
//	@Accept			json
//	@Produce		json
//	@Param			invoiceID	path		string					true	"Invoice ID"
//	@Param			payload		body		IssuePaymentPayload		true	"Payment method"
//	@Success		201			{object}	PaymentSessionResponse	"New code issued"
//	@Success		200			{object}	PaymentSessionResponse	"Existing code returned"
//	@Failure		400			{object}	error
//	@Failure		401			{object}	error
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error
//	@Failure		422			{object}	error
//	@Failure		502			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/invoices/{invoiceID}/smilepay [post]
func (app *application) issuePaymentCodeHandler(w http.ResponseWriter, r *http.Request) {
	var payload IssuePaymentPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	method, err := smilepay.ParseMethod(payload.Method)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	inv := app.loadOwnedInvoice(w, r)
	if inv == nil {
		return
	}
	if inv.Status != invoices.StatusUnpaid {
		app.conflictResponse(w, r, fmt.Errorf("invoice %s is %s", inv.ID, inv.Status))
		return
	}

	res, err := app.issuer.Issue(r.Context(), billing.IssueRequest{
		InvoiceID: inv.ID,
		Amount:    inv.Total,
		Currency:  inv.Currency,
		Method:    method,
		Customer: billing.Customer{
			Name:    inv.ClientName,
			Email:   inv.ClientEmail,
			Phone:   inv.ClientPhone,
			Address: inv.ClientAddress,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidMethod):
			app.badRequestResponse(w, r, err)
		case errors.Is(err, billing.ErrConfig):
			app.unprocessableResponse(w, r, err)
		case errors.Is(err, billing.ErrIssuanceFailed):
			app.badGatewayResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	if err := app.jsonResponse(w, status, newPaymentSessionResponse(res.Session, res.Created)); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getPaymentSessionHandler godoc
//
//	@Summary		Show payment instructions
//	@Description	Returns the invoice's live SmilePay session and the methods the merchant accepts.
//	@Tags			payments
//	@Produce		json
//	@Param			invoiceID	path		string	true	"Invoice ID"
//	@Success		200			{object}	map[string]any
//	@Failure		401			{object}	error
//	@Failure		403			{object}	error
//	@Failure		404			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/invoices/{invoiceID}/smilepay [get]
func (app *application) getPaymentSessionHandler(w http.ResponseWriter, r *http.Request) {
	inv := app.loadOwnedInvoice(w, r)
	if inv == nil {
		return
	}

	methods := make([]map[string]string, 0, 3)
	for _, m := range app.issuer.Methods() {
		methods = append(methods, map[string]string{"method": m.String(), "label": m.Label()})
	}

	ps, err := app.sessions.Load(r.Context(), inv.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	var current *PaymentSessionResponse
	if ps != nil && !inv.IsPaid() {
		resp := newPaymentSessionResponse(ps, false)
		current = &resp
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"invoice_id":     inv.ID,
		"invoice_status": inv.Status,
		"session":        current,
		"methods":        methods,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
