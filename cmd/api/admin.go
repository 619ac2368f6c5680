package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"smilepay/internal/params"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// adminListSettlementsHandler godoc
//
//	@Summary		List settlements
//	@Description	Paginated SmilePay settlements, newest first. Optional filters: invoice_id, since.
//	@Tags			admin
//	@Produce		json
//	@Param			invoice_id	query		string			false	"Only this invoice"
//	@Param			since		query		string			false	"RFC3339 timestamp; settlements paid_at >= since"
//	@Param			page		query		int				false	"Page number (default: 1)"
//	@Param			limit		query		int				false	"Items per page (default 20, max 100)"
//	@Success		200			{object}	map[string]any	"Envelope: { data: { settlements, pagination } }"
//	@Failure		400			{object}	error
//	@Failure		401			{object}	error
//	@Failure		500			{object}	error
//	@Router			/admin/settlements [get]
func (app *application) adminListSettlementsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	invoiceID := strings.TrimSpace(q.Get("invoice_id"))

	since, err := params.ParseSince(q)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	pg := params.ParsePagination(q)

	list, total, err := app.settlements.List(r.Context(), invoiceID, since, pg.Limit, pg.Offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	pg.ComputeMeta(total)

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"settlements": list,
		"pagination":  pg,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminListDeliveriesHandler godoc
//
//	@Summary		List callback deliveries for an invoice
//	@Tags			admin
//	@Produce		json
//	@Param			invoiceID	path		string	true	"Invoice ID"
//	@Success		200			{object}	map[string]any
//	@Failure		401			{object}	error
//	@Router			/admin/invoices/{invoiceID}/deliveries [get]
func (app *application) adminListDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")

	list, err := app.deliveries.ListByInvoice(r.Context(), invoiceID, params.MaxLimit)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{"deliveries": list}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminReplayCallbackHandler godoc
//
//	@Summary		Replay a stored callback
//	@Description	Runs a logged SmilePay notification through reconciliation again. Settled invoices are not affected twice.
//	@Tags			admin
//	@Produce		json
//	@Param			deliveryID	path		string	true	"Delivery ID (uuid)"
//	@Success		200			{object}	map[string]any
//	@Failure		400			{object}	error
//	@Failure		401			{object}	error
//	@Failure		404			{object}	error
//	@Router			/admin/callbacks/{deliveryID}/replay [post]
func (app *application) adminReplayCallbackHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "deliveryID"))
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid delivery id: %w", err))
		return
	}

	d, err := app.deliveries.GetByID(r.Context(), id)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if d == nil {
		app.notFoundResponse(w, r, fmt.Errorf("delivery %s not found", id))
		return
	}

	res := app.reconciler.Reconcile(r.Context(), d.Payload)
	app.recordOutcome(r.Context(), d.ID, res)
	if d.InvoiceID != "" {
		app.activity.Log(r.Context(), d.InvoiceID, fmt.Sprintf("SmilePay Callback Replayed - Delivery: %s, Outcome: %s", d.ID, res.Outcome))
	}

	resp := map[string]any{
		"delivery_id":    d.ID,
		"outcome":        res.Outcome,
		"ack":            res.Ack,
		"invoice_id":     res.InvoiceID,
		"transaction_id": res.TransactionID,
	}
	if res.Err != nil {
		resp["error"] = res.Err.Error()
	}
	if err := app.jsonResponse(w, http.StatusOK, resp); err != nil {
		app.internalServerError(w, r, err)
	}
}

// adminResetSessionHandler godoc
//
//	@Summary		Clear an expired payment code
//	@Description	Removes the invoice's stored SmilePay session once its deadline has passed.
//	@Tags			admin
//	@Produce		json
//	@Param			invoiceID	path		string	true	"Invoice ID"
//	@Success		200			{object}	map[string]any
//	@Failure		401			{object}	error
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error
//	@Router			/admin/invoices/{invoiceID}/smilepay/reset [post]
func (app *application) adminResetSessionHandler(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoiceID")

	ps, err := app.sessions.Get(r.Context(), invoiceID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if ps == nil {
		app.notFoundResponse(w, r, fmt.Errorf("no smilepay session for invoice %s", invoiceID))
		return
	}
	if !ps.Expired(app.now()) {
		app.conflictResponse(w, r, errors.New("payment code is still valid"))
		return
	}

	if err := app.sessions.Delete(r.Context(), invoiceID); err != nil {
		app.internalServerError(w, r, err)
		return
	}
	app.activity.Log(r.Context(), invoiceID, "SmilePay Session Reset - SmilePayNO: "+ps.ProviderCode)

	if err := app.jsonResponse(w, http.StatusOK, map[string]any{
		"invoice_id":    invoiceID,
		"provider_code": ps.ProviderCode,
		"reset":         true,
	}); err != nil {
		app.internalServerError(w, r, err)
	}
}
