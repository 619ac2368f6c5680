package main

import (
	"context"
	"net/http"

	"smilepay/internal/billing"
	"smilepay/internal/domain/deliveries"
	"smilepay/internal/smilepay"

	"github.com/google/uuid"
)

// smilepayCallbackHandler godoc
//
//	@Summary		SmilePay payment notification
//	@Description	Receives the provider's payment result as query or form fields. The body is always a bare Roturlstatus tag.
//	@Tags			callbacks
//	@Accept			x-www-form-urlencoded
//	@Produce		plain
//	@Param			Od_sob		formData	string	true	"Invoice ID"
//	@Param			Amount		formData	string	true	"Amount paid"
//	@Param			Response_id	formData	string	true	"1 on success"
//	@Param			Smseid		formData	string	true	"SmilePay trace id"
//	@Success		200			{string}	string	"<Roturlstatus>SmilePay_OK</Roturlstatus>"
//	@Failure		400			{string}	string	"<Roturlstatus>ERROR</Roturlstatus>"
//	@Router			/callbacks/smilepay [post]
func (app *application) smilepayCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		app.logger.Warnw("unreadable smilepay callback", "err", err)
		writeAck(w, http.StatusBadRequest, smilepay.AckError)
		return
	}

	values := make(map[string]string, len(r.Form))
	for k, v := range r.Form {
		if len(v) > 0 {
			values[k] = v[0]
		}
	}

	var deliveryID uuid.UUID
	if len(values) > 0 {
		deliveryID = app.logDelivery(r.Context(), r.Method, values)
	}

	res := app.reconciler.Reconcile(r.Context(), values)
	app.recordOutcome(r.Context(), deliveryID, res)

	writeAck(w, res.Status, res.Ack)
}

// logDelivery stores the raw notification. Failing to store it must not
// stop the notification from being applied.
func (app *application) logDelivery(ctx context.Context, method string, values map[string]string) uuid.UUID {
	d := &deliveries.Delivery{
		ID:         uuid.New(),
		InvoiceID:  values["Od_sob"],
		HTTPMethod: method,
		Payload:    values,
		Outcome:    deliveries.OutcomeReceived,
		ReceivedAt: app.now(),
	}
	if err := app.deliveries.Insert(ctx, d); err != nil {
		app.logger.Warnw("callback delivery not logged", "invoice_id", d.InvoiceID, "err", err)
		return uuid.Nil
	}
	return d.ID
}

func (app *application) recordOutcome(ctx context.Context, deliveryID uuid.UUID, res billing.Result) {
	if !res.IsInformational() {
		app.logger.Warnw("smilepay callback outcome",
			"invoice_id", res.InvoiceID, "transaction_id", res.TransactionID, "outcome", res.Outcome, "err", res.Err)
	}
	if deliveryID == uuid.Nil {
		return
	}

	errText := ""
	if res.Err != nil {
		errText = res.Err.Error()
	}
	if err := app.deliveries.SetOutcome(ctx, deliveryID, res.InvoiceID, res.TransactionID, string(res.Outcome), errText); err != nil {
		app.logger.Warnw("callback outcome not stored", "delivery_id", deliveryID, "err", err)
	}
}
