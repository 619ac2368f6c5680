package storage

import (
	"context"
	"fmt"

	"smilepay/internal/domain/invoices"
	"smilepay/internal/domain/settlements"
	"smilepay/internal/session"
)

// Ledger applies payment notifications to invoices. Each write locks the
// invoice row first so concurrent deliveries for one invoice serialize.
type Ledger struct {
	c *Container
}

func (c *Container) Ledger() *Ledger { return &Ledger{c: c} }

func (l *Ledger) IsSettled(ctx context.Context, invoiceID, transactionID string) (bool, error) {
	return l.c.Settlements.Exists(ctx, invoiceID, transactionID)
}

// ApplySettlement records s, marks the invoice Paid and appends note, all
// in one transaction. It reports false without side effects when the
// invoice is not Unpaid or s was recorded before.
func (l *Ledger) ApplySettlement(ctx context.Context, s *settlements.Settlement, note string) (bool, error) {
	applied := false
	err := l.c.WithLedgerTx(ctx, func(tx *LedgerTx) error {
		inv, err := tx.Invoices.GetForUpdate(ctx, s.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoices.ErrNotFound
		}
		if inv.Status != invoices.StatusUnpaid {
			return nil
		}

		inserted, err := tx.Settlements.Insert(ctx, s)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}

		if _, err := tx.Invoices.MarkPaid(ctx, inv.ID, s.PaidAt); err != nil {
			return err
		}

		// a paid invoice no longer needs its pending payment code block
		notes := invoices.JoinNote(session.StripBlocks(inv.Notes), note)
		if err := tx.Invoices.SetInvoiceNotes(ctx, inv.ID, notes); err != nil {
			return err
		}

		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply settlement: %w", err)
	}
	return applied, nil
}

// RecordFailure notes a declined notification once per transaction id.
// A Paid invoice is left untouched.
func (l *Ledger) RecordFailure(ctx context.Context, invoiceID, transactionID, reason, note string) (bool, error) {
	recorded := false
	err := l.c.WithLedgerTx(ctx, func(tx *LedgerTx) error {
		inv, err := tx.Invoices.GetForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return invoices.ErrNotFound
		}
		if inv.IsPaid() {
			return nil
		}

		inserted, err := tx.Settlements.InsertFailure(ctx, invoiceID, transactionID, reason)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		if err := tx.Invoices.AppendNote(ctx, invoiceID, note); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("record failure: %w", err)
	}
	return recorded, nil
}
