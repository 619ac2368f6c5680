package notifications

import (
	"context"
	"errors"
	"fmt"

	"smilepay/internal/billing"

	"go.uber.org/zap"
)

type namedNotifier struct {
	name string
	n    billing.Notifier
}

// Multi fans a notice out to every registered channel. One failing channel
// does not stop the others.
type Multi struct {
	notifiers []namedNotifier
	logger    *zap.SugaredLogger
}

func NewMulti(logger *zap.SugaredLogger) *Multi {
	return &Multi{logger: logger}
}

func (m *Multi) Add(name string, n billing.Notifier) *Multi {
	m.notifiers = append(m.notifiers, namedNotifier{name: name, n: n})
	return m
}

func (m *Multi) Len() int { return len(m.notifiers) }

func (m *Multi) Notify(ctx context.Context, template string, n billing.PaymentNotice) error {
	var errs []error
	for _, nn := range m.notifiers {
		if err := nn.n.Notify(ctx, template, n); err != nil {
			m.logger.Warnw("notification channel failed", "channel", nn.name, "invoice_id", n.Invoice.ID, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", nn.name, err))
		}
	}
	return errors.Join(errs...)
}
