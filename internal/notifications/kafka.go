package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"smilepay/internal/billing"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
)

const DefaultPaidTopic = "invoice.paid"

// InvoicePaidEvent is the message published on the paid topic.
type InvoicePaidEvent struct {
	InvoiceID     string          `json:"invoice_id"`
	ClientID      string          `json:"client_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	Method        string          `json:"method"`
	PaidAt        time.Time       `json:"paid_at"`
}

// Publisher emits invoice.paid events for downstream services.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(producer sarama.SyncProducer, topic string) *Publisher {
	if topic == "" {
		topic = DefaultPaidTopic
	}
	return &Publisher{producer: producer, topic: topic}
}

// NewSyncProducer connects to the brokers with acks from all replicas.
func NewSyncProducer(brokers []string) (sarama.SyncProducer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	return sarama.NewSyncProducer(brokers, config)
}

func (p *Publisher) Notify(_ context.Context, template string, n billing.PaymentNotice) error {
	if template != billing.TemplatePaymentConfirmation {
		return nil
	}

	data, err := json.Marshal(InvoicePaidEvent{
		InvoiceID:     n.Invoice.ID,
		ClientID:      n.Invoice.ClientID,
		TransactionID: n.Settlement.TransactionID,
		Amount:        n.Settlement.Amount,
		Fee:           n.Settlement.Fee,
		Method:        n.MethodName,
		PaidAt:        n.Settlement.PaidAt,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", p.topic, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(n.Invoice.ID),
		Value: sarama.ByteEncoder(data),
	}
	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s event: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.producer.Close() }
