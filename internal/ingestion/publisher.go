package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"DscLedger/internal/observability"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// OutboundPublisher publishes liquidation receipts to NATS for
// downstream consumers (liquidation bots, risk dashboards). Publishes
// happen after the core has applied the event; a failed publish is
// non-fatal because consumers can read the event log directly.
type OutboundPublisher struct {
	js        jetstream.JetStream
	inputChan <-chan PublishableReceipt
	log       zerolog.Logger
}

// PublishableReceipt is a completed liquidation ready for the outbound
// stream. Numeric fields are decimal strings.
type PublishableReceipt struct {
	Sequence         int64     `json:"sequence"`
	OperationID      string    `json:"operation_id"`
	Liquidator       string    `json:"liquidator"`
	Target           string    `json:"target"`
	Asset            string    `json:"asset"`
	DebtCovered      string    `json:"debt_covered"`
	CollateralSeized string    `json:"collateral_seized"`
	BonusCollateral  string    `json:"bonus_collateral"`
	HealthBefore     string    `json:"health_before"`
	HealthAfter      string    `json:"health_after"`
	Timestamp        time.Time `json:"timestamp"`
}

func NewOutboundPublisher(js jetstream.JetStream, inputChan <-chan PublishableReceipt) *OutboundPublisher {
	return &OutboundPublisher{
		js:        js,
		inputChan: inputChan,
		log:       observability.NewLogger("publisher"),
	}
}

// Run drains the publish channel until ctx is cancelled or the channel
// closes.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case receipt, ok := <-op.inputChan:
			if !ok {
				return nil
			}

			if err := op.publish(ctx, receipt); err != nil {
				op.log.Warn().
					Int64("sequence", receipt.Sequence).
					Err(err).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, receipt PublishableReceipt) error {
	data, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	subject := fmt.Sprintf("dsc.liquidations.%s", receipt.Asset)
	_, err = op.js.Publish(ctx, subject, data)
	return err
}

// EnsureOutboundStream creates the liquidation receipt stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "DSC_LIQUIDATIONS",
		Subjects:  []string{"dsc.liquidations.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
