package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DscLedger/internal/observability"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber consumes price feed subjects from JetStream and hands
// raw messages to the shell, which parses and submits them to the core.
// Messages are acked only after the core has accepted or durably
// rejected the event; a lost process redelivers, and the idempotency
// guard absorbs the duplicates.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawEvent is one undecoded feed message.
type RawEvent struct {
	Subject  string
	Data     []byte
	Received time.Time
	AckFunc  func() // ack after successful processing
	NakFunc  func() // nak for redelivery on transient failure
}

// SubjectConfig maps one NATS subject to a durable consumer.
type SubjectConfig struct {
	Subject      string
	ConsumerName string
	StreamName   string
}

// PriceStreamName is the inbound JetStream stream carrying price feeds.
const PriceStreamName = "DSC_PRICES"

// DefaultSubjects returns the wildcard price-feed subscription.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "dsc.prices.>", ConsumerName: "dsc-prices", StreamName: PriceStreamName},
	}
}

// SubjectsFor builds one durable consumer per configured feed subject.
// An empty list falls back to the wildcard subscription.
func SubjectsFor(subjects []string) []SubjectConfig {
	if len(subjects) == 0 {
		return DefaultSubjects()
	}
	sanitize := strings.NewReplacer(".", "-", "*", "any", ">", "all")
	configs := make([]SubjectConfig, 0, len(subjects))
	for _, subject := range subjects {
		configs = append(configs, SubjectConfig{
			Subject:      subject,
			ConsumerName: "dsc-" + sanitize.Replace(subject),
			StreamName:   PriceStreamName,
		})
	}
	return configs
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		log:       observability.NewLogger("ingestion"),
	}
}

// Subscribe creates durable JetStream consumers for the configured
// subjects. Consumers use explicit ack, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:  msg.Subject(),
				Data:     msg.Data(),
				Received: time.Now(),
				AckFunc:  func() { msg.Ack() },
				NakFunc:  func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().
			Str("subject", cfg.Subject).
			Str("consumer", cfg.ConsumerName).
			Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the inbound streams if they don't exist.
func EnsureStreams(ctx context.Context, js jetstream.JetStream) error {
	streams := []jetstream.StreamConfig{
		{
			Name:      PriceStreamName,
			Subjects:  []string{"dsc.prices.>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string) (*nats.Conn, jetstream.JetStream, error) {
	log := observability.NewLogger("nats")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
