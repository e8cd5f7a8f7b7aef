package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"tokendesk/internal/core/ports"
)

// Publisher republishes in-process mutation events onto NATS subjects so
// web UI collaborators can refresh in real time. The engines never depend
// on it; losing the bridge only costs live updates.
type Publisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NewPublisher connects to the NATS server.
func NewPublisher(url string, baseLogger *zerolog.Logger) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log := baseLogger.With().Str("component", "nats_bridge").Logger()
	log.Info().Str("url", url).Msg("Connected to NATS")
	return &Publisher{conn: conn, log: log}, nil
}

// Attach subscribes the bridge to every mutation topic on the bus. Bus
// topic names double as NATS subjects.
func (p *Publisher) Attach(bus ports.EventBus) {
	topics := []string{
		ports.TopicProposalCreated,
		ports.TopicVoteCast,
		ports.TopicProposalFinalized,
		ports.TopicProposalDeleted,
		ports.TopicVerificationEvent,
		ports.TopicVerificationFinal,
	}
	for _, topic := range topics {
		bus.Subscribe(topic, p.relay)
	}
}

func (p *Publisher) relay(_ context.Context, event ports.Event) error {
	data, err := json.Marshal(event.Data)
	if err != nil {
		p.log.Error().Err(err).Str("topic", event.Topic).Msg("Failed to marshal event payload")
		return fmt.Errorf("marshal %s payload: %w", event.Topic, err)
	}

	if err := p.conn.Publish(event.Topic, data); err != nil {
		p.log.Error().Err(err).Str("topic", event.Topic).Msg("Failed to publish to NATS")
		return fmt.Errorf("publish %s: %w", event.Topic, err)
	}

	p.log.Debug().Str("topic", event.Topic).Msg("Event relayed to NATS")
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.log.Info().Msg("NATS connection closed")
	}
}
