package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
)

const (
	subjectPrefix   = "verifytx.verification."
	subjectWildcard = subjectPrefix + ">"
)

// Subject returns the NATS subject for a lifecycle event.
func Subject(event model.EventType) string {
	return subjectPrefix + string(event)
}

// Publisher emits verification lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *model.VerificationEvent) error
}

type NATSClient interface {
	Publisher
	SubscribeToVerificationEvents(ctx context.Context, handler func(*model.VerificationEvent)) error
	Close()
}

// natsConnection is the part of *nats.Conn the client uses.
type natsConnection interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

type natsClient struct {
	conn   natsConnection
	logger *zap.Logger
}

func NewNATSClient(url string, logger *zap.Logger) (NATSClient, error) {
	conn, err := nats.Connect(url, nats.Name("verifytx-gateway"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return &natsClient{
		conn:   conn,
		logger: logger,
	}, nil
}

func (c *natsClient) Publish(ctx context.Context, event *model.VerificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		c.logger.Error("failed to marshal verification event", zap.Error(err))
		return fmt.Errorf("failed to marshal verification event: %w", err)
	}

	subject := Subject(event.Event)
	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.Error("failed to publish verification event", zap.Error(err), zap.String("subject", subject), zap.Int64("entry_id", event.EntryID))
		return fmt.Errorf("failed to publish verification event: %w", err)
	}

	c.logger.Debug("verification event published", zap.String("subject", subject), zap.Int64("entry_id", event.EntryID))
	return nil
}

func (c *natsClient) SubscribeToVerificationEvents(ctx context.Context, handler func(*model.VerificationEvent)) error {
	_, err := c.conn.Subscribe(subjectWildcard, func(msg *nats.Msg) {
		var event model.VerificationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			c.logger.Error("failed to unmarshal verification event", zap.Error(err), zap.String("subject", msg.Subject))
			return
		}

		handler(&event)
		c.logger.Debug("verification event processed", zap.String("subject", msg.Subject), zap.String("event", string(event.Event)))
	})

	if err != nil {
		c.logger.Error("failed to subscribe to verification events", zap.Error(err))
		return fmt.Errorf("failed to subscribe to verification events: %w", err)
	}

	c.logger.Info("subscribed to verification events", zap.String("subject", subjectWildcard))
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}

// NopClient drops every event. Used when NATS is disabled.
type NopClient struct{}

func (NopClient) Publish(context.Context, *model.VerificationEvent) error { return nil }

func (NopClient) SubscribeToVerificationEvents(context.Context, func(*model.VerificationEvent)) error {
	return nil
}

func (NopClient) Close() {}
