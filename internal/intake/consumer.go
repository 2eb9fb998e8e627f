// Package intake feeds audit events from Kafka into the ledger.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditledger/internal/metrics"
	"github.com/persistorai/auditledger/internal/models"
	"github.com/persistorai/auditledger/internal/service"
)

// retryBackoff is the pause before a failed session is restarted.
const retryBackoff = 2 * time.Second

// Appender appends one event built from a request.
type Appender interface {
	AppendEvent(ctx context.Context, req models.AppendEventRequest) (*models.AuditEvent, error)
}

// Config locates the topic to consume.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// errAppendFailed ends a claim so its partition is re-read from the last
// committed offset.
var errAppendFailed = errors.New("append failed")

// Consumer is a sarama consumer group handler. Each message is a JSON
// AppendEventRequest. Messages that can never be appended are marked and
// skipped; transient append failures stop the claim without marking, so the
// message is delivered again.
type Consumer struct {
	appender Appender
	log      *logrus.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(appender Appender, log *logrus.Logger) *Consumer {
	return &Consumer{appender: appender, log: log}
}

// Run joins the consumer group and consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, cfg Config) error {
	sc := sarama.NewConfig()
	sc.ClientID = "auditledger"
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return fmt.Errorf("intake: creating consumer group: %w", err)
	}
	defer group.Close() //nolint:errcheck // best-effort close on shutdown.

	c.log.WithFields(logrus.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
		"group":   cfg.GroupID,
	}).Info("intake.started")

	for {
		// Consume returns on every rebalance and must be called again.
		err := group.Consume(ctx, []string{cfg.Topic}, c)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) || ctx.Err() != nil {
			c.log.Info("intake.stopped")
			return nil
		}

		if err != nil {
			c.log.WithError(err).Warn("intake.session_failed")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(retryBackoff):
			}
		}
	}
}

// Setup is called at the start of a session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup is called at the end of a session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim appends each message of one partition in order.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if err := c.handle(session.Context(), msg); err != nil {
				return err
			}

			session.MarkMessage(msg, "")
		}
	}
}

// handle returns nil when msg is done with, either appended or skipped as
// permanently invalid.
func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	fields := logrus.Fields{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	}

	var req models.AppendEventRequest
	if err := models.DecodeJSON(msg.Value, &req); err != nil {
		metrics.IntakeMessages.WithLabelValues("malformed").Inc()
		c.log.WithFields(fields).WithError(err).Warn("intake.malformed_message")
		return nil
	}

	ev, err := c.appender.AppendEvent(ctx, req)
	switch {
	case err == nil:
		metrics.IntakeMessages.WithLabelValues("appended").Inc()
		c.log.WithFields(fields).WithField("event_id", ev.EventID).Debug("intake.appended")
		return nil
	case errors.Is(err, service.ErrSealDeferred):
		metrics.IntakeMessages.WithLabelValues("appended").Inc()
		c.log.WithFields(fields).WithField("event_id", ev.EventID).Warn("intake.appended_seal_deferred")
		return nil
	case errors.Is(err, models.ErrInvalidEvent):
		metrics.IntakeMessages.WithLabelValues("rejected").Inc()
		c.log.WithFields(fields).WithError(err).Warn("intake.rejected_message")
		return nil
	default:
		metrics.IntakeMessages.WithLabelValues("retry").Inc()
		c.log.WithFields(fields).WithError(err).Error("intake.append_failed")
		return fmt.Errorf("%w: %w", errAppendFailed, err)
	}
}
