// Package notify hands outbound notices (invite emails and the like) to a
// delivery backend. Actual mail rendering happens in a downstream worker that
// consumes the Kafka topic.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Gopher0727/GiftList/internal/pkg/kafka"
	logger "github.com/Gopher0727/GiftList/middleware/log"
)

// TemplateGroupInvite is sent when a member invites someone by email.
const TemplateGroupInvite = "group-invite"

var ErrNoRecipient = errors.New("notification has no recipient")

// Notifier delivers a templated notice to one recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]any) error
}

// Envelope is the record written to the notification topic.
type Envelope struct {
	Recipient  string         `json:"recipient"`
	TemplateID string         `json:"templateId"`
	Data       map[string]any `json:"data,omitempty"`
	TraceID    string         `json:"traceId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// KafkaNotifier writes envelopes keyed by recipient so notices for one address
// stay ordered.
type KafkaNotifier struct {
	producer   *kafka.Producer
	topic      string
	maxRetries int
	log        *zap.Logger
	now        func() time.Time
}

func NewKafkaNotifier(producer *kafka.Producer, topic string, maxRetries int, log *zap.Logger) *KafkaNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaNotifier{
		producer:   producer,
		topic:      topic,
		maxRetries: maxRetries,
		log:        log,
		now:        time.Now,
	}
}

func (n *KafkaNotifier) Send(ctx context.Context, recipient, templateID string, data map[string]any) error {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return ErrNoRecipient
	}
	body, err := json.Marshal(Envelope{
		Recipient:  recipient,
		TemplateID: templateID,
		Data:       data,
		TraceID:    logger.GetTraceID(ctx),
		CreatedAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	partition, offset, err := n.producer.ProduceWithRetry(ctx, n.topic, []byte(recipient), body, n.maxRetries)
	if err != nil {
		n.log.Error("notification not delivered",
			zap.String("template", templateID),
			zap.Error(err),
		)
		return err
	}
	n.log.Debug("notification queued",
		zap.String("template", templateID),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// LogNotifier only logs. Used when Kafka is disabled.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, recipient, templateID string, data map[string]any) error {
	if strings.TrimSpace(recipient) == "" {
		return ErrNoRecipient
	}
	n.log.Info("notification (not delivered, kafka disabled)",
		zap.String("recipient", recipient),
		zap.String("template", templateID),
		zap.Any("data", data),
		zap.String(string(logger.TraceIDKey), logger.GetTraceID(ctx)),
	)
	return nil
}
