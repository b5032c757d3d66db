package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/keepsakehq/keepsake/models"
	"github.com/keepsakehq/keepsake/pkg/metrics"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	EventAssetCreated       = "asset.created"
	EventTranscriptAttached = "transcript.attached"
	EventStoryDeleted       = "story.deleted"
)

type envelope struct {
	Event          string    `json:"event"`
	StorySessionID string    `json:"story_session_id"`
	AssetID        string    `json:"asset_id,omitempty"`
	AssetType      string    `json:"asset_type,omitempty"`
	SourceType     string    `json:"source_type,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher emits story asset lifecycle events. Publishing is best-effort:
// a broker failure is logged and counted, never surfaced to the user flow.
// A nil Publisher is valid and publishes nothing.
type Publisher struct {
	writer *kafka.Writer
	topic  string
	logger *logrus.Logger
}

// NewPublisher returns nil when no brokers are configured.
func NewPublisher(brokers, topic string, logger *logrus.Logger) *Publisher {
	if brokers == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return &Publisher{
		writer: writer,
		topic:  topic,
		logger: logger,
	}
}

func (p *Publisher) AssetCreated(ctx context.Context, asset *models.StoryAsset) {
	p.publish(ctx, envelope{
		Event:          EventAssetCreated,
		StorySessionID: asset.StorySessionID.String(),
		AssetID:        asset.ID.String(),
		AssetType:      asset.AssetType,
		SourceType:     asset.SourceType,
		OccurredAt:     time.Now().UTC(),
	})
}

func (p *Publisher) TranscriptAttached(ctx context.Context, transcript *models.StoryAsset) {
	p.publish(ctx, envelope{
		Event:          EventTranscriptAttached,
		StorySessionID: transcript.StorySessionID.String(),
		AssetID:        transcript.ID.String(),
		AssetType:      transcript.AssetType,
		SourceType:     transcript.SourceType,
		OccurredAt:     time.Now().UTC(),
	})
}

func (p *Publisher) StoryDeleted(ctx context.Context, storyID string) {
	p.publish(ctx, envelope{
		Event:          EventStoryDeleted,
		StorySessionID: storyID,
		OccurredAt:     time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, ev envelope) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.WithError(err).Error("failed to marshal event payload")
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.StorySessionID),
		Value: payload,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "error").Inc()
		p.logger.WithError(err).WithField("event", ev.Event).Warn("failed to publish event")
		return
	}
	metrics.KafkaMessagesTotal.WithLabelValues(p.topic, "ok").Inc()
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
