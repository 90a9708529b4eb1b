// Package kafka delivers computed health index records to the sink topic
// consumed by the notification bot and other downstream readers.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/klongtoey/airhealth/internal/config"
	"github.com/klongtoey/airhealth/internal/domain"
)

// Publisher produces index records to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured sink topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, logger: logger}
}

// PublishBatch serializes and publishes multiple index records in a single
// WriteMessages call for efficiency. Keys are location ids, so a compacted
// topic retains the newest record per location.
func (p *Publisher) PublishBatch(ctx context.Context, recs []domain.HealthIndexRecord) error {
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(recs))
	for i := range recs {
		msg, err := serializeToMessage(recs[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return p.writer.WriteMessages(ctx, msgs...)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a HealthIndexRecord into a Kafka message.
func serializeToMessage(rec domain.HealthIndexRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize index record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(rec.Category)},
			{Key: "quality", Value: []byte(rec.Quality)},
			{Key: "hour", Value: []byte(rec.Hour.Format(time.RFC3339))},
		},
	}, nil
}
