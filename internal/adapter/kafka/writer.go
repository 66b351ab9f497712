// Package kafka publishes derived daily AQI records to a sink topic for
// downstream consumers such as dashboards and alerting.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/pacificaqd/airquality-etl/internal/config"
	"github.com/pacificaqd/airquality-etl/internal/domain"
)

// Writer produces daily AQI messages to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishDaily serializes and publishes a batch of daily AQI records in a
// single WriteMessages call for efficiency.
func (w *Writer) PublishDaily(ctx context.Context, records []domain.DailyAQI) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish daily aqi: %w", err)
	}
	w.logger.Info("daily aqi published", "records", len(records))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a daily record into a Kafka message. The key
// groups one site and pollutant onto one partition so per-site consumers
// see days in order.
func serializeToMessage(record domain.DailyAQI) (kafkago.Message, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize daily aqi: %w", err)
	}
	key := fmt.Sprintf("%s-%s-%s-%s",
		record.Site.StateCode, record.Site.CountyCode, record.Site.SiteNumber,
		record.ParameterCode)
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(domain.Categorize(record.AQI))},
			{Key: "aqi", Value: []byte(strconv.Itoa(record.AQI))},
			{Key: "generated_at", Value: []byte(record.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
