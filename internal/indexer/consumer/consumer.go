// Package consumer reads document-ingest events from Kafka and applies them
// to the document store.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/metrics"
)

// Store is the mutating side of indexer.Engine.
type Store interface {
	AddDocument(id int, text string, status indexer.Status, ratings []int) error
	RemoveDocumentWith(policy indexer.Policy, id int)
	DocumentCount() int
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// Lag reports how many ingest events are still ahead of this replica.
func (ic *IndexConsumer) Lag() int64 {
	return ic.consumer.Lag()
}

// HandleMessage returns a Kafka MessageHandler that applies every ingest
// event to store. Malformed or rejected events are logged and acknowledged,
// since redelivery cannot fix them. onChange, if set, runs after every
// successful mutation. m may be nil.
func HandleMessage(store Store, m *metrics.Metrics, onChange func(ctx context.Context, event ingestion.IngestEvent)) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	count := func(status string) {
		if m != nil {
			m.IngestMessagesTotal.WithLabelValues(status).Inc()
		}
	}
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IngestEvent](value)
		if err != nil {
			count("malformed")
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		status, policy, err := validator.ValidateIngestEvent(&event)
		if err != nil {
			count("rejected")
			logger.Warn("ingest event rejected", "doc_id", event.DocumentID, "error", err)
			return nil
		}

		if event.Op == ingestion.OpRemove {
			store.RemoveDocumentWith(policy, event.DocumentID)
			count("removed")
			if m != nil {
				m.DocsRemovedTotal.WithLabelValues(policy.String()).Inc()
			}
			logger.Debug("document removed", "doc_id", event.DocumentID, "policy", policy.String())
		} else {
			if err := store.AddDocument(event.DocumentID, event.Text, status, event.Ratings); err != nil {
				if errors.Is(err, apperrors.ErrInvalidArgument) {
					count("rejected")
					logger.Warn("ingest event rejected", "doc_id", event.DocumentID, "error", err)
					return nil
				}
				count("failed")
				return err
			}
			count("indexed")
			if m != nil {
				m.DocsIndexedTotal.Inc()
			}
			logger.Debug("document indexed", "doc_id", event.DocumentID, "status", status.String())
		}
		if m != nil {
			m.DocumentCount.Set(float64(store.DocumentCount()))
		}
		if onChange != nil {
			onChange(ctx, event)
		}
		return nil
	}
}
