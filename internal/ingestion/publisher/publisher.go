// Package publisher turns ingest requests into events on the document-ingest
// topic, for the index consumer of every search server to apply.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/kafka"
)

// Producer is the Kafka producer side the publisher writes to.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

type Publisher struct {
	producer Producer
	logger   *slog.Logger
}

func New(producer Producer) *Publisher {
	return &Publisher{
		producer: producer,
		logger:   slog.Default().With("component", "publisher"),
	}
}

// Add validates req and publishes an add event. Events are keyed by document
// id so every change to one document lands on the same partition in order.
func (p *Publisher) Add(ctx context.Context, req *ingestion.IngestRequest) (ingestion.IngestEvent, error) {
	status, err := validator.ValidateIngestRequest(req)
	if err != nil {
		return ingestion.IngestEvent{}, err
	}
	event := ingestion.IngestEvent{
		Op:         ingestion.OpAdd,
		DocumentID: *req.ID,
		Text:       req.Text,
		Status:     status.String(),
		Ratings:    req.Ratings,
		IngestedAt: time.Now().UTC(),
	}
	return event, p.publish(ctx, event)
}

// Remove publishes a remove event for id.
func (p *Publisher) Remove(ctx context.Context, id int, policy indexer.Policy) (ingestion.IngestEvent, error) {
	if id < 0 {
		return ingestion.IngestEvent{}, apperrors.InvalidArgumentf("document id %d is negative", id)
	}
	event := ingestion.IngestEvent{
		Op:         ingestion.OpRemove,
		DocumentID: id,
		Policy:     policy.String(),
		IngestedAt: time.Now().UTC(),
	}
	return event, p.publish(ctx, event)
}

func (p *Publisher) publish(ctx context.Context, event ingestion.IngestEvent) error {
	err := p.producer.Publish(ctx, kafka.Event{
		Key:   strconv.Itoa(event.DocumentID),
		Value: event,
	})
	if err != nil {
		p.logger.Error("failed to publish ingest event",
			"doc_id", event.DocumentID,
			"op", event.Op,
			"error", err,
		)
		return fmt.Errorf("publishing %s for document %d: %w", event.Op, event.DocumentID, apperrors.ErrUnavailable)
	}
	p.logger.Debug("ingest event published", "doc_id", event.DocumentID, "op", event.Op)
	return nil
}
