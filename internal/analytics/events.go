package analytics

import (
	"encoding/json"
	"fmt"
	"time"
)

type EventType string

const (
	EventSearch            EventType = "search"
	EventIndexDocument     EventType = "index_document"
	EventRemoveDocument    EventType = "remove_document"
	EventDuplicatesRemoved EventType = "duplicates_removed"
)

// SearchEvent describes one executed top-documents query.
type SearchEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	Plus      []string  `json:"plus"`
	Minus     []string  `json:"minus,omitempty"`
	Status    string    `json:"status"`
	Policy    string    `json:"policy"`
	Returned  int       `json:"returned"`
	LatencyMs float64   `json:"latency_ms"`
	CacheHit  bool      `json:"cache_hit"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// IndexEvent describes a change to the document store.
type IndexEvent struct {
	Type        EventType `json:"type"`
	DocumentIDs []int     `json:"document_ids"`
	TokenCount  int       `json:"token_count,omitempty"`
	Policy      string    `json:"policy,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}

// Key partitions events so that all events of a type land on one partition.
func (e SearchEvent) Key() string { return string(EventSearch) }

func (e IndexEvent) Key() string { return string(e.Type) }

// Event is anything the collector can publish.
type Event interface {
	Key() string
}

// Decode inspects the type field of an encoded event and returns a
// SearchEvent or an IndexEvent.
func Decode(value []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, fmt.Errorf("decoding analytics event: %w", err)
	}
	switch envelope.Type {
	case EventSearch:
		var e SearchEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding search event: %w", err)
		}
		return e, nil
	case EventIndexDocument, EventRemoveDocument, EventDuplicatesRemoved:
		var e IndexEvent
		if err := json.Unmarshal(value, &e); err != nil {
			return nil, fmt.Errorf("decoding index event: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown analytics event type %q", envelope.Type)
	}
}
