// Package ingestion defines the request/response types and Kafka event schemas
// used to feed documents into the search server.
package ingestion

import "time"

// Op is the store mutation an IngestEvent asks for.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// IngestRequest is the JSON body accepted by the add-document endpoint.
type IngestRequest struct {
	ID      *int   `json:"id"`
	Text    string `json:"text"`
	Status  string `json:"status"`
	Ratings []int  `json:"ratings"`
}

// IngestResponse is returned to the caller after a document is indexed.
type IngestResponse struct {
	DocumentID int    `json:"document_id"`
	Status     string `json:"status"`
	Terms      int    `json:"terms"`
}

// IngestEvent is the Kafka message payload on the document-ingest topic.
// An empty Op means OpAdd.
type IngestEvent struct {
	Op         Op        `json:"op,omitempty"`
	DocumentID int       `json:"document_id"`
	Text       string    `json:"text,omitempty"`
	Status     string    `json:"status,omitempty"`
	Ratings    []int     `json:"ratings,omitempty"`
	Policy     string    `json:"policy,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}
