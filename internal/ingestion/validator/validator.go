// Package validator provides input validation for ingestion requests and
// events. It enforces id, text and status constraints and returns per-field
// error details.
package validator

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

const (
	maxTextLength = 1048576
	maxRatings    = 10000
)

// ValidationError holds per-field validation failure messages. It matches
// apperrors.ErrInvalidArgument.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, field := range slices.Sorted(maps.Keys(e.Fields)) {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidArgument
}

// ValidateIngestRequest checks an add-document request and returns the
// parsed status.
func ValidateIngestRequest(req *ingestion.IngestRequest) (indexer.Status, error) {
	errs := make(map[string]string)
	if req.ID == nil {
		errs["id"] = "id is required"
	} else {
		checkID(errs, *req.ID)
	}
	status := checkDocument(errs, req.Text, req.Status, req.Ratings)
	if len(errs) > 0 {
		return 0, &ValidationError{Fields: errs}
	}
	return status, nil
}

// ValidateIngestEvent checks a document-ingest Kafka event and returns the
// parsed status and removal policy.
func ValidateIngestEvent(event *ingestion.IngestEvent) (indexer.Status, indexer.Policy, error) {
	errs := make(map[string]string)
	checkID(errs, event.DocumentID)

	var status indexer.Status
	switch event.Op {
	case "", ingestion.OpAdd:
		status = checkDocument(errs, event.Text, event.Status, event.Ratings)
	case ingestion.OpRemove:
	default:
		errs["op"] = fmt.Sprintf("unknown op %q", event.Op)
	}
	policy, err := indexer.ParsePolicy(event.Policy)
	if err != nil {
		errs["policy"] = err.Error()
	}
	if len(errs) > 0 {
		return 0, 0, &ValidationError{Fields: errs}
	}
	return status, policy, nil
}

func checkID(errs map[string]string, id int) {
	if id < 0 {
		errs["id"] = "id must not be negative"
	}
}

func checkDocument(errs map[string]string, text, rawStatus string, ratings []int) indexer.Status {
	if len(text) > maxTextLength {
		errs["text"] = fmt.Sprintf("text must be at most %d bytes", maxTextLength)
	}
	if len(ratings) > maxRatings {
		errs["ratings"] = fmt.Sprintf("at most %d ratings are accepted", maxRatings)
	}
	if rawStatus == "" {
		return indexer.StatusActive
	}
	status, err := indexer.ParseStatus(rawStatus)
	if err != nil {
		errs["status"] = err.Error()
	}
	return status
}
