package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
)

func intPtr(v int) *int { return &v }

func TestValidateIngestRequest(t *testing.T) {
	status, err := ValidateIngestRequest(&ingestion.IngestRequest{ID: intPtr(3), Text: "cat", Status: "banned"})
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusBanned, status)

	status, err = ValidateIngestRequest(&ingestion.IngestRequest{ID: intPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusActive, status)
}

func TestValidateIngestRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		req   ingestion.IngestRequest
		field string
	}{
		{"missing id", ingestion.IngestRequest{Text: "cat"}, "id"},
		{"negative id", ingestion.IngestRequest{ID: intPtr(-1)}, "id"},
		{"unknown status", ingestion.IngestRequest{ID: intPtr(1), Status: "deleted"}, "status"},
		{"text too long", ingestion.IngestRequest{ID: intPtr(1), Text: strings.Repeat("a", maxTextLength+1)}, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateIngestRequest(&tt.req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
			assert.Equal(t, 400, apperrors.HTTPStatusCode(err))
		})
	}
}

func TestValidationErrorMessageIsSorted(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"text": "too long", "id": "missing"}}
	assert.Equal(t, "id: missing; text: too long", err.Error())
}

func TestValidateIngestEvent(t *testing.T) {
	status, policy, err := ValidateIngestEvent(&ingestion.IngestEvent{DocumentID: 4, Text: "x", Status: "irrelevant"})
	require.NoError(t, err)
	assert.Equal(t, indexer.StatusIrrelevant, status)
	assert.Equal(t, indexer.Sequential, policy)

	_, policy, err = ValidateIngestEvent(&ingestion.IngestEvent{Op: ingestion.OpRemove, DocumentID: 4, Status: "bogus", Policy: "par"})
	require.NoError(t, err, "status is ignored on removal")
	assert.Equal(t, indexer.Parallel, policy)

	_, _, err = ValidateIngestEvent(&ingestion.IngestEvent{Op: "upsert", DocumentID: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, _, err = ValidateIngestEvent(&ingestion.IngestEvent{DocumentID: 1, Policy: "async"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
