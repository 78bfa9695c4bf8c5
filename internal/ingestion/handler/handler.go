// Package handler serves the asynchronous ingest endpoints. Documents are
// accepted onto Kafka and become searchable once the index consumer applies
// them.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-server/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/search-server/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-server/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-server/pkg/logger"
)

// Publisher is implemented by publisher.Publisher.
type Publisher interface {
	Add(ctx context.Context, req *ingestion.IngestRequest) (ingestion.IngestEvent, error)
	Remove(ctx context.Context, id int, policy indexer.Policy) (ingestion.IngestEvent, error)
}

type Handler struct {
	publisher Publisher
	logger    *slog.Logger
}

func New(pub Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ingest/documents", h.Ingest)
	mux.HandleFunc("DELETE /api/v1/ingest/documents/{id}", h.Remove)
}

type acceptedResponse struct {
	DocumentID int          `json:"document_id"`
	Op         ingestion.Op `json:"op"`
	State      string       `json:"state"`
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	var req ingestion.IngestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 2<<20)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	event, err := h.publisher.Add(r.Context(), &req)
	if err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		log.Error("ingestion failed", "error", err)
		h.writeError(w, apperrors.HTTPStatusCode(err), "ingestion failed")
		return
	}
	log.Info("document accepted", "doc_id", event.DocumentID)
	h.writeJSON(w, http.StatusAccepted, acceptedResponse{DocumentID: event.DocumentID, Op: event.Op, State: "queued"})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "document id must be an integer")
		return
	}
	policy, err := indexer.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	event, err := h.publisher.Remove(r.Context(), id, policy)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, acceptedResponse{DocumentID: event.DocumentID, Op: event.Op, State: "queued"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
