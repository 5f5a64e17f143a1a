package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"tool_gateway/internal/queue"
	"tool_gateway/internal/storage"
	"tool_gateway/internal/utils"
)

const maxDeadLetterListing = 1000

// handleGetRequest serves GET /admin/requests/{id}
func (d *Dependencies) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		utils.RespondWithError(w, http.StatusNotFound, "not_found", "tracking record not found", "")
		return
	}

	record, err := d.Gateway.Record(r.Context(), id)
	if errors.Is(err, storage.ErrTrackingRecordNotFound) {
		utils.RespondWithError(w, http.StatusNotFound, "not_found", "tracking record not found", id)
		return
	}
	if err != nil {
		d.logger.Error("Failed to load tracking record", "request_id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal_error", "failed to load tracking record", id)
		return
	}

	_ = utils.RespondWithJSON(w, http.StatusOK, record)
}

// handleListDeadLetters serves GET /admin/billing/dead-letters
func (d *Dependencies) handleListDeadLetters(w http.ResponseWriter, r *http.Request) {
	if d.BillingWorker == nil {
		utils.RespondWithError(w, http.StatusNotFound, "not_found", "billing worker not configured", "")
		return
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			utils.RespondWithError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer", "")
			return
		}
		limit = min(n, maxDeadLetterListing)
	}

	items, err := d.BillingWorker.DeadLetterItems(r.Context(), limit)
	if err != nil {
		d.logger.Error("Failed to list billing dead letters", "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal_error", "failed to list dead letters", "")
		return
	}
	_ = utils.RespondWithJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// handleRetryDeadLetter serves POST /admin/billing/dead-letters/{id}/retry
func (d *Dependencies) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if d.BillingWorker == nil {
		utils.RespondWithError(w, http.StatusNotFound, "not_found", "billing worker not configured", "")
		return
	}

	id := r.PathValue("id")
	err := d.BillingWorker.RetryDeadLetterItem(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "not_found", "dead letter item not found", "")
	case err != nil:
		d.logger.Error("Failed to retry billing dead letter", "id", id, "error", err)
		utils.RespondWithError(w, http.StatusInternalServerError, "internal_error", "failed to retry dead letter", "")
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}
