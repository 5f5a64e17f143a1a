package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tool_gateway/internal/models"
)

// TrackingRepository persists tool request lifecycle records in PostgreSQL
type TrackingRepository struct {
	db *DB
}

// NewTrackingRepository creates a new tracking repository
func NewTrackingRepository(db *DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

const trackingColumns = `
	request_id, tool_name, caller_key, reasoning_tier, status, query_params,
	execution_time_ms, error_message, metered_calls, inference_tokens,
	external_api_calls, cost_breakdown, created_at, completed_at`

// Insert stores a new pending record
func (r *TrackingRepository) Insert(ctx context.Context, record *models.TrackingRecord) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO tool_requests (
			request_id, tool_name, caller_key, reasoning_tier, status,
			query_params, metered_calls, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (request_id) DO NOTHING
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		record.RequestID,
		record.ToolName,
		record.CallerKey,
		record.ReasoningTier,
		record.Status,
		record.QueryParams,
		record.MeteredCalls,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tracking record: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateRequestID
	}
	return nil
}

// AppendMeteredCall adds one sub-operation to a pending record's metered_calls array.
// Records that already reached a terminal status are left untouched.
func (r *TrackingRepository) AppendMeteredCall(ctx context.Context, requestID string, call models.MeteredCall) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal([]models.MeteredCall{call})
	if err != nil {
		return fmt.Errorf("failed to encode metered call: %w", err)
	}

	query := `
		UPDATE tool_requests
		SET metered_calls = metered_calls || $2::jsonb
		WHERE request_id = $1 AND status = 'pending'
	`

	res, err := r.db.conn.ExecContext(ctx, query, requestID, string(payload))
	if err != nil {
		return fmt.Errorf("failed to append metered call: %w", err)
	}
	return r.checkPendingWrite(ctx, res, requestID)
}

// Finalize applies the single terminal write. It only succeeds while the record is pending.
func (r *TrackingRepository) Finalize(ctx context.Context, requestID string, fin models.Finalization) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		UPDATE tool_requests
		SET status = $2,
			execution_time_ms = $3,
			error_message = $4,
			inference_tokens = $5,
			external_api_calls = $6,
			cost_breakdown = $7,
			completed_at = $8
		WHERE request_id = $1 AND status = 'pending'
	`

	errorMessage := sql.NullString{String: fin.ErrorMessage, Valid: fin.ErrorMessage != ""}

	res, err := r.db.conn.ExecContext(ctx, query,
		requestID,
		fin.Status,
		fin.ExecutionTimeMS,
		errorMessage,
		fin.Usage.InferenceTokens,
		fin.Usage.ExternalAPICalls,
		fin.CostBreakdown,
		fin.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize tracking record: %w", err)
	}
	return r.checkPendingWrite(ctx, res, requestID)
}

// Get retrieves a record by request id
func (r *TrackingRepository) Get(ctx context.Context, requestID string) (*models.TrackingRecord, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var record models.TrackingRecord
	query := `SELECT ` + trackingColumns + ` FROM tool_requests WHERE request_id = $1`

	if err := r.db.conn.GetContext(ctx, &record, query, requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTrackingRecordNotFound
		}
		return nil, fmt.Errorf("failed to get tracking record: %w", err)
	}
	return &record, nil
}

// checkPendingWrite turns a zero-row update into a not-found or not-pending error
func (r *TrackingRepository) checkPendingWrite(ctx context.Context, res sql.Result, requestID string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.conn.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM tool_requests WHERE request_id = $1)`, requestID); err != nil {
		return fmt.Errorf("failed to check tracking record: %w", err)
	}
	if !exists {
		return ErrTrackingRecordNotFound
	}
	return ErrRecordNotPending
}
