package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// VolumeRepository derives a caller's monthly call volume from tool_requests.
// It serves as the volume source when Redis counters are not configured.
//
// Only finished calls to served tools count: pending rows (including the call
// being priced) and rejected unknown tool names are excluded, matching the
// usage events the billing worker applies to Redis.
type VolumeRepository struct {
	db    *DB
	tools []string
	now   func() time.Time
}

// NewVolumeRepository creates a new volume repository counting calls to the named tools
func NewVolumeRepository(db *DB, toolNames []string) *VolumeRepository {
	return &VolumeRepository{db: db, tools: toolNames, now: time.Now}
}

// MonthlyCalls counts the caller's finished calls since the start of the current UTC month
func (r *VolumeRepository) MonthlyCalls(ctx context.Context, callerKey string) (int64, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var count int64
	query := `
		SELECT COUNT(*)
		FROM tool_requests
		WHERE caller_key = $1
		  AND created_at >= $2
		  AND status <> 'pending'
		  AND tool_name = ANY($3)
	`
	if err := r.db.conn.GetContext(ctx, &count, query, callerKey, MonthStart(r.now()), pq.Array(r.tools)); err != nil {
		return 0, fmt.Errorf("failed to count monthly calls: %w", err)
	}
	return count, nil
}

// AddUsage is a no-op: every request already contributes its own tool_requests row.
func (r *VolumeRepository) AddUsage(ctx context.Context, callerKey string, calls int64, cost decimal.Decimal) error {
	return nil
}

// MonthStart returns midnight UTC on the first day of t's month
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
