package storage

import (
	"context"
	"sync"

	"tool_gateway/internal/models"
)

// MemoryTrackingStore keeps tracking records in process memory.
// It mirrors TrackingRepository's pending-only write guards and is used when no
// database is configured.
type MemoryTrackingStore struct {
	mu      sync.RWMutex
	records map[string]*models.TrackingRecord
}

// NewMemoryTrackingStore creates an empty in-memory store
func NewMemoryTrackingStore() *MemoryTrackingStore {
	return &MemoryTrackingStore{records: make(map[string]*models.TrackingRecord)}
}

// Insert stores a copy of record
func (s *MemoryTrackingStore) Insert(ctx context.Context, record *models.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.RequestID]; exists {
		return ErrDuplicateRequestID
	}
	s.records[record.RequestID] = record.Clone()
	return nil
}

// AppendMeteredCall appends to a pending record
func (s *MemoryTrackingStore) AppendMeteredCall(ctx context.Context, requestID string, call models.MeteredCall) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.pendingLocked(requestID)
	if err != nil {
		return err
	}
	record.MeteredCalls = append(record.MeteredCalls, call)
	return nil
}

// Finalize applies the terminal write to a pending record
func (s *MemoryTrackingStore) Finalize(ctx context.Context, requestID string, fin models.Finalization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.pendingLocked(requestID)
	if err != nil {
		return err
	}

	execMS := fin.ExecutionTimeMS
	completedAt := fin.CompletedAt
	breakdown := fin.CostBreakdown.Clone()

	record.Status = fin.Status
	record.ExecutionTimeMS = &execMS
	record.InferenceTokens = fin.Usage.InferenceTokens
	record.ExternalAPICalls = fin.Usage.ExternalAPICalls
	record.CostBreakdown = &breakdown
	record.CompletedAt = &completedAt
	if fin.ErrorMessage != "" {
		msg := fin.ErrorMessage
		record.ErrorMessage = &msg
	}
	return nil
}

// Get returns a copy of the stored record
func (s *MemoryTrackingStore) Get(ctx context.Context, requestID string) (*models.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[requestID]
	if !ok {
		return nil, ErrTrackingRecordNotFound
	}
	return record.Clone(), nil
}

// Len returns the number of stored records
func (s *MemoryTrackingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryTrackingStore) pendingLocked(requestID string) (*models.TrackingRecord, error) {
	record, ok := s.records[requestID]
	if !ok {
		return nil, ErrTrackingRecordNotFound
	}
	if record.Status != models.StatusPending {
		return nil, ErrRecordNotPending
	}
	return record, nil
}
