package tracking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tool_gateway/internal/models"
	"tool_gateway/internal/pricing"
	"tool_gateway/internal/storage"
)

// failingStore rejects or panics on every call
type failingStore struct {
	panics bool
	block  time.Duration
	calls  int
	mu     sync.Mutex
}

func (s *failingStore) hit() error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.block > 0 {
		time.Sleep(s.block)
	}
	if s.panics {
		panic("store exploded")
	}
	return errors.New("store unavailable")
}

func (s *failingStore) Insert(ctx context.Context, record *models.TrackingRecord) error {
	return s.hit()
}

func (s *failingStore) AppendMeteredCall(ctx context.Context, requestID string, call models.MeteredCall) error {
	return s.hit()
}

func (s *failingStore) Finalize(ctx context.Context, requestID string, fin models.Finalization) error {
	return s.hit()
}

func (s *failingStore) Get(ctx context.Context, requestID string) (*models.TrackingRecord, error) {
	return nil, s.hit()
}

func newTestTracker(store Store) *Tracker {
	return NewTracker(store, pricing.MustNewModel(pricing.DefaultConfig()), DefaultConfig())
}

func TestTracker_CompleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryTrackingStore()
	tr := newTestTracker(store)

	tr.Create(ctx, "req-1", "get_entity", "caller", map[string]any{"id": "e1"}, WithReasoningTier("deep"))
	tr.RecordSubOperation(ctx, "req-1", "registry.query", 3*time.Millisecond, 1)
	tr.RecordSubOperation(ctx, "req-1", "registry.query", 2*time.Millisecond, 4)

	first := tr.Complete(ctx, "req-1", Completion{
		ExecutionTime:       40 * time.Millisecond,
		Status:              models.StatusCompleted,
		Usage:               models.Usage{InferenceTokens: 1000},
		ExternalUnitCostUSD: decimal.RequireFromString("0.002"),
	})

	second := tr.Complete(ctx, "req-1", Completion{
		ExecutionTime: time.Second,
		Status:        models.StatusFailed,
		ErrorMessage:  "late failure",
		Usage:         models.Usage{InferenceTokens: 99_999},
	})

	assert.True(t, first.TotalUSD.Equal(second.TotalUSD))
	assert.Equal(t, first.Items, second.Items)

	rec, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, "deep", rec.ReasoningTier)
	assert.Len(t, rec.MeteredCalls, 2)
	assert.Nil(t, rec.ErrorMessage)
	assert.Equal(t, int64(1000), rec.InferenceTokens)
	require.NotNil(t, rec.ExecutionTimeMS)
	assert.Equal(t, int64(40), *rec.ExecutionTimeMS)
	assert.True(t, rec.CostBreakdown.TotalUSD.Equal(first.TotalUSD))
}

func TestTracker_CompleteAfterEvictionFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryTrackingStore()
	tr := newTestTracker(store)

	tr.Create(ctx, "req-2", "search_entities", "caller", nil)
	tr.RecordSubOperation(ctx, "req-2", "registry.query", time.Millisecond, 10)
	first := tr.Complete(ctx, "req-2", Completion{Status: models.StatusCompleted})

	tr.completed.Clear()

	second := tr.Complete(ctx, "req-2", Completion{Status: models.StatusFailed, Usage: models.Usage{InferenceTokens: 5}})
	assert.True(t, first.TotalUSD.Equal(second.TotalUSD))

	rec, err := store.Get(ctx, "req-2")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, rec.Status)
}

func TestTracker_SubOperationsAfterCompletionIgnored(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryTrackingStore()
	tr := newTestTracker(store)

	tr.Create(ctx, "req-3", "get_entity", "caller", nil)
	tr.RecordSubOperation(ctx, "req-3", "registry.query", time.Millisecond, 1)
	tr.Complete(ctx, "req-3", Completion{Status: models.StatusCompleted})

	tr.RecordSubOperation(ctx, "req-3", "registry.query", time.Millisecond, 1)
	tr.ReportUsage(ctx, "req-3", models.Usage{InferenceTokens: 50})

	rec, err := tr.Get(ctx, "req-3")
	require.NoError(t, err)
	assert.Len(t, rec.MeteredCalls, 1)
	assert.Equal(t, int64(0), rec.InferenceTokens)
}

func TestTracker_NonTerminalStatusCoercedToFailed(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(storage.NewMemoryTrackingStore())

	tr.Create(ctx, "req-4", "get_entity", "caller", nil)
	tr.Complete(ctx, "req-4", Completion{Status: models.StatusPending})

	rec, err := tr.Get(ctx, "req-4")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, rec.Status)
	require.NotNil(t, rec.ErrorMessage)
}

func TestTracker_ReportUsageAccumulates(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(nil)

	tr.Create(ctx, "req-5", "get_entity_details", "caller", nil)
	tr.ReportUsage(ctx, "req-5", models.Usage{InferenceTokens: 400, ExternalAPICalls: 1})
	tr.ReportUsage(ctx, "req-5", models.Usage{InferenceTokens: 600, ExternalAPICalls: 2})

	b := tr.Complete(ctx, "req-5", Completion{
		Status:              models.StatusCompleted,
		Usage:               models.Usage{ExternalAPICalls: 1},
		ExternalUnitCostUSD: decimal.RequireFromString("0.001"),
	})

	tokens, _ := b.Item(models.CostCenterInferenceTokens)
	api, _ := b.Item(models.CostCenterExternalAPICalls)
	assert.Equal(t, int64(1000), tokens.Quantity)
	assert.Equal(t, int64(4), api.Quantity)
	assert.True(t, decimal.RequireFromString("0.007").Equal(b.TotalUSD), "total %s", b.TotalUSD)
}

func TestTracker_SurvivesStoreFailures(t *testing.T) {
	for _, store := range []*failingStore{{}, {panics: true}} {
		ctx := context.Background()
		tr := newTestTracker(store)

		tr.Create(ctx, "req-6", "get_entity", "caller", nil)
		tr.RecordSubOperation(ctx, "req-6", "registry.query", time.Millisecond, 2)
		b := tr.Complete(ctx, "req-6", Completion{Status: models.StatusCompleted})

		metered, ok := b.Item(models.CostCenterMeteredCalls)
		require.True(t, ok)
		assert.Equal(t, int64(1), metered.Quantity)
		assert.Equal(t, 3, store.calls)

		rec, err := tr.Get(ctx, "req-6")
		require.NoError(t, err)
		assert.Equal(t, models.StatusCompleted, rec.Status)
	}
}

func TestTracker_SlowStoreDoesNotAffectBreakdown(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{block: 50 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.StoreTimeout = 10 * time.Millisecond
	tr := NewTracker(store, pricing.MustNewModel(pricing.DefaultConfig()), cfg)

	tr.Create(ctx, "req-7", "get_entity", "caller", nil)
	b := tr.Complete(ctx, "req-7", Completion{Status: models.StatusFailed, ErrorMessage: "x"})
	assert.True(t, b.TotalUSD.IsZero())
}

func TestTracker_CompleteUnknownRequest(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(storage.NewMemoryTrackingStore())

	b := tr.Complete(ctx, "never-created", Completion{Status: models.StatusCompleted})
	assert.True(t, b.TotalUSD.IsZero())

	_, err := tr.Get(ctx, "never-created")
	assert.ErrorIs(t, err, storage.ErrTrackingRecordNotFound)
}

func TestTracker_ConcurrentCompletionsRunOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryTrackingStore()
	tr := newTestTracker(store)

	tr.Create(ctx, "req-8", "get_entity", "caller", nil)
	for i := 0; i < 5; i++ {
		tr.RecordSubOperation(ctx, "req-8", "registry.query", time.Millisecond, 1)
	}

	var wg sync.WaitGroup
	results := make([]models.CostBreakdown, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			status := models.StatusCompleted
			if i%2 == 1 {
				status = models.StatusFailed
			}
			results[i] = tr.Complete(ctx, "req-8", Completion{Status: status, Usage: models.Usage{InferenceTokens: int64(i)}})
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		assert.True(t, results[0].TotalUSD.Equal(r.TotalUSD))
	}
	assert.Equal(t, 0, tr.Pending())

	rec, err := store.Get(ctx, "req-8")
	require.NoError(t, err)
	assert.True(t, rec.Status.IsTerminal())
	assert.Len(t, rec.MeteredCalls, 5)
}

func TestTracker_BreakdownTotalsMatchItems(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(nil)

	tr.Create(ctx, "req-9", "list_related_entities", "caller", nil)
	for i := 0; i < 7; i++ {
		tr.RecordSubOperation(ctx, "req-9", "registry.query", time.Millisecond, int64(i*3))
	}
	b := tr.Complete(ctx, "req-9", Completion{
		Status:              models.StatusCompleted,
		Usage:               models.Usage{InferenceTokens: 333, ExternalAPICalls: 3},
		ExternalUnitCostUSD: decimal.RequireFromString("0.0015"),
	})

	assert.True(t, b.ItemSum().Equal(b.TotalUSD))
}
