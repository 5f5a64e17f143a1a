package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tool_gateway/internal/models"
	"tool_gateway/internal/pricing"
	"tool_gateway/internal/storage"
	"tool_gateway/internal/tools"
	"tool_gateway/internal/tracking"
)

// fakeStore implements EntityStore over fixed data
type fakeStore struct {
	entities  []models.Entity
	relations []models.EntityRelation
	err       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities: []models.Entity{
			{ID: "org-1", EntityType: "organization", Name: "Acme Corp", Summary: "widgets"},
			{ID: "org-2", EntityType: "organization", Name: "Globex", Summary: "acme competitor"},
			{ID: "p-1", EntityType: "person", Name: "Bob", Attributes: models.JSONB{"role": "cto"}},
		},
		relations: []models.EntityRelation{
			{SourceID: "p-1", TargetID: "org-1", RelationType: "works_at", Weight: 0.9},
			{SourceID: "org-2", TargetID: "org-1", RelationType: "competes_with", Weight: 0.5},
		},
	}
}

func (s *fakeStore) Search(ctx context.Context, query, entityType string, limit int) ([]models.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Entity
	q := strings.ToLower(query)
	for _, e := range s.entities {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if strings.Contains(strings.ToLower(e.Name), q) || strings.Contains(strings.ToLower(e.Summary), q) {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, e := range s.entities {
		if e.ID == id {
			e := e
			return &e, nil
		}
	}
	return nil, storage.ErrEntityNotFound
}

func (s *fakeStore) Related(ctx context.Context, id, relationType string, direction models.RelationDirection, limit int) ([]models.RelatedEntity, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.RelatedEntity
	for _, rel := range s.relations {
		if relationType != "" && rel.RelationType != relationType {
			continue
		}
		if rel.SourceID == id && direction != models.DirectionIncoming {
			out = append(out, models.RelatedEntity{RelationType: rel.RelationType, Direction: models.DirectionOutgoing, Weight: rel.Weight, ID: rel.TargetID})
		}
		if rel.TargetID == id && direction != models.DirectionOutgoing {
			out = append(out, models.RelatedEntity{RelationType: rel.RelationType, Direction: models.DirectionIncoming, Weight: rel.Weight, ID: rel.SourceID})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// meteredContext starts a tracked request and returns a context carrying its meter
func meteredContext(t *testing.T, tool string) (context.Context, *tracking.Tracker, string) {
	t.Helper()
	tracker := tracking.NewTracker(nil, pricing.MustNewModel(pricing.DefaultConfig()), tracking.DefaultConfig())
	id := "req-" + tool
	ctx := context.Background()
	tracker.Create(ctx, id, tool, "caller", nil)
	return tracking.WithMeter(ctx, tracker.NewMeter(id)), tracker, id
}

func meteredKinds(t *testing.T, tracker *tracking.Tracker, id string) []string {
	t.Helper()
	rec, err := tracker.Get(context.Background(), id)
	require.NoError(t, err)
	kinds := make([]string, 0, len(rec.MeteredCalls))
	for _, c := range rec.MeteredCalls {
		kinds = append(kinds, c.Kind)
	}
	return kinds
}

func TestSearchEntities(t *testing.T) {
	reg := New(newFakeStore())
	ctx, tracker, id := meteredContext(t, "search_entities")

	out, err := reg.SearchEntities(ctx, map[string]any{"query": "acme"})
	require.NoError(t, err)
	res := out.(SearchResult)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, "org-1", res.Entities[0].ID)

	out, err = reg.SearchEntities(ctx, map[string]any{"query": "acme", "entity_type": "organization", "limit": float64(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, out.(SearchResult).Count)

	assert.Equal(t, []string{KindSearch, KindSearch}, meteredKinds(t, tracker, id))

	rec, _ := tracker.Get(context.Background(), id)
	assert.Equal(t, int64(2), rec.MeteredCalls[0].Size)
}

func TestSearchEntities_ArgumentErrors(t *testing.T) {
	reg := New(newFakeStore())
	ctx, tracker, id := meteredContext(t, "search_entities")

	_, err := reg.SearchEntities(ctx, map[string]any{})
	var argErr *tools.ArgumentError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "query", argErr.Name)

	_, err = reg.SearchEntities(ctx, map[string]any{"query": "x", "limit": "ten"})
	assert.Error(t, err)

	assert.Empty(t, meteredKinds(t, tracker, id), "rejected arguments must not reach the store")
}

func TestGetEntity(t *testing.T) {
	reg := New(newFakeStore())
	ctx, tracker, id := meteredContext(t, "get_entity")

	out, err := reg.GetEntity(ctx, map[string]any{"id": "p-1"})
	require.NoError(t, err)
	assert.Equal(t, "cto", out.(*models.Entity).Attributes["role"])

	_, err = reg.GetEntity(ctx, map[string]any{"id": "nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope" not found`)

	assert.Equal(t, []string{KindLookup, KindLookup}, meteredKinds(t, tracker, id))
}

func TestGetEntityDetails(t *testing.T) {
	reg := New(newFakeStore())
	ctx, tracker, id := meteredContext(t, "get_entity_details")

	out, err := reg.GetEntityDetails(ctx, map[string]any{"id": "org-1"})
	require.NoError(t, err)
	details := out.(EntityDetails)
	assert.Equal(t, "Acme Corp", details.Entity.Name)
	assert.Empty(t, details.Outgoing)
	assert.NotNil(t, details.Outgoing)
	assert.Len(t, details.Incoming, 2)

	assert.Equal(t, []string{KindLookup, KindRelations, KindRelations}, meteredKinds(t, tracker, id))
}

func TestListRelatedEntities(t *testing.T) {
	reg := New(newFakeStore())
	ctx, tracker, id := meteredContext(t, "list_related_entities")

	out, err := reg.ListRelatedEntities(ctx, map[string]any{"id": "org-1", "relation_type": "works_at"})
	require.NoError(t, err)
	res := out.(RelatedResult)
	assert.Equal(t, "both", res.Direction)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "p-1", res.Related[0].ID)

	out, err = reg.ListRelatedEntities(ctx, map[string]any{"id": "p-1", "direction": "OUTGOING"})
	require.NoError(t, err)
	assert.Equal(t, "outgoing", out.(RelatedResult).Direction)

	_, err = reg.ListRelatedEntities(ctx, map[string]any{"id": "p-1", "direction": "sideways"})
	assert.Error(t, err)

	assert.Equal(t, []string{KindRelations, KindRelations}, meteredKinds(t, tracker, id))
}

func TestStoreFailureIsMeteredAndHidden(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("pq: connection refused to 10.0.0.5")
	reg := New(store)
	ctx, tracker, id := meteredContext(t, "search_entities")

	_, err := reg.SearchEntities(ctx, map[string]any{"query": "acme"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "10.0.0.5")
	assert.Equal(t, []string{KindSearch}, meteredKinds(t, tracker, id))
}

func TestExecutorsWithoutMeter(t *testing.T) {
	execs := New(newFakeStore()).Executors()
	router, err := tools.NewRouter(execs, tools.Config{})
	require.NoError(t, err)

	res, err := router.Dispatch(context.Background(), "get_entity", map[string]any{"id": "org-1"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, res.Text(), "Acme Corp")
}
