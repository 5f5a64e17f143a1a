// Package registry provides the reference tool executors. Each one queries
// the entity registry and reports every query to the request's meter as a
// metered sub-operation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tool_gateway/internal/models"
	"tool_gateway/internal/storage"
	"tool_gateway/internal/tools"
	"tool_gateway/internal/tracking"
	"tool_gateway/internal/utils"
)

// Metered sub-operation kinds
const (
	KindSearch    = "registry.search"
	KindLookup    = "registry.lookup"
	KindRelations = "registry.relations"
)

const (
	defaultSearchLimit  = 10
	maxSearchLimit      = 50
	defaultRelatedLimit = 20
	maxRelatedLimit     = 100
	detailsRelatedLimit = 25
)

// EntityStore is the registry query surface
type EntityStore interface {
	Search(ctx context.Context, query, entityType string, limit int) ([]models.Entity, error)
	GetByID(ctx context.Context, id string) (*models.Entity, error)
	Related(ctx context.Context, id, relationType string, direction models.RelationDirection, limit int) ([]models.RelatedEntity, error)
}

// Registry builds executors over an EntityStore
type Registry struct {
	store  EntityStore
	logger *utils.Logger
}

// New creates a registry
func New(store EntityStore) *Registry {
	return &Registry{store: store, logger: utils.NewLogger("registry")}
}

// Executors returns one executor per known tool
func (r *Registry) Executors() tools.Executors {
	return tools.Executors{
		SearchEntities:      r.SearchEntities,
		GetEntity:           r.GetEntity,
		GetEntityDetails:    r.GetEntityDetails,
		ListRelatedEntities: r.ListRelatedEntities,
	}
}

// EntitySummary is the compact entity form returned by list-style tools
type EntitySummary struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	Name       string `json:"name"`
	Summary    string `json:"summary,omitempty"`
}

func summarize(e models.Entity) EntitySummary {
	return EntitySummary{ID: e.ID, EntityType: e.EntityType, Name: e.Name, Summary: e.Summary}
}

// SearchResult is returned by search_entities
type SearchResult struct {
	Query    string          `json:"query"`
	Count    int             `json:"count"`
	Entities []EntitySummary `json:"entities"`
}

// SearchEntities finds entities by name or summary
func (r *Registry) SearchEntities(ctx context.Context, args map[string]any) (any, error) {
	query, err := tools.StringArg(args, "query")
	if err != nil {
		return nil, err
	}
	entityType, err := tools.OptionalStringArg(args, "entity_type")
	if err != nil {
		return nil, err
	}
	limit, err := tools.IntArg(args, "limit", defaultSearchLimit, 1, maxSearchLimit)
	if err != nil {
		return nil, err
	}

	var found []models.Entity
	err = r.metered(ctx, KindSearch, func() (int64, error) {
		var qerr error
		found, qerr = r.store.Search(ctx, strings.TrimSpace(query), entityType, limit)
		return int64(len(found)), qerr
	})
	if err != nil {
		return nil, err
	}

	result := SearchResult{Query: query, Count: len(found), Entities: make([]EntitySummary, 0, len(found))}
	for _, e := range found {
		result.Entities = append(result.Entities, summarize(e))
	}
	return result, nil
}

// GetEntity returns one entity with its attributes
func (r *Registry) GetEntity(ctx context.Context, args map[string]any) (any, error) {
	id, err := tools.StringArg(args, "id")
	if err != nil {
		return nil, err
	}
	return r.lookup(ctx, id)
}

// EntityDetails is returned by get_entity_details
type EntityDetails struct {
	Entity   *models.Entity         `json:"entity"`
	Outgoing []models.RelatedEntity `json:"outgoing"`
	Incoming []models.RelatedEntity `json:"incoming"`
}

// GetEntityDetails returns the full dossier: the entity plus both relation directions
func (r *Registry) GetEntityDetails(ctx context.Context, args map[string]any) (any, error) {
	id, err := tools.StringArg(args, "id")
	if err != nil {
		return nil, err
	}
	entity, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}

	details := EntityDetails{Entity: entity}
	if details.Outgoing, err = r.related(ctx, id, "", models.DirectionOutgoing, detailsRelatedLimit); err != nil {
		return nil, err
	}
	if details.Incoming, err = r.related(ctx, id, "", models.DirectionIncoming, detailsRelatedLimit); err != nil {
		return nil, err
	}
	return details, nil
}

// RelatedResult is returned by list_related_entities
type RelatedResult struct {
	ID           string                 `json:"id"`
	RelationType string                 `json:"relation_type,omitempty"`
	Direction    string                 `json:"direction"`
	Count        int                    `json:"count"`
	Related      []models.RelatedEntity `json:"related"`
}

// ListRelatedEntities lists entities linked to an entity
func (r *Registry) ListRelatedEntities(ctx context.Context, args map[string]any) (any, error) {
	id, err := tools.StringArg(args, "id")
	if err != nil {
		return nil, err
	}
	relationType, err := tools.OptionalStringArg(args, "relation_type")
	if err != nil {
		return nil, err
	}
	dirArg, err := tools.OptionalStringArg(args, "direction")
	if err != nil {
		return nil, err
	}
	direction := models.DirectionBoth
	if dirArg != "" {
		direction = models.RelationDirection(strings.ToLower(dirArg))
		if !direction.Valid() {
			return nil, &tools.ArgumentError{Name: "direction", Reason: "must be outgoing, incoming or both"}
		}
	}
	limit, err := tools.IntArg(args, "limit", defaultRelatedLimit, 1, maxRelatedLimit)
	if err != nil {
		return nil, err
	}

	related, err := r.related(ctx, id, relationType, direction, limit)
	if err != nil {
		return nil, err
	}
	return RelatedResult{
		ID:           id,
		RelationType: relationType,
		Direction:    string(direction),
		Count:        len(related),
		Related:      related,
	}, nil
}

func (r *Registry) lookup(ctx context.Context, id string) (*models.Entity, error) {
	var entity *models.Entity
	err := r.metered(ctx, KindLookup, func() (int64, error) {
		var qerr error
		entity, qerr = r.store.GetByID(ctx, id)
		if qerr != nil {
			return 0, qerr
		}
		return 1, nil
	})
	if errors.Is(err, storage.ErrEntityNotFound) {
		return nil, fmt.Errorf("entity %q not found", id)
	}
	return entity, err
}

func (r *Registry) related(ctx context.Context, id, relationType string, direction models.RelationDirection, limit int) ([]models.RelatedEntity, error) {
	var related []models.RelatedEntity
	err := r.metered(ctx, KindRelations, func() (int64, error) {
		var qerr error
		related, qerr = r.store.Related(ctx, id, relationType, direction, limit)
		return int64(len(related)), qerr
	})
	if related == nil {
		related = []models.RelatedEntity{}
	}
	return related, err
}

// metered runs one store query and records it on the request's meter,
// failed queries included
func (r *Registry) metered(ctx context.Context, kind string, query func() (int64, error)) error {
	start := time.Now()
	size, err := query()
	tracking.MeterFromContext(ctx).Observe(ctx, kind, start, size)
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		r.logger.Error("Registry query failed", "kind", kind, "error", err)
		return fmt.Errorf("registry query failed")
	}
	return err
}
