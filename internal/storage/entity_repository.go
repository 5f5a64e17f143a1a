package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"tool_gateway/internal/models"
)

// EntityRepository reads the entity registry the reference tools query
type EntityRepository struct {
	db *DB
}

// NewEntityRepository creates a new entity repository
func NewEntityRepository(db *DB) *EntityRepository {
	return &EntityRepository{db: db}
}

const entityColumns = `id, entity_type, name, summary, attributes, created_at, updated_at`

// Search returns entities whose name or summary contains query, optionally
// restricted to one entity type, ordered by name
func (r *EntityRepository) Search(ctx context.Context, query, entityType string, limit int) ([]models.Entity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	sqlQuery := `
		SELECT ` + entityColumns + `
		FROM entities
		WHERE (name ILIKE $1 ESCAPE '\' OR summary ILIKE $1 ESCAPE '\')
		  AND ($2 = '' OR entity_type = $2)
		ORDER BY LOWER(name), id
		LIMIT $3
	`

	var entities []models.Entity
	err := r.db.conn.SelectContext(ctx, &entities, sqlQuery, "%"+escapeLike(query)+"%", entityType, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search entities: %w", err)
	}
	return entities, nil
}

// GetByID returns one entity
func (r *EntityRepository) GetByID(ctx context.Context, id string) (*models.Entity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var entity models.Entity
	err := r.db.conn.GetContext(ctx, &entity, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &entity, nil
}

// Related lists entities linked to id, strongest relations first
func (r *EntityRepository) Related(ctx context.Context, id, relationType string, direction models.RelationDirection, limit int) ([]models.RelatedEntity, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	outgoing := `
		SELECT r.relation_type, r.weight, 'outgoing' AS direction,
		       e.id, e.entity_type, e.name, e.summary
		FROM entity_relations r
		JOIN entities e ON e.id = r.target_id
		WHERE r.source_id = $1 AND ($2 = '' OR r.relation_type = $2)`
	incoming := `
		SELECT r.relation_type, r.weight, 'incoming' AS direction,
		       e.id, e.entity_type, e.name, e.summary
		FROM entity_relations r
		JOIN entities e ON e.id = r.source_id
		WHERE r.target_id = $1 AND ($2 = '' OR r.relation_type = $2)`

	var body string
	switch direction {
	case models.DirectionOutgoing:
		body = outgoing
	case models.DirectionIncoming:
		body = incoming
	default:
		body = outgoing + "\nUNION ALL\n" + incoming
	}
	sqlQuery := `SELECT * FROM (` + body + `) rel ORDER BY weight DESC, id LIMIT $3`

	var related []models.RelatedEntity
	if err := r.db.conn.SelectContext(ctx, &related, sqlQuery, id, relationType, limit); err != nil {
		return nil, fmt.Errorf("failed to list related entities: %w", err)
	}
	return related, nil
}

// Upsert inserts or updates an entity
func (r *EntityRepository) Upsert(ctx context.Context, entity *models.Entity) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if entity.Attributes == nil {
		entity.Attributes = models.JSONB{}
	}
	query := `
		INSERT INTO entities (id, entity_type, name, summary, attributes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			entity_type = EXCLUDED.entity_type,
			name = EXCLUDED.name,
			summary = EXCLUDED.summary,
			attributes = EXCLUDED.attributes,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`
	err := r.db.conn.QueryRowxContext(ctx, query,
		entity.ID, entity.EntityType, entity.Name, entity.Summary, entity.Attributes,
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}
	return nil
}

// UpsertRelation inserts or reweights a relation
func (r *EntityRepository) UpsertRelation(ctx context.Context, rel *models.EntityRelation) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO entity_relations (source_id, target_id, relation_type, weight)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (source_id, target_id, relation_type) DO UPDATE SET weight = EXCLUDED.weight
		RETURNING created_at
	`
	err := r.db.conn.QueryRowxContext(ctx, query,
		rel.SourceID, rel.TargetID, rel.RelationType, rel.Weight,
	).Scan(&rel.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert relation: %w", err)
	}
	return nil
}

// escapeLike escapes LIKE wildcards so user input matches literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
