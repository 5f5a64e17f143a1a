package models

import "time"

// RelationDirection selects which side of a relation an entity sits on
type RelationDirection string

const (
	DirectionOutgoing RelationDirection = "outgoing"
	DirectionIncoming RelationDirection = "incoming"
	DirectionBoth     RelationDirection = "both"
)

// Valid reports whether d is a known direction
func (d RelationDirection) Valid() bool {
	switch d {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return true
	}
	return false
}

// Entity is one row of the backing registry
type Entity struct {
	ID         string    `db:"id" json:"id"`
	EntityType string    `db:"entity_type" json:"entity_type"`
	Name       string    `db:"name" json:"name"`
	Summary    string    `db:"summary" json:"summary"`
	Attributes JSONB     `db:"attributes" json:"attributes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// EntityRelation is a typed, weighted edge between two entities
type EntityRelation struct {
	SourceID     string    `db:"source_id" json:"source_id"`
	TargetID     string    `db:"target_id" json:"target_id"`
	RelationType string    `db:"relation_type" json:"relation_type"`
	Weight       float64   `db:"weight" json:"weight"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RelatedEntity is an entity reached through a relation, seen from the queried entity
type RelatedEntity struct {
	RelationType string            `db:"relation_type" json:"relation_type"`
	Direction    RelationDirection `db:"direction" json:"direction"`
	Weight       float64           `db:"weight" json:"weight"`
	ID           string            `db:"id" json:"id"`
	EntityType   string            `db:"entity_type" json:"entity_type"`
	Name         string            `db:"name" json:"name"`
	Summary      string            `db:"summary" json:"summary"`
}
