package storage

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tool_gateway/internal/models"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"acme", "acme"},
		{"100%", `100\%`},
		{"a_b", `a\_b`},
		{`c:\dir`, `c:\\dir`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, escapeLike(tt.in))
		})
	}
}

func TestEntityRepositoryIntegration(t *testing.T) {
	db := setupIntegrationDB(t)
	ctx := context.Background()
	repo := db.NewEntityRepository()

	suffix := uuid.NewString()[:8]
	acme := &models.Entity{ID: "org-" + suffix, EntityType: "organization", Name: "Acme " + suffix, Summary: "widgets"}
	bob := &models.Entity{ID: "person-" + suffix, EntityType: "person", Name: "Bob " + suffix, Attributes: models.JSONB{"role": "cto"}}
	require.NoError(t, repo.Upsert(ctx, acme))
	require.NoError(t, repo.Upsert(ctx, bob))
	require.NoError(t, repo.UpsertRelation(ctx, &models.EntityRelation{
		SourceID: bob.ID, TargetID: acme.ID, RelationType: "works_at", Weight: 0.9,
	}))

	found, err := repo.Search(ctx, suffix, "organization", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, acme.ID, found[0].ID)

	got, err := repo.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "cto", got.Attributes["role"])

	_, err = repo.GetByID(ctx, "missing-"+suffix)
	assert.ErrorIs(t, err, ErrEntityNotFound)

	out, err := repo.Related(ctx, bob.ID, "", models.DirectionOutgoing, 10)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, acme.ID, out[0].ID)
	assert.Equal(t, models.DirectionOutgoing, out[0].Direction)

	in, err := repo.Related(ctx, acme.ID, "works_at", models.DirectionBoth, 10)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, bob.ID, in[0].ID)
	assert.Equal(t, models.DirectionIncoming, in[0].Direction)
}
