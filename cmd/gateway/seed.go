package main

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"tool_gateway/internal/models"
	"tool_gateway/internal/storage"
)

// seedFile is the YAML layout accepted by the seed command
type seedFile struct {
	Entities []struct {
		ID         string         `yaml:"id"`
		Type       string         `yaml:"type"`
		Name       string         `yaml:"name"`
		Summary    string         `yaml:"summary"`
		Attributes map[string]any `yaml:"attributes"`
	} `yaml:"entities"`
	Relations []struct {
		From   string   `yaml:"from"`
		To     string   `yaml:"to"`
		Type   string   `yaml:"type"`
		Weight *float64 `yaml:"weight"`
	} `yaml:"relations"`
}

// entityWriter is the subset of the entity repository used for seeding
type entityWriter interface {
	Upsert(ctx context.Context, entity *models.Entity) error
	UpsertRelation(ctx context.Context, rel *models.EntityRelation) error
}

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:     "seed",
		Short:   "Load registry entities and relations from a YAML file",
		Example: `  gateway seed --file entities.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			entities, relations, err := parseSeed(data)
			if err != nil {
				return err
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			dbCfg := storage.DefaultDBConfig()
			dbCfg.DSN = cfg.Database.URL
			db, err := storage.NewDB(dbCfg)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := applySeed(cmd.Context(), db.NewEntityRepository(), entities, relations); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d entities, %d relations\n", len(entities), len(relations))
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "YAML file with entities and relations")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// parseSeed decodes and validates a seed file. Relations may only reference
// entities defined in the same file.
func parseSeed(data []byte) ([]models.Entity, []models.EntityRelation, error) {
	var sf seedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		return nil, nil, fmt.Errorf("parse seed file: %w", err)
	}

	ids := make(map[string]bool, len(sf.Entities))
	entities := make([]models.Entity, 0, len(sf.Entities))
	for i, e := range sf.Entities {
		if e.ID == "" || e.Type == "" || e.Name == "" {
			return nil, nil, fmt.Errorf("entity %d: id, type and name are required", i)
		}
		if ids[e.ID] {
			return nil, nil, fmt.Errorf("entity %q defined twice", e.ID)
		}
		ids[e.ID] = true
		entities = append(entities, models.Entity{
			ID:         e.ID,
			EntityType: e.Type,
			Name:       e.Name,
			Summary:    e.Summary,
			Attributes: models.JSONB(e.Attributes),
		})
	}

	relations := make([]models.EntityRelation, 0, len(sf.Relations))
	for i, r := range sf.Relations {
		if r.Type == "" {
			return nil, nil, fmt.Errorf("relation %d: type is required", i)
		}
		if !ids[r.From] || !ids[r.To] {
			return nil, nil, fmt.Errorf("relation %d: unknown entity in %q -> %q", i, r.From, r.To)
		}
		weight := 1.0
		if r.Weight != nil {
			weight = *r.Weight
		}
		relations = append(relations, models.EntityRelation{
			SourceID:     r.From,
			TargetID:     r.To,
			RelationType: r.Type,
			Weight:       weight,
		})
	}
	return entities, relations, nil
}

func applySeed(ctx context.Context, w entityWriter, entities []models.Entity, relations []models.EntityRelation) error {
	for i := range entities {
		if err := w.Upsert(ctx, &entities[i]); err != nil {
			return fmt.Errorf("entity %q: %w", entities[i].ID, err)
		}
	}
	for i := range relations {
		if err := w.UpsertRelation(ctx, &relations[i]); err != nil {
			return fmt.Errorf("relation %q -> %q: %w", relations[i].SourceID, relations[i].TargetID, err)
		}
	}
	return nil
}
