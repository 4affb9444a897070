package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/joseph-ayodele/packet-underwriter/internal/entity"
)

// Fixture is the YAML shape accepted by the seed command.
type Fixture struct {
	Cases []FixtureCase `yaml:"cases"`
}

type FixtureCase struct {
	ID           string              `yaml:"id"`
	Counterparty string              `yaml:"counterparty"`
	References   []FixtureReference  `yaml:"references"`
	Attachments  []FixtureAttachment `yaml:"attachments"`
}

// FixtureReference leaves Value nil when the key is missing or null.
type FixtureReference struct {
	Name  string  `yaml:"name"`
	Kind  string  `yaml:"kind"`
	Value *string `yaml:"value"`
}

// FixtureAttachment names either a local File to load or an existing ContentKey.
type FixtureAttachment struct {
	Name        string `yaml:"name"`
	ContentType string `yaml:"content_type"`
	Category    string `yaml:"category"`
	Role        string `yaml:"role"`
	File        string `yaml:"file"`
	ContentKey  string `yaml:"content_key"`
}

func LoadFixture(path string) (Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return fx, nil
}

// Seed writes every fixture case to the store. Files resolve relative to baseDir.
func Seed(ctx context.Context, store *SQLiteStore, fx Fixture, baseDir string) (int, error) {
	for _, fc := range fx.Cases {
		if fc.ID == "" {
			return 0, fmt.Errorf("fixture case without id")
		}
		c := entity.Case{ID: fc.ID, Counterparty: fc.Counterparty}
		for _, r := range fc.References {
			c.References = append(c.References, entity.ReferenceField{Name: r.Name, Kind: fieldKind(r.Kind), ExpectedValue: r.Value})
		}
		for _, a := range fc.Attachments {
			att := entity.Attachment{Name: a.Name, ContentType: a.ContentType, Category: a.Category, Role: a.Role, ContentKey: a.ContentKey}
			if a.File != "" {
				path := a.File
				if !filepath.IsAbs(path) {
					path = filepath.Join(baseDir, path)
				}
				content, err := os.ReadFile(path)
				if err != nil {
					return 0, fmt.Errorf("case %s: read %s: %w", fc.ID, a.File, err)
				}
				if att.ContentKey == "" {
					att.ContentKey = "blob:" + fc.ID + "/" + a.Name
				}
				if err := store.PutBlob(ctx, att.ContentKey, content); err != nil {
					return 0, err
				}
				att.SizeBytes = int64(len(content))
			}
			c.Attachments = append(c.Attachments, att)
		}
		if err := store.PutCase(ctx, c); err != nil {
			return 0, fmt.Errorf("case %s: %w", fc.ID, err)
		}
		store.logger.Info("repository.seed.case", "case_id", fc.ID, "references", len(c.References), "attachments", len(c.Attachments))
	}
	return len(fx.Cases), nil
}
