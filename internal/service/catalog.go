package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/agamify/agamify/internal/apperror"
	"github.com/agamify/agamify/internal/model"
	"github.com/agamify/agamify/internal/store"
)

// categoryKeywords maps each category to the lowercase substrings that
// identify it. ORDER MATTERS: categories are checked top to bottom and the
// first hit wins, so "react native" must be claimed by mobile before
// "react" matches frontend.
var categoryKeywords = []struct {
	category model.Category
	keywords []string
}{
	{model.CategoryMobile, []string{"react native", "swift", "kotlin", "dart", "flutter"}},
	{model.CategoryFrontend, []string{"javascript", "typescript", "html", "css", "scss", "less", "react", "vue", "angular", "svelte"}},
	{model.CategoryBackend, []string{"python", "java", "c#", "php", "ruby", "go", "rust", "node.js"}},
	{model.CategoryDesktop, []string{"c++", "electron"}},
}

// defaultCatalog is the supported-framework seed list.
var defaultCatalog = []struct {
	name     string
	version  string
	category model.Category
}{
	{"React", "18.2.0", model.CategoryFrontend},
	{"Vue", "3.0.0", model.CategoryFrontend},
	{"Angular", "16.0.0", model.CategoryFrontend},
	{"Svelte", "4.0.0", model.CategoryFrontend},
	{"Next.js", "13.0.0", model.CategoryFullstack},
	{"Nuxt", "3.0.0", model.CategoryFullstack},
	{"SvelteKit", "1.0.0", model.CategoryFullstack},
	{"Node.js", "18.0.0", model.CategoryBackend},
	{"Express", "4.0.0", model.CategoryBackend},
	{"Fastify", "4.0.0", model.CategoryBackend},
}

// CatalogService manages the supported-framework catalog and classifies
// detected languages into categories.
type CatalogService struct {
	languages store.LanguageStore
	logger    *slog.Logger
}

// NewCatalogService creates a CatalogService.
func NewCatalogService(languages store.LanguageStore, logger *slog.Logger) *CatalogService {
	return &CatalogService{languages: languages, logger: logger}
}

// CategorizeFramework classifies a language or framework name by
// case-insensitive substring match against the curated keyword lists. A
// name matching none of them is UNKNOWN — never a silent default.
func (s *CatalogService) CategorizeFramework(name string) model.Category {
	lower := strings.ToLower(name)
	for _, group := range categoryKeywords {
		for _, keyword := range group.keywords {
			if strings.Contains(lower, keyword) {
				return group.category
			}
		}
	}
	return model.CategoryUnknown
}

// SeedDefaults upserts the default framework catalog. Idempotent: entries
// that already exist are left untouched.
func (s *CatalogService) SeedDefaults(ctx context.Context) error {
	for _, entry := range defaultCatalog {
		if err := s.languages.UpsertCatalogEntry(ctx, entry.name, entry.version, entry.category); err != nil {
			return fmt.Errorf("seeding catalog entry %q: %w", entry.name, err)
		}
	}
	s.logger.Info("framework catalog seeded", slog.Int("entries", len(defaultCatalog)))
	return nil
}

// ListByCategory returns the catalog entries in a category.
func (s *CatalogService) ListByCategory(ctx context.Context, category string) ([]model.Language, error) {
	c := model.Category(strings.ToUpper(strings.TrimSpace(category)))
	switch c {
	case model.CategoryFrontend, model.CategoryBackend, model.CategoryFullstack,
		model.CategoryMobile, model.CategoryDesktop, model.CategoryUnknown:
	default:
		return nil, apperror.ValidationFailed("category", fmt.Sprintf("unknown category %q", category))
	}
	return s.languages.ListCatalogByCategory(ctx, c)
}
