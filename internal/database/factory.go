package database

import (
	"fmt"
	"os"
	"path/filepath"

	"backer-go/internal/config"
)

// NewCatalogFromConfig opens the catalog selected by cfg. The schema is not
// touched; the caller runs Initialize.
func NewCatalogFromConfig(cfg config.CatalogConfig) (*SQLiteCatalog, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite catalog")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
		return NewSQLiteCatalog(cfg.Path)
	case "memory":
		return NewSQLiteCatalog(":memory:")
	default:
		return nil, fmt.Errorf("unknown catalog type: %s", cfg.Type)
	}
}
