package testutil

import (
	"testing"

	"backer-go/internal/database"
)

// NewTestCatalog creates an initialized in-memory catalog.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) *database.SQLiteCatalog {
	t.Helper()

	c, err := database.NewSQLiteCatalog(":memory:")
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	if err := c.Initialize(); err != nil {
		c.Close()
		t.Fatalf("failed to initialize catalog: %v", err)
	}

	t.Cleanup(func() {
		c.Close()
	})

	return c
}
