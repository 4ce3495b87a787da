package testsupport

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"hlsfarm/internal/catalog"
)

// MustOpenCatalog opens a throwaway SQLite-backed catalog with the schema
// migrated, cleaned up with the test.
func MustOpenCatalog(t *testing.T) *catalog.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open test catalog: %v", err)
	}
	store, err := catalog.NewWithDB(db)
	if err != nil {
		t.Fatalf("migrate test catalog: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
