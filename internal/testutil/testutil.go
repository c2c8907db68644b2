package testutil

import (
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"timeline/internal/db"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// A random suffix keeps databases of different tests apart. The DB is closed
// through t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	d, err := db.Open("file:"+name+"-"+uuid.NewString()+"?mode=memory&cache=shared", db.Options{LogOutput: io.Discard})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(d) })
	if err := db.Migrate(d); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return d
}
