// Package gormdbtest opens throwaway in-memory SQLite databases for tests.
package gormdbtest

import (
	"fmt"
	"testing"

	"medibook/cmd/internal/domain/gormdb"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// New returns a migrated database private to the test, closed on cleanup.
func New(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gormdb.Init(gormdb.Options{Driver: gormdb.DriverSQLite, DSN: dsn})
	if err != nil {
		t.Fatalf("init test database: %v", err)
	}
	t.Cleanup(func() { _ = gormdb.Close(db) })
	return db
}
