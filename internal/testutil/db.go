// Package testutil opens throwaway sqlite databases with the full schema.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditledger/internal/migration"
	"gorm.io/gorm"
)

var seq atomic.Int64

// OpenDB returns an isolated in-memory database. The pool holds a single
// connection, so transactions run one after another and SELECT ... FOR UPDATE
// is never contended here: sqlite drops the locking clause. Tests can only
// assert that a locked lookup was issued; contention itself needs postgres.
// Code under test must route every query of a transaction through the tx
// handle or it will block.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// Node returns a snowflake node for id generation in tests.
func Node(t *testing.T, n int64) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(n)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

// AssertCount fails the test when the table does not hold want rows
// matching the optional where clause.
func AssertCount(t *testing.T, db *gorm.DB, table string, want int64, where ...any) {
	t.Helper()
	stmt := db.Table(table)
	if len(where) > 0 {
		stmt = stmt.Where(where[0], where[1:]...)
	}
	var got int64
	if err := stmt.Count(&got).Error; err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if got != want {
		t.Fatalf("expected %d rows in %s, got %d", want, table, got)
	}
}
