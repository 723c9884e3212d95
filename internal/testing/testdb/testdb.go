// Package testdb gives repository tests a throwaway SurrealDB namespace with
// the layer and account schema applied.
//
// Tests are skipped under -short or when no server answers at TEST_DB_HOST,
// so the rest of the suite runs without a database:
//
//	tdb := testdb.New(t)
//	repo := repository.NewLayerRepository(tdb.DB)
//	layers, err := repo.FindActive(tdb.Ctx())
package testdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgo/saga/presence/internal/database"
)

const (
	connectTimeout = 3 * time.Second
	setupTimeout   = 30 * time.Second
	opTimeout      = 10 * time.Second
)

// TestDB is one isolated namespace. It is removed when the test ends.
type TestDB struct {
	DB        database.Database
	namespace string
	t         *testing.T
}

var (
	nsSeq atomic.Int64

	loadSchema = sync.OnceValues(readSchema)
)

func configFromEnv() database.Config {
	return database.Config{
		Host:      envOr("TEST_DB_HOST", "localhost"),
		Port:      envOr("TEST_DB_PORT", "8000"),
		User:      envOr("TEST_DB_USER", "root"),
		Password:  envOr("TEST_DB_PASSWORD", "root"),
		Namespace: fmt.Sprintf("presence_test_%d_%d", time.Now().UnixNano(), nsSeq.Add(1)),
		Database:  "test",
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// schemaDir finds migrations/ from a package directory, falling back to
// $PRESENCE_ROOT/migrations.
func schemaDir() (string, error) {
	for _, dir := range []string{"migrations", "../migrations", "../../migrations", "../../../migrations"} {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir, nil
		}
	}
	if root := os.Getenv("PRESENCE_ROOT"); root != "" {
		return filepath.Join(root, "migrations"), nil
	}
	return "", errors.New("migrations directory not found")
}

// readSchema returns every .surql file in name order.
func readSchema() ([]string, error) {
	dir, err := schemaDir()
	if err != nil {
		return nil, err
	}
	names, err := filepath.Glob(filepath.Join(dir, "*.surql"))
	if err != nil {
		return nil, err
	}
	slices.Sort(names)

	scripts := make([]string, 0, len(names))
	for _, name := range names {
		body, err := os.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", filepath.Base(name), err)
		}
		scripts = append(scripts, string(body))
	}
	return scripts, nil
}

// New connects to a fresh namespace and applies the migrations.
func New(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("testdb: database tests disabled in short mode")
	}

	cfg := configFromEnv()
	db := database.NewSurrealDB(cfg)

	connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	err := db.Connect(connectCtx)
	cancel()
	if err != nil {
		t.Skipf("testdb: no SurrealDB at %s:%s: %v", cfg.Host, cfg.Port, err)
	}

	tdb := &TestDB{DB: db, namespace: cfg.Namespace, t: t}
	t.Cleanup(tdb.Close)

	scripts, err := loadSchema()
	if err != nil {
		t.Fatalf("testdb: load migrations: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	for i, script := range scripts {
		if err := db.Execute(ctx, script, nil); err != nil {
			t.Fatalf("testdb: migration %d: %v", i+1, err)
		}
	}
	return tdb
}

// Close drops the namespace and disconnects. It is safe to call twice.
func (tdb *TestDB) Close() {
	if tdb.DB == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_ = tdb.DB.Execute(ctx, "REMOVE NAMESPACE "+tdb.namespace, nil)
	_ = tdb.DB.Close()
	tdb.DB = nil
}

// Ctx is a per-operation context cancelled when the test ends.
func (tdb *TestDB) Ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	tdb.t.Cleanup(cancel)
	return ctx
}
