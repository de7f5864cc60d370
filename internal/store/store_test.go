package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/AveryNolan/devscope/pkg/plugin"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testMigrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create things",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE TABLE things (id INTEGER PRIMARY KEY, name TEXT)`)
				return err
			},
		},
		{
			Version:     2,
			Description: "index things",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`CREATE INDEX idx_things_name ON things(name)`)
				return err
			},
		},
	}
}

func TestMigrateAppliesOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Migrate(ctx, "demo", testMigrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// Second run: already applied, must not error (CREATE TABLE would fail
	// if re-executed).
	if err := st.Migrate(ctx, "demo", testMigrations()); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}

	var count int
	err := st.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _migrations WHERE module_name = 'demo'`).Scan(&count)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 2 {
		t.Fatalf("recorded %d migrations, want 2", count)
	}
}

func TestMigrationsScopedPerModule(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	if err := st.Migrate(ctx, "alpha", []plugin.Migration{{
		Version:     1,
		Description: "alpha table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE alpha (id INTEGER PRIMARY KEY)`)
			return err
		},
	}}); err != nil {
		t.Fatal(err)
	}
	// Same version number under a different module applies independently.
	if err := st.Migrate(ctx, "beta", []plugin.Migration{{
		Version:     1,
		Description: "beta table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE beta (id INTEGER PRIMARY KEY)`)
			return err
		},
	}}); err != nil {
		t.Fatal(err)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	err := st.Migrate(ctx, "bad", []plugin.Migration{{
		Version:     1,
		Description: "broken",
		Up: func(tx *sql.Tx) error {
			return errors.New("deliberate failure")
		},
	}})
	if err == nil {
		t.Fatal("expected migration error")
	}

	var count int
	if err := st.DB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM _migrations WHERE module_name = 'bad'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("failed migration was recorded as applied")
	}
}

func TestTxRollbackOnError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	if err := st.Migrate(ctx, "demo", testMigrations()); err != nil {
		t.Fatal(err)
	}

	wantErr := errors.New("abort")
	err := st.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO things (name) VALUES ('x')`); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("tx err = %v, want %v", err, wantErr)
	}

	var count int
	if err := st.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM things`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatal("rolled-back insert is visible")
	}
}

func TestCheckVersion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// First run records the version.
	if err := st.CheckVersion(ctx, "1.2.0"); err != nil {
		t.Fatalf("first check: %v", err)
	}
	// Same version passes.
	if err := st.CheckVersion(ctx, "1.2.0"); err != nil {
		t.Fatalf("same version: %v", err)
	}
	// Newer binary upgrades the stored version.
	if err := st.CheckVersion(ctx, "1.3.0"); err != nil {
		t.Fatalf("newer binary: %v", err)
	}
	// Older binary against the upgraded database is refused.
	if err := st.CheckVersion(ctx, "1.2.0"); !errors.Is(err, ErrNewerSchema) {
		t.Fatalf("older binary err = %v, want ErrNewerSchema", err)
	}
	// "dev" always passes.
	if err := st.CheckVersion(ctx, "dev"); err != nil {
		t.Fatalf("dev version: %v", err)
	}
}
