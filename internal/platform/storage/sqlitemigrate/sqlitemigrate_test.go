package sqlitemigrate

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyRecordsMigration(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_layouts.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE layouts(plid INTEGER PRIMARY KEY);\n-- +migrate Down\nDROP TABLE layouts;"),
		},
	}

	if err := Apply(context.Background(), db, migrations, ""); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 1 {
		t.Fatalf("migration rows = %d, want 1", rows)
	}
	if !tableExists(t, db, "layouts") {
		t.Fatal("expected layouts table")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"001_layouts.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE layouts(plid INTEGER PRIMARY KEY);")},
	}
	for i := 0; i < 2; i++ {
		if err := Apply(context.Background(), db, migrations, ""); err != nil {
			t.Fatalf("apply pass %d: %v", i, err)
		}
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 1 {
		t.Fatalf("migration rows = %d, want 1", rows)
	}
}

func TestApplyLeavesFailedMigrationUnrecorded(t *testing.T) {
	db := openInMemoryDB(t)
	bad := fstest.MapFS{
		"001_usages.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREAT TABLE usages(plid INT);")},
	}
	if err := Apply(context.Background(), db, bad, ""); err == nil {
		t.Fatal("expected bad migration to fail")
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 0 {
		t.Fatalf("migration rows = %d, want 0", rows)
	}

	fixed := fstest.MapFS{
		"001_usages.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE usages(plid INTEGER);")},
	}
	if err := Apply(context.Background(), db, fixed, ""); err != nil {
		t.Fatalf("apply fixed migration: %v", err)
	}
	if rows := queryInt64(t, db, "SELECT COUNT(*) FROM schema_migrations"); rows != 1 {
		t.Fatalf("migration rows = %d, want 1", rows)
	}
}

func TestApplyUsesRootInMigrationKey(t *testing.T) {
	db := openInMemoryDB(t)
	migrations := fstest.MapFS{
		"crawler/001_events.sql": &fstest.MapFile{Data: []byte("-- +migrate Up\nCREATE TABLE content_events(id INTEGER PRIMARY KEY);")},
	}
	if err := Apply(context.Background(), db, migrations, "crawler"); err != nil {
		t.Fatalf("apply migrations with root: %v", err)
	}
	if key := queryString(t, db, "SELECT name FROM schema_migrations LIMIT 1"); key != "crawler/001_events.sql" {
		t.Fatalf("migration key = %q, want crawler/001_events.sql", key)
	}
}

func TestApplyHonorsCanceledContext(t *testing.T) {
	db := openInMemoryDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	migrations := fstest.MapFS{
		"001_layouts.sql": &fstest.MapFile{Data: []byte("CREATE TABLE layouts(plid INTEGER PRIMARY KEY);")},
	}
	if err := Apply(ctx, db, migrations, ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLoadOrdersFiles(t *testing.T) {
	migrations := fstest.MapFS{
		"002_b.sql":  &fstest.MapFile{Data: []byte("SELECT 2;")},
		"001_a.sql":  &fstest.MapFile{Data: []byte("SELECT 1;")},
		"README.txt": &fstest.MapFile{Data: []byte("ignored")},
	}
	loaded, err := Load(migrations, "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 2 || loaded[0].Name != "001_a.sql" || loaded[1].Name != "002_b.sql" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "no markers", content: "SELECT 1;", want: "SELECT 1;"},
		{name: "up only", content: "-- +migrate Up\nSELECT 1;", want: "\nSELECT 1;"},
		{name: "up and down", content: "-- +migrate Up\nSELECT 1;\n-- +migrate Down\nSELECT 2;", want: "\nSELECT 1;\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractUpMigration(tt.content); got != tt.want {
				t.Fatalf("ExtractUpMigration() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsAlreadyExistsError(t *testing.T) {
	if IsAlreadyExistsError(nil) {
		t.Fatal("nil error is not an already-exists error")
	}
	if !IsAlreadyExistsError(errors.New("table layouts already exists")) {
		t.Fatal("expected already exists match")
	}
	if !IsAlreadyExistsError(errors.New("duplicate column name: content")) {
		t.Fatal("expected duplicate column match")
	}
	if IsAlreadyExistsError(errors.New("syntax error")) {
		t.Fatal("unexpected match for syntax error")
	}
}

func openInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Fatalf("close db: %v", err)
		}
	})
	return db
}

func queryInt64(t *testing.T, db *sql.DB, query string) int64 {
	t.Helper()
	var value int64
	if err := db.QueryRow(query).Scan(&value); err != nil {
		t.Fatalf("query int value: %v", err)
	}
	return value
}

func queryString(t *testing.T, db *sql.DB, query string) string {
	t.Helper()
	var value string
	if err := db.QueryRow(query).Scan(&value); err != nil {
		t.Fatalf("query string value: %v", err)
	}
	return value
}

func tableExists(t *testing.T, db *sql.DB, tableName string) bool {
	t.Helper()
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", tableName).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false
	}
	if err != nil {
		t.Fatalf("check table exists: %v", err)
	}
	return name == tableName
}
