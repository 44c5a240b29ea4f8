package embedded

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/Aman-CERP/searchschema/internal/mapping"
)

// catalogSchemaVersion is bumped when the catalog tables change shape.
const catalogSchemaVersion = "1"

const catalogDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS indices (
	name       TEXT PRIMARY KEY,
	alias      TEXT NOT NULL DEFAULT '',
	mapping    TEXT NOT NULL,
	settings   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS templates (
	name           TEXT PRIMARY KEY,
	index_patterns TEXT NOT NULL,
	priority       INTEGER NOT NULL,
	mapping        TEXT NOT NULL,
	settings       TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS policies (
	name       TEXT PRIMARY KEY,
	min_age    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// indexRecord is one row of the indices table.
type indexRecord struct {
	Name      string
	Alias     string
	Mapping   mapping.IndexMapping
	Settings  map[string]any
	CreatedAt time.Time
}

// templateRecord is one row of the templates table.
type templateRecord struct {
	Name          string
	IndexPatterns []string
	Priority      int
	Mapping       mapping.IndexMapping
	Settings      map[string]any
}

// policyRecord is one row of the policies table.
type policyRecord struct {
	Name      string
	MinAge    string
	UpdatedAt time.Time
}

// catalog persists indices, templates and policies in SQLite.
// Callers serialise access; the catalog itself holds no lock.
type catalog struct {
	db *sql.DB
}

// openCatalog opens (or creates) the catalog. An empty dir keeps it in memory.
func openCatalog(dir string) (*catalog, error) {
	dsn := ":memory:"
	if dir != "" {
		dsn = filepath.Join(dir, "catalog.db") + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	// A single connection keeps an in-memory database alive and serialises
	// writers on disk.
	db.SetMaxOpenConns(1)

	if dir != "" {
		// DSN params may be ignored by modernc.org/sqlite
		pragmas := []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
			"PRAGMA synchronous = NORMAL",
		}
		for _, p := range pragmas {
			if _, err := db.Exec(p); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to set pragma %q: %w", p, err)
			}
		}

		var result string
		if err := db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil || result != "ok" {
			_ = db.Close()
			if err == nil {
				err = fmt.Errorf("quick_check: %s", result)
			}
			return nil, &corruptCatalogError{path: dir, cause: err}
		}
	}

	if _, err := db.Exec(catalogDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create catalog tables: %w", err)
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, catalogSchemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to write catalog version: %w", err)
	}

	var version string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read catalog version: %w", err)
	}
	if version != catalogSchemaVersion {
		_ = db.Close()
		return nil, &corruptCatalogError{path: dir, cause: fmt.Errorf("catalog version %s, want %s", version, catalogSchemaVersion)}
	}

	return &catalog{db: db}, nil
}

type corruptCatalogError struct {
	path  string
	cause error
}

func (e *corruptCatalogError) Error() string {
	return fmt.Sprintf("catalog at %s is unusable: %v", e.path, e.cause)
}

func (e *corruptCatalogError) Unwrap() error { return e.cause }

func (c *catalog) close() error {
	return c.db.Close()
}

func (c *catalog) ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func encodeMapping(m mapping.IndexMapping) (string, error) {
	b, err := json.Marshal(m)
	return string(b), err
}

func encodeSettings(s map[string]any) (string, error) {
	if s == nil {
		s = map[string]any{}
	}
	b, err := json.Marshal(s)
	return string(b), err
}

func decodeSettings(raw string) (map[string]any, error) {
	s := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return s, nil
}

// insertIndex adds an index row. It reports false when the name was taken.
func (c *catalog) insertIndex(ctx context.Context, rec indexRecord) (bool, error) {
	m, err := encodeMapping(rec.Mapping)
	if err != nil {
		return false, err
	}
	s, err := encodeSettings(rec.Settings)
	if err != nil {
		return false, err
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO indices (name, alias, mapping, settings, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.Name, rec.Alias, m, s, rec.CreatedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert index %s: %w", rec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *catalog) updateIndex(ctx context.Context, rec indexRecord) error {
	m, err := encodeMapping(rec.Mapping)
	if err != nil {
		return err
	}
	s, err := encodeSettings(rec.Settings)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `UPDATE indices SET mapping = ?, settings = ? WHERE name = ?`, m, s, rec.Name)
	if err != nil {
		return fmt.Errorf("update index %s: %w", rec.Name, err)
	}
	return nil
}

func (c *catalog) deleteIndex(ctx context.Context, name string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM indices WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	return nil
}

// indices returns every index row ordered by name.
func (c *catalog) indices(ctx context.Context) ([]indexRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, alias, mapping, settings, created_at FROM indices ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []indexRecord
	for rows.Next() {
		var (
			rec               indexRecord
			rawMap, rawSet    string
			createdAtUnixMsec int64
		)
		if err := rows.Scan(&rec.Name, &rec.Alias, &rawMap, &rawSet, &createdAtUnixMsec); err != nil {
			return nil, err
		}
		if rec.Mapping, err = mapping.FromJSON(rec.Name, []byte(rawMap)); err != nil {
			return nil, err
		}
		if rec.Settings, err = decodeSettings(rawSet); err != nil {
			return nil, fmt.Errorf("decode settings of %s: %w", rec.Name, err)
		}
		rec.CreatedAt = time.UnixMilli(createdAtUnixMsec)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// index returns one index row.
func (c *catalog) index(ctx context.Context, name string) (indexRecord, bool, error) {
	all, err := c.indices(ctx)
	if err != nil {
		return indexRecord{}, false, err
	}
	for _, rec := range all {
		if rec.Name == name || (rec.Alias != "" && rec.Alias == name) {
			return rec, true, nil
		}
	}
	return indexRecord{}, false, nil
}

func (c *catalog) putTemplate(ctx context.Context, rec templateRecord, createOnly bool) error {
	m, err := encodeMapping(rec.Mapping)
	if err != nil {
		return err
	}
	s, err := encodeSettings(rec.Settings)
	if err != nil {
		return err
	}
	patterns, err := json.Marshal(rec.IndexPatterns)
	if err != nil {
		return err
	}

	stmt := `INSERT INTO templates (name, index_patterns, priority, mapping, settings) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET index_patterns = excluded.index_patterns, priority = excluded.priority,
		mapping = excluded.mapping, settings = excluded.settings`
	if createOnly {
		stmt = `INSERT OR IGNORE INTO templates (name, index_patterns, priority, mapping, settings) VALUES (?, ?, ?, ?, ?)`
	}
	if _, err := c.db.ExecContext(ctx, stmt, rec.Name, string(patterns), rec.Priority, m, s); err != nil {
		return fmt.Errorf("put template %s: %w", rec.Name, err)
	}
	return nil
}

func (c *catalog) templates(ctx context.Context) ([]templateRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, index_patterns, priority, mapping, settings FROM templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []templateRecord
	for rows.Next() {
		var (
			rec                         templateRecord
			rawPatterns, rawMap, rawSet string
		)
		if err := rows.Scan(&rec.Name, &rawPatterns, &rec.Priority, &rawMap, &rawSet); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rawPatterns), &rec.IndexPatterns); err != nil {
			return nil, fmt.Errorf("decode patterns of %s: %w", rec.Name, err)
		}
		if rec.Mapping, err = mapping.FromJSON(rec.Name, []byte(rawMap)); err != nil {
			return nil, err
		}
		if rec.Settings, err = decodeSettings(rawSet); err != nil {
			return nil, fmt.Errorf("decode settings of %s: %w", rec.Name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (c *catalog) template(ctx context.Context, name string) (templateRecord, bool, error) {
	all, err := c.templates(ctx)
	if err != nil {
		return templateRecord{}, false, err
	}
	for _, rec := range all {
		if rec.Name == name {
			return rec, true, nil
		}
	}
	return templateRecord{}, false, nil
}

func (c *catalog) putPolicy(ctx context.Context, rec policyRecord) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO policies (name, min_age, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET min_age = excluded.min_age, updated_at = excluded.updated_at`,
		rec.Name, rec.MinAge, rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("put policy %s: %w", rec.Name, err)
	}
	return nil
}

func (c *catalog) policies(ctx context.Context) ([]policyRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT name, min_age, updated_at FROM policies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []policyRecord
	for rows.Next() {
		var (
			rec     policyRecord
			updated int64
		)
		if err := rows.Scan(&rec.Name, &rec.MinAge, &updated); err != nil {
			return nil, err
		}
		rec.UpdatedAt = time.UnixMilli(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}
