package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver

	"github.com/wardenlabs/hostwarden/internal/version"
	"github.com/wardenlabs/hostwarden/pkg/models"
)

// ErrNewerSchema is returned when the cache database was created by a newer
// version of hostwarden than the running binary.
var ErrNewerSchema = fmt.Errorf("cache database was created by a newer version of hostwarden")

// Backing is the durable SQLite layer behind the in-memory cache. It
// persists scan results so facts survive restarts. All failures are
// reported to the manager, which degrades to memory-only.
type Backing struct {
	db *sql.DB
}

// NewBacking opens (or creates) the cache database at path and applies
// the usual pragmas for WAL mode and a single write connection.
func NewBacking(path string) (*Backing, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// SQLite performs best with a single write connection. WAL enables concurrent readers.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	// modernc.org/sqlite requires SQL statements, not DSN params.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}

	b := &Backing{db: db}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := b.checkVersion(ctx, version.Version); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backing) migrate(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS scan_results (
			hostname    TEXT    NOT NULL,
			category    TEXT    NOT NULL,
			result      TEXT    NOT NULL,
			ttl_seconds REAL    NOT NULL,
			cached_at   INTEGER NOT NULL,
			PRIMARY KEY (hostname, category)
		)
	`)
	if err != nil {
		return fmt.Errorf("create scan_results table: %w", err)
	}
	return nil
}

// checkVersion refuses to open a database written by a newer binary. The
// special version "dev" always passes.
func (b *Backing) checkVersion(ctx context.Context, currentVersion string) error {
	_, err := b.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _schema_meta (
			id           INTEGER  PRIMARY KEY CHECK (id = 1),
			app_version  TEXT     NOT NULL,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema meta table: %w", err)
	}

	var stored string
	err = b.db.QueryRowContext(ctx,
		"SELECT app_version FROM _schema_meta WHERE id = 1",
	).Scan(&stored)

	if err == sql.ErrNoRows {
		_, err = b.db.ExecContext(ctx,
			"INSERT INTO _schema_meta (id, app_version, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)",
			currentVersion,
		)
		if err != nil {
			return fmt.Errorf("insert schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("query schema version: %w", err)
	}

	if stored == "dev" || currentVersion == "dev" {
		return b.storeVersion(ctx, currentVersion)
	}

	cur := normalizeVersion(currentVersion)
	sto := normalizeVersion(stored)
	if semver.Compare(cur, sto) < 0 {
		return fmt.Errorf("%w: database=%s, binary=%s", ErrNewerSchema, stored, currentVersion)
	}
	if semver.Compare(cur, sto) > 0 {
		return b.storeVersion(ctx, currentVersion)
	}
	return nil
}

func (b *Backing) storeVersion(ctx context.Context, v string) error {
	_, err := b.db.ExecContext(ctx,
		"UPDATE _schema_meta SET app_version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1", v)
	if err != nil {
		return fmt.Errorf("update schema version: %w", err)
	}
	return nil
}

func normalizeVersion(v string) string {
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Get loads the persisted scan result for (hostname, category). The second
// and third returns carry the write time and original TTL so the caller can
// judge freshness.
func (b *Backing) Get(hostname string, category models.ScanCategory) (*models.ScanResult, time.Time, time.Duration, bool, error) {
	var raw string
	var ttlSeconds float64
	var cachedAtUnix int64

	err := b.db.QueryRow(
		"SELECT result, ttl_seconds, cached_at FROM scan_results WHERE hostname = ? AND category = ?",
		hostname, string(category),
	).Scan(&raw, &ttlSeconds, &cachedAtUnix)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, 0, false, nil
	}
	if err != nil {
		return nil, time.Time{}, 0, false, fmt.Errorf("query scan_results: %w", err)
	}

	var result models.ScanResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, time.Time{}, 0, false, fmt.Errorf("decode cached result: %w", err)
	}
	ttl := time.Duration(ttlSeconds * float64(time.Second))
	return &result, time.Unix(cachedAtUnix, 0), ttl, true, nil
}

// Set upserts a scan result row.
func (b *Backing) Set(hostname string, category models.ScanCategory, result *models.ScanResult, ttl time.Duration) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO scan_results (hostname, category, result, ttl_seconds, cached_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (hostname, category) DO UPDATE SET
			result = excluded.result,
			ttl_seconds = excluded.ttl_seconds,
			cached_at = excluded.cached_at
	`, hostname, string(category), string(raw), ttl.Seconds(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert scan_results: %w", err)
	}
	return nil
}

// Delete removes one row.
func (b *Backing) Delete(hostname string, category models.ScanCategory) error {
	_, err := b.db.Exec(
		"DELETE FROM scan_results WHERE hostname = ? AND category = ?",
		hostname, string(category))
	if err != nil {
		return fmt.Errorf("delete scan_results row: %w", err)
	}
	return nil
}

// Clear removes all rows of a category, or every row when category is empty.
func (b *Backing) Clear(category models.ScanCategory) error {
	var err error
	if category == "" {
		_, err = b.db.Exec("DELETE FROM scan_results")
	} else {
		_, err = b.db.Exec("DELETE FROM scan_results WHERE category = ?", string(category))
	}
	if err != nil {
		return fmt.Errorf("clear scan_results: %w", err)
	}
	return nil
}

// Purge deletes rows older than staleMultiplier times their own TTL and
// returns how many were removed. Rows are kept past expiry so a restart can
// still distinguish "stale" from "never scanned".
func (b *Backing) Purge(staleMultiplier float64) (int64, error) {
	if staleMultiplier < 1 {
		staleMultiplier = 1
	}
	res, err := b.db.Exec(`
		DELETE FROM scan_results
		WHERE (strftime('%s', 'now') - cached_at) > ttl_seconds * ?
	`, staleMultiplier)
	if err != nil {
		return 0, fmt.Errorf("purge scan_results: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}
	return n, nil
}

// Close closes the underlying database.
func (b *Backing) Close() error {
	return b.db.Close()
}
