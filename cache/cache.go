// Package cache keeps emitted C++ units in SQLite, keyed by the canonical text
// of the optimized IR they were emitted from. Units written by an emitter whose
// version differs in major or minor from the running one are never returned.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	_ "github.com/mattn/go-sqlite3"

	"github.com/py2cppai/py2cpp/backend"
	"github.com/py2cppai/py2cpp/internal/log"
	"github.com/py2cppai/py2cpp/ir"
)

//go:embed schema.sql
var schemaSQL string

const keyDomain = "py2cpp/unit/v1"

var logger = log.Section("cache")

type Cache struct {
	db      *sql.DB
	version string
	// accepts matches the emitter versions whose units are reused
	accepts *semver.Constraints
}

// Open creates or opens the cache at path for units of the given emitter
// version, and drops every unit the version does not accept.
func Open(path, emitterVersion string) (*Cache, error) {
	v, err := semver.NewVersion(emitterVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid emitter version %q: %w", emitterVersion, err)
	}
	accepts, err := semver.NewConstraint(fmt.Sprintf("~%d.%d", v.Major(), v.Minor()))
	if err != nil {
		return nil, fmt.Errorf("failed to build version constraint: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to cache: %w", err)
	}
	// one writer at a time avoids SQLITE_BUSY under parallel emission
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	c := &Cache{db: db, version: v.String(), accepts: accepts}
	n, err := c.prune(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("cache opened", "path", path, "version", c.version, "pruned", n)
	return c, nil
}

func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Key identifies f by content. Functions that print identically under
// ir.CanonicalText share a key.
func Key(f *ir.Function) string {
	return hashWithDomain(keyDomain, []byte(ir.CanonicalText(f)))
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the unit stored under key, if there is one from an accepted emitter version.
func (c *Cache) Get(ctx context.Context, key string) (*backend.Unit, bool, error) {
	var (
		version, includes, helpers string
		u                          backend.Unit
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT emitter_version, function, name, arity, prototype, definition, includes, helpers
		FROM units WHERE key = ?`, key,
	).Scan(&version, &u.Function, &u.Name, &u.Arity, &u.Prototype, &u.Definition, &includes, &helpers)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read unit: %w", err)
	}
	if !c.accepted(version) {
		logger.Debug("stale unit ignored", "key", key, "version", version)
		return nil, false, nil
	}
	u.Includes = splitList(includes)
	u.Helpers = splitList(helpers)
	return &u, true, nil
}

// Put stores u under key, replacing what was there.
func (c *Cache) Put(ctx context.Context, key string, u *backend.Unit) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO units
			(key, emitter_version, function, name, arity, prototype, definition, includes, helpers, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key, c.version, u.Function, u.Name, u.Arity, u.Prototype, u.Definition,
		strings.Join(u.Includes, "\n"), strings.Join(u.Helpers, "\n"), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store unit for '%s': %w", u.Function, err)
	}
	return nil
}

func (c *Cache) accepted(version string) bool {
	v, err := semver.NewVersion(version)
	return err == nil && c.accepts.Check(v)
}

// prune deletes the units of every emitter version that is not accepted.
func (c *Cache) prune(ctx context.Context) (int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT DISTINCT emitter_version FROM units`)
	if err != nil {
		return 0, fmt.Errorf("failed to list cached versions: %w", err)
	}
	var stale []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to list cached versions: %w", err)
		}
		if !c.accepted(v) {
			stale = append(stale, v)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to list cached versions: %w", err)
	}

	var total int64
	for _, v := range stale {
		res, err := c.db.ExecContext(ctx, `DELETE FROM units WHERE emitter_version = ?`, v)
		if err != nil {
			return total, fmt.Errorf("failed to prune version %s: %w", v, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
