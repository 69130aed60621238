package ledger

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

type DBDriver string

const (
	DBMemory   DBDriver = "memory"
	DBSQLite   DBDriver = "sqlite"
	DBPostgres DBDriver = "postgres"
)

// ParseDriver maps a config value to a driver, defaulting to memory.
func ParseDriver(v string) (DBDriver, error) {
	switch DBDriver(strings.ToLower(strings.TrimSpace(v))) {
	case "", DBMemory:
		return DBMemory, nil
	case DBSQLite, "sqlite3":
		return DBSQLite, nil
	case DBPostgres, "postgresql", "pg":
		return DBPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db driver: %s", v)
	}
}

// dialect holds the per-driver pieces of the migration bookkeeping.
type dialect struct {
	dir         string
	table       string
	appliedType string
	insert      string
	appliedAt   func(time.Time) any
}

func dialectFor(driver DBDriver) (dialect, error) {
	switch driver {
	case DBSQLite:
		return dialect{
			dir:         "migrations/sqlite",
			table:       "schema_migrations",
			appliedType: "TEXT",
			insert:      "INSERT INTO schema_migrations(version, applied_at) VALUES(?, ?) ON CONFLICT(version) DO NOTHING",
			appliedAt:   func(t time.Time) any { return t.Format(time.RFC3339) },
		}, nil
	case DBPostgres:
		return dialect{
			dir:         "migrations/postgres",
			table:       "proof_schema_migrations",
			appliedType: "TIMESTAMPTZ",
			insert:      "INSERT INTO proof_schema_migrations(version, applied_at) VALUES($1, $2) ON CONFLICT(version) DO NOTHING",
			appliedAt:   func(t time.Time) any { return t },
		}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported db driver: %s", driver)
	}
}

// Migration is one embedded schema file.
type Migration struct {
	Version string
	Applied bool
}

// Migrate applies the embedded migrations for driver in version order and
// returns the versions it applied. Each file commits together with its
// bookkeeping row, so a rerun skips what already landed.
func Migrate(db *sql.DB, driver DBDriver) ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("missing db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if err := d.ensureTable(db); err != nil {
		return nil, err
	}
	versions, err := d.versions()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var applied []string
	for _, version := range versions {
		ok, err := d.apply(db, version, now)
		if err != nil {
			return applied, err
		}
		if ok {
			applied = append(applied, version)
		}
	}
	return applied, nil
}

// MigrationStatus lists every embedded migration and whether db has it.
func MigrationStatus(db *sql.DB, driver DBDriver) ([]Migration, error) {
	if db == nil {
		return nil, fmt.Errorf("missing db")
	}
	d, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}
	if err := d.ensureTable(db); err != nil {
		return nil, err
	}
	versions, err := d.versions()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT version FROM " + d.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := map[string]bool{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Migration, 0, len(versions))
	for _, v := range versions {
		out = append(out, Migration{Version: v, Applied: done[v]})
	}
	return out, nil
}

func (d dialect) ensureTable(db *sql.DB) error {
	_, err := db.Exec(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  version TEXT PRIMARY KEY,
  applied_at %s NOT NULL
)`, d.table, d.appliedType))
	return err
}

// versions returns the embedded migration names without the .sql suffix, sorted.
func (d dialect) versions() ([]string, error) {
	entries, err := migrationsFS.ReadDir(d.dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".sql"))
	}
	sort.Strings(out)
	return out, nil
}

// apply runs one migration unless its row already exists. The claim and the
// schema change share a transaction.
func (d dialect) apply(db *sql.DB, version string, now time.Time) (bool, error) {
	body, err := migrationsFS.ReadFile(path.Join(d.dir, version+".sql"))
	if err != nil {
		return false, err
	}

	tx, err := db.Begin()
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(d.insert, version, d.appliedAt(now))
	if err != nil {
		return false, err
	}
	claimed, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if claimed == 0 {
		return false, nil
	}

	if _, err := tx.Exec(string(body)); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
