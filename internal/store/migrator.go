package store

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies pending schema migrations.
type Migrator struct {
	client *Client
}

// NewMigrator creates a new Migrator.
func NewMigrator(client *Client) *Migrator {
	return &Migrator{client: client}
}

// Run executes all pending migrations in version order.
func (m *Migrator) Run(ctx context.Context) error {
	if err := m.client.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version UInt32,
			name String,
			applied_at DateTime DEFAULT now()
		) ENGINE = MergeTree() ORDER BY version`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}

		slog.Info("applying migration", "version", mig.Version, "name", mig.Name)

		for _, stmt := range strings.Split(mig.SQL, ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if err := m.client.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", mig.Version, mig.Name, err)
			}
		}

		if err := m.client.Exec(ctx,
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			uint32(mig.Version), mig.Name); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", mig.Version, err)
		}
	}

	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]bool, error) {
	rows, err := m.client.Query(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version uint32
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[int(version)] = true
	}
	return applied, rows.Err()
}

// loadMigrations reads embedded migration files named NNN_name.sql.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		parts := strings.SplitN(strings.TrimSuffix(name, ".sql"), "_", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad migration filename: %s", name)
		}

		version, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("bad migration version in %s: %w", name, err)
		}

		data, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    parts[1],
			SQL:     stripComments(string(data)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// stripComments drops full-line SQL comments so statement splitting on ';'
// does not trip over them.
func stripComments(sql string) string {
	var lines []string
	for _, line := range strings.Split(sql, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
