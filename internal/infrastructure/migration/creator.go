package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MigrationFile describes a generated up/down migration pair
type MigrationFile struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// CreateMigration writes a timestamped up/down SQL file pair into
// migrationsDir. The version prefix is the creation time in
// YYYYMMDDHHMMSS form so files sort in application order.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("migration: failed to create migrations directory: %w", err)
	}

	now := time.Now()
	version := now.Format("20060102150405")
	base := version + "_" + sanitizeName(name)

	mf := &MigrationFile{
		Version:  version,
		Name:     name,
		UpPath:   filepath.Join(migrationsDir, base+".up.sql"),
		DownPath: filepath.Join(migrationsDir, base+".down.sql"),
	}

	upHeader := migrationHeader(name, description, now)
	downHeader := migrationHeader(name+" (rollback)", "Rollback for "+description, now)

	if err := os.WriteFile(mf.UpPath, []byte(upHeader+"-- Write your UP migration SQL here\n\n"), 0o644); err != nil {
		return nil, fmt.Errorf("migration: failed to create up migration: %w", err)
	}
	if err := os.WriteFile(mf.DownPath, []byte(downHeader+"-- Write your DOWN migration SQL here\n\n"), 0o644); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("migration: failed to create down migration: %w", err)
	}

	return mf, nil
}

func migrationHeader(name, description string, createdAt time.Time) string {
	return fmt.Sprintf("-- Migration: %s\n-- Created: %s\n-- Description: %s\n\n",
		name, createdAt.Format(time.RFC3339), description)
}

// sanitizeName lowercases a migration name and collapses anything that is
// not alphanumeric into single underscores.
func sanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			s := b.String()
			if s != "" && !strings.HasSuffix(s, "_") {
				b.WriteByte('_')
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// ListMigrations returns the base names of the migration pairs found in
// migrationsDir, sorted by version.
func ListMigrations(migrationsDir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return nil, fmt.Errorf("migration: failed to list migrations: %w", err)
	}

	migrations := make([]string, 0, len(matches))
	for _, m := range matches {
		migrations = append(migrations, strings.TrimSuffix(filepath.Base(m), ".up.sql"))
	}
	sort.Strings(migrations)
	return migrations, nil
}
