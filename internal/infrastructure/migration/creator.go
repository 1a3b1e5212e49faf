package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// MigrationFile is a created up/down pair
type MigrationFile struct {
	Version  uint
	Name     string
	UpPath   string
	DownPath string
}

// CreateMigration writes the next sequential up/down pair for the default namespace
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	base := sanitizeName(name)
	if base == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	existing, err := ListMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	version := nextVersion(existing)
	file := fmt.Sprintf("%06d_%s", version, base)

	mf := &MigrationFile{
		Version:  version,
		Name:     base,
		UpPath:   filepath.Join(migrationsDir, file+upSuffix),
		DownPath: filepath.Join(migrationsDir, file+downSuffix),
	}

	header := fmt.Sprintf("-- %s\n-- Applies to the default namespace only. Tenant tables are migrated on onboarding.\n", description)
	if err := os.WriteFile(mf.UpPath, []byte(header+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := os.WriteFile(mf.DownPath, []byte(header+"\n"), 0o644); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}
	return mf, nil
}

func nextVersion(existing []string) uint {
	var highest uint64
	for _, name := range existing {
		prefix, _, _ := strings.Cut(name, "_")
		if v, err := strconv.ParseUint(prefix, 10, 32); err == nil && v > highest {
			highest = v
		}
	}
	return uint(highest + 1)
}

// sanitizeName lowercases name and joins its alphanumeric runs with underscores
func sanitizeName(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	parts := fields[:0]
	for _, f := range fields {
		f = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				return r
			}
			return -1
		}, f)
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, "_")
}

// ListMigrations returns the sorted base names of the up migrations in migrationsDir
func ListMigrations(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	migrations := make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if base, ok := strings.CutSuffix(entry.Name(), upSuffix); ok && base != "" {
			migrations = append(migrations, base)
		}
	}
	slices.Sort(migrations)
	return migrations, nil
}
