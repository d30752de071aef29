package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// MigrationFile is one migration script on disk.
type MigrationFile struct {
	Version   int64  // numeric version prefix
	Name      string // descriptive name
	Direction string // "up" or "down"
	FilePath  string // full path
}

// migrationFilenameRegex parses migration file names of the form
// <version>_<name>.<up|down>.sql.
var migrationFilenameRegex = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

// DiscoverMigrations finds and sorts migration script files in dir. Files
// that don't match the naming scheme are skipped; a missing directory yields
// an empty list.
func DiscoverMigrations(dir string) ([]MigrationFile, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []MigrationFile{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var migrations []MigrationFile
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		match := migrationFilenameRegex.FindStringSubmatch(file.Name())
		if len(match) != 4 {
			continue
		}

		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			// Version too large to parse; skip.
			continue
		}

		migrations = append(migrations, MigrationFile{
			Version:   version,
			Name:      match[2],
			Direction: match[3],
			FilePath:  filepath.Join(dir, file.Name()),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}
