package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscoverMigrations(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "002_add_posts.up.sql", "CREATE TABLE posts (id INTEGER);")
	writeFile(t, dir, "001_create_users.up.sql", "CREATE TABLE users (id INTEGER);")
	writeFile(t, dir, "001_create_users.down.sql", "DROP TABLE users;")
	writeFile(t, dir, "README.md", "not a migration")
	writeFile(t, dir, "003-bad-name.up.sql", "SELECT 1;")

	migrations, err := DiscoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	// Sorted by version; non-matching files skipped.
	assert.Equal(t, int64(1), migrations[0].Version)
	assert.Equal(t, int64(1), migrations[1].Version)
	assert.Equal(t, int64(2), migrations[2].Version)
	assert.Equal(t, "create_users", migrations[0].Name)
	assert.Equal(t, "add_posts", migrations[2].Name)
	assert.Equal(t, filepath.Join(dir, "002_add_posts.up.sql"), migrations[2].FilePath)
}

func TestDiscoverMigrationsDirections(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "20240101120000_init.up.sql", "SELECT 1;")
	writeFile(t, dir, "20240101120000_init.down.sql", "SELECT 1;")

	migrations, err := DiscoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, int64(20240101120000), migrations[0].Version)

	directions := []string{migrations[0].Direction, migrations[1].Direction}
	assert.ElementsMatch(t, []string{"up", "down"}, directions)
}

func TestDiscoverMigrationsMissingDir(t *testing.T) {
	migrations, err := DiscoverMigrations(filepath.Join(t.TempDir(), "does_not_exist"))
	require.NoError(t, err)
	assert.Empty(t, migrations)
}

func TestDiscoverMigrationsSkipsSubdirs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "001_not_a_file.up.sql"), 0o755))
	writeFile(t, dir, "002_real.up.sql", "SELECT 1;")

	migrations, err := DiscoverMigrations(dir)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, int64(2), migrations[0].Version)
}
