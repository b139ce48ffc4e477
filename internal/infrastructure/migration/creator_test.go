package migration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/procurement/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"add feed url", "add_feed_url"},
		{"Add-Feed-URL", "add_feed_url"},
		{"add__feed__url", "add_feed_url"},
		{"  listings v2  ", "listings_v2"},
		{"special!@#$chars", "special_chars"},
		{"_leading_and_trailing_", "leading_and_trailing"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, slugify(tt.input))
		})
	}
}

func TestCreateMigration(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "migrations")

	mf, err := CreateMigration(dir, "Add feed URL", "shops publish price lists at a URL")
	require.NoError(t, err)
	assert.Len(t, mf.Version, 14)
	assert.Equal(t, "add_feed_url", mf.Name)
	assert.Equal(t, strings.TrimSuffix(mf.UpPath, ".up.sql"), strings.TrimSuffix(mf.DownPath, ".down.sql"))

	up, err := os.ReadFile(mf.UpPath)
	require.NoError(t, err)
	assert.Contains(t, string(up), "-- Migration: add_feed_url\n")
	assert.Contains(t, string(up), "shops publish price lists at a URL")

	down, err := os.ReadFile(mf.DownPath)
	require.NoError(t, err)
	assert.Contains(t, string(down), "(rollback)")

	names, err := ListMigrations(os.DirFS(dir))
	require.NoError(t, err)
	assert.Equal(t, []string{mf.Version + "_add_feed_url"}, names)
}

func TestCreateMigration_RejectsEmptyName(t *testing.T) {
	_, err := CreateMigration(t.TempDir(), "!!!", "")
	assert.Error(t, err)
}

func TestListMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"20260302_b.up.sql":   {},
		"20260302_b.down.sql": {},
		"20260301_a.up.sql":   {},
		"20260301_a.down.sql": {},
		"README.md":           {},
	}
	names, err := ListMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"20260301_a", "20260302_b"}, names)
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := ListMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, names)
	for _, n := range names {
		_, err := migrations.FS.Open(n + ".down.sql")
		assert.NoError(t, err, "%s has no rollback", n)
	}
}
