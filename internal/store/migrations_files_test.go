package store

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationsPath = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsArePaired(t *testing.T) {
	entries, err := os.ReadDir(migrationsPath)
	require.NoError(t, err)

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	pairs := map[string][]string{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		pairs[match[1]] = append(pairs[match[1]], match[2])
	}

	require.NotEmpty(t, pairs, "no migrations found")
	for version, directions := range pairs {
		assert.ElementsMatch(t, []string{"up", "down"}, directions, "version %s", version)
	}
}

// Duplicate pairs and negative unread counters are rejected by the schema.
func TestInitialSchemaDeclaresUniqueness(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join(migrationsPath, "0001_init.up.sql"))
	require.NoError(t, err)
	schema := strings.Join(strings.Fields(string(raw)), " ")

	assert.Contains(t, schema, "UNIQUE (participant_low, participant_high)")
	assert.Contains(t, schema, "CHECK (unread_count >= 0)")
	assert.Equal(t, 2, strings.Count(schema, "UNIQUE (user_id, toolkit_id)"), "reviews and favorites")
	assert.Contains(t, schema, "CHECK (rating BETWEEN 1 AND 5)")
}
