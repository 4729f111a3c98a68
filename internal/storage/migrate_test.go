package storage

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/salesbench/migrations"
)

func TestReadMigrationsOrderAndChecksum(t *testing.T) {
	fsys := fstest.MapFS{
		"002_more.sql":  {Data: []byte("ALTER TABLE runs ADD COLUMN note TEXT;")},
		"001_init.sql":  {Data: []byte("CREATE TABLE runs (id BIGINT);")},
		"README.md":     {Data: []byte("not a migration")},
		"sub/003_x.sql": {Data: []byte("SELECT 1;")},
	}
	got, err := readMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "001_init.sql", got[0].name)
	assert.Equal(t, "002_more.sql", got[1].name)
	assert.Len(t, got[0].checksum, 64)
	assert.NotEqual(t, got[0].checksum, got[1].checksum)

	again, err := readMigrations(fsys)
	require.NoError(t, err)
	assert.Equal(t, got[0].checksum, again[0].checksum)
}

func TestEmbeddedMigrationsAreReadable(t *testing.T) {
	got, err := readMigrations(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "001_initial.sql", got[0].name)
	assert.Contains(t, got[0].sql, "scenario_results")
}
