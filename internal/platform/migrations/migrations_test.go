package migrations

import (
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(files, "sql/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(files, down)
		assert.NoError(t, err, "missing down migration for %s", up)
	}
}

func TestSourceReadsInitialMigration(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	r, identifier, err := src.ReadUp(first)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "init", identifier)

	body, err := io.ReadAll(r)
	require.NoError(t, err)
	for _, table := range []string{"users", "sessions", "profiles", "fitness_logs", "glucose_readings",
		"medications", "medication_doses", "appointments", "challenges", "challenge_participants", "notifications"} {
		assert.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
}

func TestSourceWidensParticipantProgress(t *testing.T) {
	src, err := Source()
	require.NoError(t, err)
	defer src.Close()

	next, err := src.Next(1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	r, identifier, err := src.ReadUp(next)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "participant_progress_bigint", identifier)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ALTER COLUMN progress TYPE BIGINT")
}

func TestApplyIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres migration test")
	}

	require.NoError(t, Apply(dsn))
	require.NoError(t, Apply(dsn), "second apply is a no-op")

	version, dirty, ok, err := Version(dsn)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), version)
}
