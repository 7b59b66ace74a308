package sql

import (
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	db := initDB(t)

	t.Run("Initialize database extensions", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		// Verify pgvector extension is created
		var exists bool
		err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector');").Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "pgvector extension should be created")
	})

	t.Run("Initialize database extensions is idempotent", func(t *testing.T) {
		err := Init(db.Instance)
		assert.NoError(t, err)

		err = Init(db.Instance)
		assert.NoError(t, err)
	})
}

func TestLoadVersionsSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load versions SQL functions", func(t *testing.T) {
		err := LoadVersionsSql(db.Instance, false)
		assert.NoError(t, err)

		for _, funcName := range VersionsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist", funcName)
		}
	})

	t.Run("Load versions SQL is idempotent without force", func(t *testing.T) {
		err := LoadVersionsSql(db.Instance, false)
		assert.NoError(t, err)
	})

	t.Run("Load versions SQL with force reloads", func(t *testing.T) {
		err := LoadVersionsSql(db.Instance, true)
		assert.NoError(t, err)

		for _, funcName := range VersionsFunctions {
			var exists bool
			err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
			require.NoError(t, err)
			assert.True(t, exists, "Function %s should exist after force reload", funcName)
		}
	})
}

func TestLoadAllSql(t *testing.T) {
	db := initDB(t)
	defer db.Instance.Close()

	t.Run("Load all SQL functions", func(t *testing.T) {
		err := LoadAllSql(db.Instance, false)
		assert.NoError(t, err)

		all := [][]string{VersionsFunctions, ChunksFunctions, ChaptersFunctions, PlotPointsFunctions}
		for _, functions := range all {
			for _, funcName := range functions {
				var exists bool
				err = db.Instance.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);", funcName).Scan(&exists)
				require.NoError(t, err)
				assert.True(t, exists, "Function %s should exist", funcName)
			}
		}
	})

	t.Run("Load all SQL is idempotent", func(t *testing.T) {
		err := LoadAllSql(db.Instance, false)
		assert.NoError(t, err)
	})
}
