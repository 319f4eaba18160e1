package migrations

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// Cell range scans compare keys against a "~" end sentinel, which only sorts
// after the geohash alphabet under byte order.
func TestPostgresCellKeyUsesByteCollation(t *testing.T) {
	raw, err := files.ReadFile("postgres/00001_init.sql")
	require.NoError(t, err)

	require.Regexp(t, regexp.MustCompile(`(?m)^\s*cell_key TEXT COLLATE "C" NOT NULL,$`), string(raw))
	require.NotContains(t, string(raw), "text_pattern_ops")
}

func TestUpSQLite(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	require.NoError(t, Up(ctx, db, "sqlite"))
	v, err := Version(ctx, db, "sqlite")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)

	require.Error(t, Up(ctx, db, "mysql"))
}
