package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDriverURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/smile", DriverURL("postgres://u:p@localhost:5432/smile"))
	require.Equal(t, "pgx5://localhost/smile", DriverURL("postgresql://localhost/smile"))
	require.Equal(t, "pgx5://already", DriverURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(MigrationsFS(), "migrations")
	require.NoError(t, err)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestSeedCoversDiscountRules(t *testing.T) {
	raw, err := fs.ReadFile(MigrationsFS(), "migrations/0004_seed.up.sql")
	require.NoError(t, err)
	for _, code := range []string{"SUMMER15", "WINTER2023", "OFFER-FREE-WHITENING"} {
		require.Contains(t, string(raw), code)
	}
}
