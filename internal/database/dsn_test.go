package database

import (
	"path/filepath"
	"testing"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "l2cache", Name: "l2cache"})
	require.NoError(t, err)
	require.Equal(t,
		"host=localhost port=5432 user=l2cache dbname=l2cache application_name=l2cache sslmode=disable", dsn)
}

func TestBuildPostgresDSNParsesBack(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "user",
		Name:     "db",
		Host:     "db.example.com",
		Port:     6543,
		Password: "it's secret",
		Options: map[string]string{
			"search_path":      "catalog",
			"application_name": "catalog-api",
		},
	})
	require.NoError(t, err)

	parsed, err := pgconn.ParseConfig(dsn)
	require.NoError(t, err)
	require.Equal(t, "db.example.com", parsed.Host)
	require.EqualValues(t, 6543, parsed.Port)
	require.Equal(t, "user", parsed.User)
	require.Equal(t, "db", parsed.Database)
	require.Equal(t, "it's secret", parsed.Password)
	require.Equal(t, "catalog", parsed.RuntimeParams["search_path"])
	require.Equal(t, "catalog-api", parsed.RuntimeParams["application_name"])
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	_, err := buildPostgresDSN(Config{})
	require.Error(t, err)
}

func TestBuildMySQLDSNParsesBack(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "l2cache", Name: "catalog"})
	require.NoError(t, err)
	require.Contains(t, dsn, "charset=utf8mb4")

	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "l2cache", parsed.User)
	require.Equal(t, "127.0.0.1:3306", parsed.Addr)
	require.Equal(t, "catalog", parsed.DBName)
	require.True(t, parsed.ParseTime)
	require.Equal(t, time.Local, parsed.Loc)
}

func TestBuildMySQLDSNWithOptions(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "user",
		Password: "p@ss:word",
		Name:     "db",
		Host:     "db.example.com",
		Port:     3307,
		Options:  map[string]string{"tls": "skip-verify"},
	})
	require.NoError(t, err)
	require.Contains(t, dsn, "tls=skip-verify")

	parsed, err := gomysql.ParseDSN(dsn)
	require.NoError(t, err)
	require.Equal(t, "p@ss:word", parsed.Passwd)
	require.Equal(t, "db.example.com:3307", parsed.Addr)
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	_, err := buildMySQLDSN(Config{Host: "localhost"})
	require.Error(t, err)
}

func TestBuildSQLiteDSN(t *testing.T) {
	dsn, err := buildSQLiteDSN(Config{Path: ":memory:"})
	require.NoError(t, err)
	require.Equal(t, "file::memory:?cache=shared&_foreign_keys=1", dsn)

	path := filepath.Join(t.TempDir(), "nested", "cache.sqlite")
	dsn, err = buildSQLiteDSN(Config{Path: path})
	require.NoError(t, err)
	require.Contains(t, dsn, "_busy_timeout=5000")
	require.DirExists(t, filepath.Dir(path))

	dsn, err = buildSQLiteDSN(Config{DSN: "file:custom.db", Path: path})
	require.NoError(t, err)
	require.Equal(t, "file:custom.db", dsn)
}
