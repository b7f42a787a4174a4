package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func postgresDialector(cfg Config) (gorm.Dialector, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return postgres.Open(dsn), nil
}

// buildPostgresDSN renders a keyword/value connection string. Connections are tagged with the
// application name so cache traffic is identifiable in pg_stat_activity.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres configuration requires user and database name")
	}

	params := map[string]string{
		"host":             valueOr(cfg.Host, "localhost"),
		"port":             fmt.Sprint(intOr(cfg.Port, 5432)),
		"user":             cfg.User,
		"dbname":           cfg.Name,
		"sslmode":          "disable",
		"application_name": "l2cache",
	}
	if cfg.Password != "" {
		params["password"] = cfg.Password
	}
	for key, value := range cfg.Options {
		params[key] = value
	}

	// host, port, user and dbname lead; the rest follow in key order.
	leading := []string{"host", "port", "user", "dbname"}
	rest := make([]string, 0, len(params))
	for key := range params {
		if !contains(leading, key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)

	parts := make([]string, 0, len(params))
	for _, key := range append(leading, rest...) {
		parts = append(parts, key+"="+quotePostgresValue(params[key]))
	}
	return strings.Join(parts, " "), nil
}

func quotePostgresValue(value string) string {
	if value != "" && !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func intOr(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
