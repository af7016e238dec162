package db

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var dbnameKV = regexp.MustCompile(`(^|\s)dbname=('(?:[^'\\]|\\.)*'|\S*)`)

// WithDBName returns dsn with its database replaced. URL DSNs (postgres:// and
// postgresql://, or a bare host without scheme) get a new path; keyword/value
// DSNs ("host=... dbname=...") get their dbname set.
func WithDBName(dsn, database string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", fmt.Errorf("empty DSN")
	}
	database = strings.TrimPrefix(strings.TrimSpace(database), "/")
	if database == "" {
		return "", fmt.Errorf("empty database name")
	}

	if !strings.Contains(dsn, "://") && strings.Contains(dsn, "=") {
		kv := "dbname=" + quoteKV(database)
		if dbnameKV.MatchString(dsn) {
			return dbnameKV.ReplaceAllString(dsn, "${1}"+strings.ReplaceAll(kv, "$", "$$")), nil
		}
		return dsn + " " + kv, nil
	}

	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + database
	return u.String(), nil
}

func quoteKV(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + v + "'"
}
