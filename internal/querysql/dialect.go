package querysql

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects placeholder syntax for the target store.
type Dialect string

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = "sqlite"
	// DialectPostgres uses $1, $2, ... placeholders.
	DialectPostgres Dialect = "postgres"
)

// DialectForDriver maps a database/sql driver name to its dialect.
func DialectForDriver(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite3", "sqlite":
		return DialectSQLite, nil
	case "pgx", "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported driver %q", driver)
	}
}

// Rebind rewrites ? placeholders for the dialect.
// Question marks inside single-quoted literals are left alone.
func (d Dialect) Rebind(sql string) string {
	if d != DialectPostgres {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
