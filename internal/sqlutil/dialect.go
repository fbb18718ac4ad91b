// Package sqlutil holds the per-driver SQL differences: placeholder style,
// identifier quoting and insert-returning support.
package sqlutil

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Dialect captures the per-driver differences the SQL builders care about.
type Dialect struct {
	Name        string
	Placeholder sq.PlaceholderFormat
	// Returning is true when inserts report generated keys via RETURNING
	// instead of LastInsertId.
	Returning bool
	// EmptyInsert is the statement tail used to insert a row of defaults.
	EmptyInsert string
	quote       func(string) string
}

var (
	backtick    = quoteWith("`")
	doubleQuote = quoteWith(`"`)
)

var (
	MySQL = Dialect{
		Name:        "mysql",
		Placeholder: sq.Question,
		EmptyInsert: "() VALUES ()",
		quote:       backtick,
	}
	Postgres = Dialect{
		Name:        "postgres",
		Placeholder: sq.Dollar,
		Returning:   true,
		EmptyInsert: "DEFAULT VALUES",
		quote:       doubleQuote,
	}
	SQLite = Dialect{
		Name:        "sqlite",
		Placeholder: sq.Question,
		EmptyInsert: "DEFAULT VALUES",
		quote:       doubleQuote,
	}
)

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql", "tidb":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
}

// quoteWith wraps identifiers in mark, doubling any embedded mark.
func quoteWith(mark string) func(string) string {
	return func(name string) string {
		return mark + strings.ReplaceAll(name, mark, mark+mark) + mark
	}
}

// Quote quotes a single identifier. The zero Dialect quotes like MySQL.
func (d Dialect) Quote(name string) string {
	if d.quote == nil {
		return backtick(name)
	}
	return d.quote(name)
}

// QuoteQualified quotes table.column; an empty qualifier yields the bare column.
func (d Dialect) QuoteQualified(qualifier, name string) string {
	if qualifier == "" {
		return d.Quote(name)
	}
	return d.Quote(qualifier) + "." + d.Quote(name)
}

// Rebind rewrites ? placeholders into the dialect's placeholder format.
func (d Dialect) Rebind(query string) (string, error) {
	if d.Placeholder == nil {
		return query, nil
	}
	return d.Placeholder.ReplacePlaceholders(query)
}
