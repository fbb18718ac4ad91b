// Package planner translates entity metadata, filters and pagination into SQL.
package planner

import (
	"fmt"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"
	"autoapi/internal/sqlutil"
)

// DefaultMaxInClause bounds the number of values bound into one IN list.
const DefaultMaxInClause = 1000

// SQLQuery represents a planned SQL statement with bound args.
type SQLQuery struct {
	SQL  string
	Args []any
}

// Options tunes a Planner.
type Options struct {
	MaxInClause int
}

// Planner builds statements for one SQL dialect.
type Planner struct {
	dialect sqlutil.Dialect
	maxIn   int
}

// New returns a planner for dialect.
func New(dialect sqlutil.Dialect, opts Options) *Planner {
	maxIn := opts.MaxInClause
	if maxIn <= 0 {
		maxIn = DefaultMaxInClause
	}
	return &Planner{dialect: dialect, maxIn: maxIn}
}

// Dialect returns the planner's dialect.
func (p *Planner) Dialect() sqlutil.Dialect {
	return p.dialect
}

// MaxIn returns the IN list chunk size.
func (p *Planner) MaxIn() int {
	return p.maxIn
}

// Page bounds a result set. Take <= 0 means unlimited.
type Page struct {
	Take int
	Skip int
}

// LegacyPage maps page-number pagination onto take/skip.
func LegacyPage(limit, page int) Page {
	if page < 0 {
		page = 0
	}
	return Page{Take: limit, Skip: page * limit}
}

// Validate rejects negative bounds.
func (p Page) Validate() error {
	if p.Take < 0 {
		return apperr.InvalidInput("take must be non-negative")
	}
	if p.Skip < 0 {
		return apperr.InvalidInput("skip must be non-negative")
	}
	return nil
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// ParseOrder parses "col" / "-col" / "col desc" style terms.
func ParseOrder(e *entity.Entity, terms []string) ([]Order, error) {
	orders := make([]Order, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		order := Order{}
		if strings.HasPrefix(term, "-") {
			order.Desc = true
			term = term[1:]
		}
		if fields := strings.Fields(term); len(fields) == 2 {
			term = fields[0]
			switch strings.ToUpper(fields[1]) {
			case "DESC":
				order.Desc = true
			case "ASC":
			default:
				return nil, apperr.InvalidInput("order direction must be ASC or DESC")
			}
		}
		order.Column = term
		orders = append(orders, order)
	}
	if err := validateOrder(e, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func validateOrder(e *entity.Entity, orders []Order) error {
	for _, order := range orders {
		if e.Column(order.Column) == nil {
			return apperr.InvalidInput("cannot order %s by unknown column %q", e.Name, order.Column)
		}
	}
	return nil
}

func (p *Planner) orderClauses(qualifier string, e *entity.Entity, orders []Order) []string {
	if len(orders) == 0 {
		return []string{p.dialect.QuoteQualified(qualifier, e.PrimaryKey) + " ASC"}
	}
	clauses := make([]string, 0, len(orders)+1)
	hasPK := false
	for _, order := range orders {
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		clauses = append(clauses, fmt.Sprintf("%s %s", p.dialect.QuoteQualified(qualifier, order.Column), direction))
		hasPK = hasPK || order.Column == e.PrimaryKey
	}
	if !hasPK {
		clauses = append(clauses, p.dialect.QuoteQualified(qualifier, e.PrimaryKey)+" ASC")
	}
	return clauses
}

func (p *Planner) columnList(qualifier string, columns []string) []string {
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = p.dialect.QuoteQualified(qualifier, col)
	}
	return quoted
}

// resolveColumns validates requested columns and ensures required keys are present.
func resolveColumns(e *entity.Entity, requested []string, required ...string) ([]string, error) {
	if len(requested) == 0 {
		requested = e.ColumnNames()
	}
	seen := make(map[string]struct{}, len(requested)+len(required))
	out := make([]string, 0, len(requested)+len(required))
	for _, name := range requested {
		if e.Column(name) == nil {
			return nil, apperr.InvalidInput("unknown column %q for %s", name, e.Name)
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range required {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

func chunkValues(values []any, max int) [][]any {
	if len(values) == 0 {
		return nil
	}
	if max <= 0 || len(values) <= max {
		return [][]any{values}
	}
	chunks := make([][]any, 0, (len(values)+max-1)/max)
	for start := 0; start < len(values); start += max {
		end := start + max
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}
