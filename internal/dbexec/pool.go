package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"autoapi/internal/apperr"
	"autoapi/internal/planner"
	"autoapi/internal/sqlutil"
)

// NoDatabaseMessage is reported when an entity names a connector that was never configured.
const NoDatabaseMessage = "No database"

// Connector is one named data source with a planner for its dialect.
type Connector struct {
	Name     string
	Driver   string
	DB       *sql.DB
	Executor QueryExecutor
	Planner  *planner.Planner
}

// Pool holds the configured connectors. It is filled at boot and read-only afterwards.
type Pool struct {
	connectors map[string]*Connector
	names      []string
}

// NewPool returns an empty pool.
func NewPool() *Pool {
	return &Pool{connectors: make(map[string]*Connector)}
}

// Add registers db under name. The executor defaults to a StandardExecutor.
func (p *Pool) Add(name, driver string, db *sql.DB, exec QueryExecutor, opts planner.Options) (*Connector, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("connector name is required")
	}
	if _, exists := p.connectors[name]; exists {
		return nil, fmt.Errorf("duplicate connector %q", name)
	}
	dialect, err := sqlutil.DialectFor(driver)
	if err != nil {
		return nil, fmt.Errorf("connector %s: %w", name, err)
	}
	if exec == nil {
		exec = NewStandardExecutor(db)
	}
	conn := &Connector{
		Name:     name,
		Driver:   dialect.Name,
		DB:       db,
		Executor: exec,
		Planner:  planner.New(dialect, opts),
	}
	p.connectors[name] = conn
	p.names = append(p.names, name)
	return conn, nil
}

// Connector returns the named connector, or a configuration error.
func (p *Pool) Connector(name string) (*Connector, error) {
	if p != nil {
		if conn, ok := p.connectors[name]; ok {
			return conn, nil
		}
	}
	return nil, apperr.Configuration(NoDatabaseMessage)
}

// Names returns connector names in registration order.
func (p *Pool) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Ping checks every connector with a database handle.
func (p *Pool) Ping(ctx context.Context) error {
	for _, name := range p.names {
		conn := p.connectors[name]
		if conn.DB == nil {
			continue
		}
		if err := conn.DB.PingContext(ctx); err != nil {
			return fmt.Errorf("connector %s: %w", name, err)
		}
	}
	return nil
}
