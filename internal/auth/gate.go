package auth

import (
	"context"
	"fmt"

	"autoapi/internal/apperr"
	"autoapi/internal/entity"
	"autoapi/internal/observability"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// PolicyUser is the user as seen by policy expressions.
type PolicyUser struct {
	ID     string         `expr:"id"`
	Roles  []string       `expr:"roles"`
	Claims map[string]any `expr:"claims"`
}

// PolicyEnv is the environment policy expressions are compiled against.
// Example: `operation == "query" || "editor" in user.roles`.
type PolicyEnv struct {
	User          PolicyUser `expr:"user"`
	Authenticated bool       `expr:"authenticated"`
	Operation     string     `expr:"operation"`
	Entity        string     `expr:"entity"`
}

// Gate enforces entity roles and policies. It is immutable after NewGate.
type Gate struct {
	policies map[string]*vm.Program
	metrics  *observability.SecurityMetrics
}

// NewGate compiles every entity policy. A policy that does not compile or
// does not yield a boolean is a configuration error. metrics may be nil.
func NewGate(registry *entity.Registry, metrics *observability.SecurityMetrics) (*Gate, error) {
	g := &Gate{policies: make(map[string]*vm.Program), metrics: metrics}
	for _, e := range registry.Entities() {
		if e.Policy == "" {
			continue
		}
		program, err := expr.Compile(e.Policy, expr.Env(PolicyEnv{}), expr.AsBool())
		if err != nil {
			return nil, apperr.Configuration("entity %s: invalid policy: %v", e.Name, err)
		}
		g.policies[e.Name] = program
	}
	return g, nil
}

// Check returns an authorization error unless user may perform op on e.
// Roles are checked first, then the entity policy if one is configured.
func (g *Gate) Check(ctx context.Context, e *entity.Entity, op entity.Operation, user *User) error {
	if !Authorize(e.Roles.For(op), user) {
		g.deny(ctx, e, op, "role")
		return apperr.Authorization()
	}
	program := g.policies[e.Name]
	if program == nil {
		return nil
	}
	allowed, err := evaluate(program, e, op, user)
	if err != nil || !allowed {
		g.deny(ctx, e, op, "policy")
		return apperr.Authorization()
	}
	return nil
}

func (g *Gate) deny(ctx context.Context, e *entity.Entity, op entity.Operation, reason string) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordUnauthorizedAttempt(ctx, fmt.Sprintf("%s.%s", e.Name, op), reason)
}

func evaluate(program *vm.Program, e *entity.Entity, op entity.Operation, user *User) (bool, error) {
	env := PolicyEnv{Operation: string(op), Entity: e.Name}
	if user != nil {
		env.Authenticated = true
		env.User = PolicyUser{ID: user.ID, Roles: user.Roles, Claims: user.Claims}
	}
	if env.User.Claims == nil {
		env.User.Claims = map[string]any{}
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}
	allowed, _ := out.(bool)
	return allowed, nil
}
