// Package naming derives GraphQL type and field names from entity names,
// including singularization, collision detection and reserved word handling.
package naming

import (
	"log/slog"
	"regexp"
	"strings"
)

var graphQLName = regexp.MustCompile(`^[_A-Za-z][_0-9A-Za-z]*$`)

// Namer derives GraphQL type and root field names from entity names. It
// handles singularization, reserved words and type collisions.
type Namer struct {
	inflect inflector
	logger  *slog.Logger
	types   *typeRegistry
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		inflect: newInflector(cfg),
		logger:  logger,
		types:   newTypeRegistry(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new schema build.
func (n *Namer) Reset() {
	n.types = newTypeRegistry(n.logger)
}

// Valid reports whether name is usable verbatim as a GraphQL name.
func Valid(name string) bool {
	return graphQLName.MatchString(name) && !strings.HasPrefix(name, "__")
}

// ToGraphQLTypeName converts an entity name to a singular PascalCase type.
// Example: "order_items" -> "OrderItem"
func (n *Namer) ToGraphQLTypeName(entityName string) string {
	name := toPascalCase(n.singularizeLast(entityName))
	return n.validateTypeAndSuffix(name)
}

// RegisterType registers an entity and returns its resolved GraphQL type name.
// If a collision occurs, returns a suffixed name and logs a warning.
func (n *Namer) RegisterType(entityName string) string {
	return n.types.claim(n.ToGraphQLTypeName(entityName), entityName)
}

// ToGraphQLFieldName converts an entity name to a camelCase root field.
// Example: "order_items" -> "orderItems"
func (n *Namer) ToGraphQLFieldName(entityName string) string {
	return toCamelCase(entityName)
}

// QueryFieldName is the root list query for an entity.
func (n *Namer) QueryFieldName(entityName string) string {
	return n.ToGraphQLFieldName(entityName)
}

// CountFieldName is the root count query for an entity.
// Example: "families" -> "familiesCount"
func (n *Namer) CountFieldName(entityName string) string {
	return n.ToGraphQLFieldName(entityName) + "Count"
}

// MutationFieldName prefixes verb to the PascalCase entity name.
// Example: ("add", "families") -> "addFamilies"
func (n *Namer) MutationFieldName(verb, entityName string) string {
	return verb + toPascalCase(entityName)
}

// singularizeLast singularizes the final snake_case segment only.
// Example: "order_items" -> "order_item"
func (n *Namer) singularizeLast(name string) string {
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return n.Singularize(name)
	}
	return name[:idx+1] + n.Singularize(name[idx+1:])
}

func (n *Namer) validateTypeAndSuffix(name string) string {
	if isReservedTypeName(name) {
		safeName := name + "_"
		n.logger.Warn("GraphQL name conflicts with reserved word, auto-suffixed",
			slog.String("original", name),
			slog.String("renamed", safeName),
		)
		return safeName
	}
	return name
}

// toPascalCase converts snake_case to PascalCase
func toPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// toCamelCase converts snake_case to camelCase
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}
