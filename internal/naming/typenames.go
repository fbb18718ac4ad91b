package naming

import (
	"fmt"
	"log/slog"
	"strings"
)

// reservedTypeNames are GraphQL keywords, built-in scalars and the shared
// types every generated schema declares, lower-cased.
var reservedTypeNames = func() map[string]struct{} {
	words := []string{
		// language keywords
		"query", "mutation", "subscription", "type", "schema", "scalar",
		"enum", "input", "interface", "union", "fragment", "directive",
		"extend", "implements", "on", "true", "false", "null",
		// built-in scalars
		"int", "float", "string", "boolean", "id",
		// shared schema types
		"upload", "datetime", "nonnegativeint", "deleteresult", "orderdirection",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}()

func isReservedTypeName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "__") {
		return true
	}
	_, ok := reservedTypeNames[lower]
	return ok
}

// typeRegistry hands out unique GraphQL type names for one schema build.
// A name claimed twice gets the next free numeric suffix.
type typeRegistry struct {
	owners map[string]string // type name -> entity
	logger *slog.Logger
}

func newTypeRegistry(logger *slog.Logger) *typeRegistry {
	return &typeRegistry{owners: make(map[string]string), logger: logger}
}

func (r *typeRegistry) claim(typeName, entityName string) string {
	owner, taken := r.owners[typeName]
	if !taken {
		r.owners[typeName] = entityName
		return typeName
	}

	resolved := typeName
	for i := 2; taken; i++ {
		resolved = fmt.Sprintf("%s%d", typeName, i)
		_, taken = r.owners[resolved]
	}
	r.owners[resolved] = entityName
	r.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", typeName),
		slog.String("existing_entity", owner),
		slog.String("entity", entityName),
		slog.String("renamed", resolved),
	)
	return resolved
}
