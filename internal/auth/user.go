// Package auth decides whether a user may perform an operation on an entity.
// Token verifiers establish identity only; the Gate owns every allow/deny decision.
package auth

import (
	"context"
	"slices"
	"strings"
)

// User is the verified identity attached to a request.
type User struct {
	ID     string
	Roles  []string
	Claims map[string]any
}

// HasRole reports whether the user carries role.
func (u *User) HasRole(role string) bool {
	if u == nil {
		return false
	}
	return slices.Contains(u.Roles, role)
}

type userContextKey struct{}

// WithUser returns a context carrying user.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the request user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *User {
	if ctx == nil {
		return nil
	}
	user, _ := ctx.Value(userContextKey{}).(*User)
	return user
}

// Authorize applies the role rule: an empty role list is public, otherwise
// the user must exist and share at least one role.
func Authorize(entityRoles []string, user *User) bool {
	if len(entityRoles) == 0 {
		return true
	}
	if user == nil {
		return false
	}
	for _, role := range entityRoles {
		if user.HasRole(role) {
			return true
		}
	}
	return false
}

// UserFromClaims builds a user from token claims. rolesClaim may be a dotted
// path such as "realm_access.roles"; its value may be a list or a space or
// comma separated string.
func UserFromClaims(claims map[string]any, rolesClaim string) *User {
	user := &User{Claims: claims}
	user.ID, _ = claims["sub"].(string)
	if rolesClaim == "" {
		rolesClaim = "roles"
	}
	user.Roles = rolesFromValue(claimPath(claims, rolesClaim))
	return user
}

func claimPath(claims map[string]any, path string) any {
	var current any = claims
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

func rolesFromValue(v any) []string {
	switch val := v.(type) {
	case string:
		return strings.FieldsFunc(val, func(r rune) bool { return r == ' ' || r == ',' })
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
