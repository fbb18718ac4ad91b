// Package testutil provides shared fixtures for package tests.
package testutil

import (
	"testing"

	"autoapi/internal/entity"

	"github.com/stretchr/testify/require"
)

// CatalogYAML describes a small product catalog with every relation kind.
const CatalogYAML = `
entities:
  - name: families
    label: Families
    columns:
      - {name: id, type: number, primaryKey: true, autoGenerated: true, filterable: true}
      - {name: name, type: string, filterable: true}
    relations:
      - {kind: one-to-many, remote: products, remoteKey: family_id}

  - name: products
    label: Products
    columns:
      - {name: id, type: number, primaryKey: true, autoGenerated: true, filterable: true}
      - {name: name, type: string, filterable: true}
      - {name: family_id, type: number, filterable: true, nullable: true}
      - {name: price, type: float, nullable: true}
      - {name: active, type: boolean, filterable: true, nullable: true}
      - {name: created_at, type: date, nullable: true, autoGenerated: true, visible: {list: false}}
    relations:
      - {kind: "n:1", remote: families, localColumn: family_id, display: name}
      - {kind: "1:n", remote: images, remoteKey: product_id}

  - name: images
    columns:
      - {name: id, type: number, primaryKey: true, autoGenerated: true, filterable: true}
      - {name: url, type: file}
      - {name: product_id, type: number, filterable: true}
    relations:
      - {kind: many-to-one, remote: products, localColumn: product_id, display: name}

  - name: users
    roles: [admin]
    columns:
      - {name: id, type: number, primaryKey: true, autoGenerated: true, filterable: true}
      - {name: email, type: string, filterable: true}
      - {name: password, type: string, visible: {list: false, detail: false, relation: false}}
    relations:
      - kind: "m:n"
        remote: roles
        through: {table: user_roles, localKey: user_id, remoteKey: role_id}

  - name: roles
    roles:
      query: []
      all: [admin]
    columns:
      - {name: id, type: number, primaryKey: true, autoGenerated: true, filterable: true}
      - {name: name, type: string, filterable: true}
`

// Catalog returns a registry built from CatalogYAML.
func Catalog(t testing.TB) *entity.Registry {
	t.Helper()
	defs, err := entity.Decode([]byte(CatalogYAML))
	require.NoError(t, err)
	reg, err := entity.NewRegistry(defs)
	require.NoError(t, err)
	return reg
}

// MustEntity resolves name from reg or fails the test.
func MustEntity(t testing.TB, reg *entity.Registry, name string) *entity.Entity {
	t.Helper()
	ent, err := reg.Resolve(name)
	require.NoError(t, err)
	return ent
}
