package resolver

import (
	"context"

	"autoapi/internal/entity"
	"autoapi/internal/relations"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("autoapi/resolver")

// tracedRelationFetch runs one batched relation load inside a span that
// records the relation, the parent count and the number of child keys found.
func tracedRelationFetch(ctx context.Context, rel *entity.Relation, parents []entity.Row, fetch func(context.Context) (relations.Index, error)) (relations.Index, error) {
	ctx, span := tracer.Start(ctx, "graphql.relation.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("graphql.relation", rel.String()),
		attribute.String("graphql.relation.kind", string(rel.Kind)),
		attribute.Int("graphql.relation.parents", len(parents)),
	)

	index, err := fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("graphql.relation.keys", len(index)))
	return index, nil
}
