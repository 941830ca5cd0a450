package app

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/askstack/askstack-backend/internal/clients/pinecone"
)

// tracedVectorStore wraps the vector store so every store call shows up as a
// span under the request or activity that triggered it.
type tracedVectorStore struct {
	inner  pinecone.VectorStore
	tracer trace.Tracer
}

func traceVectorStore(inner pinecone.VectorStore) pinecone.VectorStore {
	if inner == nil {
		return nil
	}
	return &tracedVectorStore{
		inner:  inner,
		tracer: otel.Tracer("askstack/vectorstore"),
	}
}

func (s *tracedVectorStore) UpsertRecords(ctx context.Context, records []pinecone.VectorRecord, userID, agentID uuid.UUID) error {
	ctx, span := s.start(ctx, "vectorstore.upsert", agentID)
	span.SetAttributes(attribute.Int("vectorstore.record_count", len(records)))
	defer span.End()
	return s.finish(span, s.inner.UpsertRecords(ctx, records, userID, agentID))
}

func (s *tracedVectorStore) DeleteAgentVectors(ctx context.Context, userID, agentID uuid.UUID) error {
	ctx, span := s.start(ctx, "vectorstore.delete_namespace", agentID)
	defer span.End()
	return s.finish(span, s.inner.DeleteAgentVectors(ctx, userID, agentID))
}

func (s *tracedVectorStore) AgentHasVectors(ctx context.Context, userID, agentID uuid.UUID) (bool, error) {
	ctx, span := s.start(ctx, "vectorstore.has_vectors", agentID)
	defer span.End()
	out, err := s.inner.AgentHasVectors(ctx, userID, agentID)
	return out, s.finish(span, err)
}

func (s *tracedVectorStore) GetAgentVectorCount(ctx context.Context, userID, agentID uuid.UUID) (int64, error) {
	ctx, span := s.start(ctx, "vectorstore.vector_count", agentID)
	defer span.End()
	out, err := s.inner.GetAgentVectorCount(ctx, userID, agentID)
	return out, s.finish(span, err)
}

func (s *tracedVectorStore) Namespace(userID, agentID uuid.UUID) string {
	return s.inner.Namespace(userID, agentID)
}

func (s *tracedVectorStore) start(ctx context.Context, name string, agentID uuid.UUID) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("agent.id", agentID.String()),
	))
}

func (s *tracedVectorStore) finish(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
