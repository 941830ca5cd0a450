package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/askstack/askstack-backend/internal/clients/openai"
	"github.com/askstack/askstack-backend/internal/clients/pinecone"
	"github.com/askstack/askstack-backend/internal/data/repos"
	"github.com/askstack/askstack-backend/internal/domain"
	"github.com/askstack/askstack-backend/internal/platform/dbctx"
	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// SourceExtractor is the collaborator the training worker drives: pull the
// eligible sources, turn them into embeddable vector records, and flip the
// embedded flag once vectors are durable.
type SourceExtractor interface {
	ExtractAllSourcesForAgent(ctx context.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error)
	TransformToVectorFormat(ctx context.Context, agentID uuid.UUID, sources []*domain.KnowledgeSource) ([]pinecone.VectorRecord, error)
	MarkSourcesAsEmbedded(ctx context.Context, sourceIDs []uuid.UUID) error
}

type ExtractorConfig struct {
	ChunkSize    int
	ChunkOverlap int
	// EmbedBatchSize caps inputs per embeddings call; EmbedConcurrency caps
	// in-flight embeddings calls for one transform.
	EmbedBatchSize   int
	EmbedConcurrency int
}

type sourceExtractor struct {
	log      *logger.Logger
	sources  repos.KnowledgeSourceRepo
	embedder openai.Embedder
	cfg      ExtractorConfig
}

func NewSourceExtractor(baseLog *logger.Logger, sources repos.KnowledgeSourceRepo, embedder openai.Embedder, cfg ExtractorConfig) SourceExtractor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1200
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 150
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 64
	}
	if cfg.EmbedConcurrency <= 0 {
		cfg.EmbedConcurrency = 4
	}
	return &sourceExtractor{
		log:      baseLog.With("service", "SourceExtractor"),
		sources:  sources,
		embedder: embedder,
		cfg:      cfg,
	}
}

func (s *sourceExtractor) ExtractAllSourcesForAgent(ctx context.Context, agentID uuid.UUID) ([]*domain.KnowledgeSource, error) {
	if agentID == uuid.Nil {
		return nil, fmt.Errorf("missing agent_id")
	}
	return s.sources.GetEligibleByAgentID(dbctx.Context{Ctx: ctx}, agentID)
}

type chunkRef struct {
	vectorID string
	sourceID uuid.UUID
	index    int
	text     string
}

// TransformToVectorFormat chunks each source and embeds the chunks. Vector IDs
// are derived from (source, chunk index), never generated, so a whole-job
// retry re-upserts the same logical records without duplication.
func (s *sourceExtractor) TransformToVectorFormat(ctx context.Context, agentID uuid.UUID, sources []*domain.KnowledgeSource) ([]pinecone.VectorRecord, error) {
	if len(sources) == 0 {
		return []pinecone.VectorRecord{}, nil
	}

	var chunks []chunkRef
	for _, src := range sources {
		if src == nil || strings.TrimSpace(src.Content) == "" {
			continue
		}
		parts := splitIntoChunks(src.Content, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
		for i, text := range parts {
			chunks = append(chunks, chunkRef{
				vectorID: ChunkVectorID(src.ID, i),
				sourceID: src.ID,
				index:    i,
				text:     text,
			})
		}
	}
	if len(chunks) == 0 {
		return []pinecone.VectorRecord{}, nil
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.EmbedConcurrency)
	for start := 0; start < len(chunks); start += s.cfg.EmbedBatchSize {
		end := start + s.cfg.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		start, end := start, end
		g.Go(func() error {
			inputs := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				inputs = append(inputs, c.text)
			}
			embedded, err := s.embedder.Embed(gctx, inputs)
			if err != nil {
				return fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
			}
			if len(embedded) != end-start {
				return fmt.Errorf("embed batch [%d:%d]: got %d vectors", start, end, len(embedded))
			}
			copy(vectors[start:end], embedded)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]pinecone.VectorRecord, 0, len(chunks))
	for i, c := range chunks {
		records = append(records, pinecone.VectorRecord{
			ID:     c.vectorID,
			Values: vectors[i],
			Metadata: map[string]any{
				"agent_id":    agentID.String(),
				"source_id":   c.sourceID.String(),
				"chunk_index": c.index,
				"text":        c.text,
			},
		})
	}
	return records, nil
}

func (s *sourceExtractor) MarkSourcesAsEmbedded(ctx context.Context, sourceIDs []uuid.UUID) error {
	return s.sources.MarkEmbedded(dbctx.Context{Ctx: ctx}, sourceIDs)
}

// ChunkVectorID is the deterministic vector identity for one chunk of one
// source. Stable across retries and retrains.
func ChunkVectorID(sourceID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s:%04d", sourceID, chunkIndex)
}

func splitIntoChunks(text string, chunkSize int, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	step := chunkSize - overlap
	if step <= 0 {
		step = chunkSize
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return out
}
