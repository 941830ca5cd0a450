package pinecone

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/askstack/askstack-backend/internal/platform/logger"
)

// VectorRecord is one embeddable chunk ready for the store. ID is derived
// deterministically from source + chunk index, so re-upserting the same
// logical records after a retry overwrites instead of duplicating.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata map[string]any
}

// VectorStore is the collaborator contract the training subsystem consumes.
// Every operation is scoped to the (user, agent) namespace; two agents never
// contend for the same namespace.
type VectorStore interface {
	UpsertRecords(ctx context.Context, records []VectorRecord, userID, agentID uuid.UUID) error
	DeleteAgentVectors(ctx context.Context, userID, agentID uuid.UUID) error
	AgentHasVectors(ctx context.Context, userID, agentID uuid.UUID) (bool, error)
	GetAgentVectorCount(ctx context.Context, userID, agentID uuid.UUID) (int64, error)
	Namespace(userID, agentID uuid.UUID) string
}

type StoreConfig struct {
	IndexName string
	IndexHost string
	NSPrefix  string
	// UpsertBatchSize bounds one upsert call; Pinecone rejects very large
	// request bodies.
	UpsertBatchSize int
}

type vectorStore struct {
	log       *logger.Logger
	pc        Client
	indexName string
	indexHost string
	nsPrefix  string
	batchSize int
}

func NewVectorStore(log *logger.Logger, pc Client, cfg StoreConfig) (VectorStore, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if pc == nil {
		return nil, fmt.Errorf("pinecone client required")
	}
	indexName := strings.TrimSpace(cfg.IndexName)
	if indexName == "" {
		return nil, fmt.Errorf("missing Pinecone index name")
	}
	host := strings.TrimSpace(cfg.IndexHost)
	nsPrefix := strings.TrimSpace(cfg.NSPrefix)
	if nsPrefix == "" {
		nsPrefix = "as"
	}
	batch := cfg.UpsertBatchSize
	if batch <= 0 {
		batch = 100
	}

	// If host missing, bootstrap via describe_index (fine for local/dev; avoid in prod).
	if host == "" {
		desc, err := pc.DescribeIndex(context.Background(), indexName)
		if err != nil {
			return nil, fmt.Errorf("pinecone describe_index failed: %w", err)
		}
		host = strings.TrimSpace(desc.Host)
		if host == "" {
			return nil, fmt.Errorf("pinecone describe_index returned empty host")
		}
		log.Warn("Pinecone index host not configured; resolved via describe_index (avoid this in production)",
			"index_name", indexName,
			"index_host", host,
		)
	}

	return &vectorStore{
		log:       log.With("service", "PineconeVectorStore"),
		pc:        pc,
		indexName: indexName,
		indexHost: host,
		nsPrefix:  nsPrefix,
		batchSize: batch,
	}, nil
}

func (s *vectorStore) Namespace(userID, agentID uuid.UUID) string {
	return s.nsPrefix + ":" + userID.String() + ":" + agentID.String()
}

func (s *vectorStore) UpsertRecords(ctx context.Context, records []VectorRecord, userID, agentID uuid.UUID) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	if len(records) == 0 {
		return nil
	}
	ns := s.Namespace(userID, agentID)
	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := make([]Vector, 0, end-start)
		for _, rec := range records[start:end] {
			if strings.TrimSpace(rec.ID) == "" {
				continue
			}
			batch = append(batch, Vector{
				ID:       rec.ID,
				Values:   rec.Values,
				Metadata: rec.Metadata,
			})
		}
		if len(batch) == 0 {
			continue
		}
		if _, err := s.pc.UpsertVectors(ctx, s.indexHost, UpsertRequest{
			Namespace: ns,
			Vectors:   batch,
		}); err != nil {
			return fmt.Errorf("pinecone upsert (namespace=%s): %w", ns, err)
		}
	}
	return nil
}

func (s *vectorStore) DeleteAgentVectors(ctx context.Context, userID, agentID uuid.UUID) error {
	if s == nil || s.pc == nil {
		return fmt.Errorf("vector store unavailable")
	}
	ns := s.Namespace(userID, agentID)
	if err := s.pc.DeleteNamespace(ctx, s.indexHost, ns); err != nil {
		return fmt.Errorf("pinecone delete namespace %s: %w", ns, err)
	}
	return nil
}

func (s *vectorStore) AgentHasVectors(ctx context.Context, userID, agentID uuid.UUID) (bool, error) {
	n, err := s.GetAgentVectorCount(ctx, userID, agentID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *vectorStore) GetAgentVectorCount(ctx context.Context, userID, agentID uuid.UUID) (int64, error) {
	if s == nil || s.pc == nil {
		return 0, fmt.Errorf("vector store unavailable")
	}
	stats, err := s.pc.DescribeIndexStats(ctx, s.indexHost)
	if err != nil {
		return 0, err
	}
	if stats == nil || stats.Namespaces == nil {
		return 0, nil
	}
	return stats.Namespaces[s.Namespace(userID, agentID)].VectorCount, nil
}
