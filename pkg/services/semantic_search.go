package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/llm"
	"github.com/orbisforge/integrity-engine/pkg/metrics"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
	"github.com/orbisforge/integrity-engine/pkg/retry"
)

// SearchFilters narrows candidate logs before similarity ranking.
type SearchFilters struct {
	EntryType string
}

// SearchRequest describes one similarity query against the log store.
type SearchRequest struct {
	Query     string
	Limit     int
	Threshold float64
	Filters   SearchFilters
}

// SemanticSearchService ranks governance logs by semantic relevance to a
// query. It is consulted only to propose repair candidates, so callers treat
// failures as "no candidates".
type SemanticSearchService interface {
	SearchLogs(ctx context.Context, req SearchRequest) ([]models.ScoredLog, error)
}

type semanticSearchService struct {
	repo    repositories.GovernanceLogRepository
	client  llm.EmbeddingClient
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedVector // keyed by log id
}

type cachedVector struct {
	summaryHash [sha256.Size]byte
	vector      []float32
}

// NewSemanticSearchService creates a new SemanticSearchService. A nil client
// yields a service that always returns no results, which keeps suggestion
// generation best-effort when no embeddings endpoint is configured.
func NewSemanticSearchService(
	repo repositories.GovernanceLogRepository,
	client llm.EmbeddingClient,
	timeout time.Duration,
	logger *zap.Logger,
) SemanticSearchService {
	return &semanticSearchService{
		repo:    repo,
		client:  client,
		timeout: timeout,
		logger:  logger.Named("semantic-search"),
		cache:   make(map[string]cachedVector),
	}
}

var _ SemanticSearchService = (*semanticSearchService)(nil)

func (s *semanticSearchService) SearchLogs(ctx context.Context, req SearchRequest) ([]models.ScoredLog, error) {
	if s.client == nil {
		s.logger.Debug("No embeddings endpoint configured; returning no candidates")
		return nil, nil
	}
	if req.Query == "" {
		return nil, nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logs, err := s.repo.List(ctx, repositories.LogFilter{EntryType: req.Filters.EntryType})
	if err != nil {
		return nil, fmt.Errorf("list candidate logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	queryVec, err := retry.DoWithResult(ctx, nil, func() ([]float32, error) {
		return s.client.CreateEmbedding(ctx, req.Query)
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("ok").Inc()

	vectors, err := s.logVectors(ctx, logs)
	if err != nil {
		return nil, err
	}

	scored := make([]models.ScoredLog, 0, len(logs))
	for _, entry := range logs {
		vec, ok := vectors[entry.ID]
		if !ok {
			continue
		}
		score := cosineSimilarity(queryVec, vec)
		if score < req.Threshold {
			continue
		}
		scored = append(scored, models.ScoredLog{Log: entry, RelevanceScore: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RelevanceScore > scored[j].RelevanceScore
	})

	if req.Limit > 0 && len(scored) > req.Limit {
		scored = scored[:req.Limit]
	}

	return scored, nil
}

// logVectors returns an embedding per log, reusing cached vectors for logs
// whose summary has not changed since they were last embedded.
func (s *semanticSearchService) logVectors(ctx context.Context, logs []*models.GovernanceLog) (map[string][]float32, error) {
	out := make(map[string][]float32, len(logs))

	var missing []*models.GovernanceLog
	var inputs []string

	s.mu.Lock()
	for _, entry := range logs {
		hash := sha256.Sum256([]byte(entry.Summary))
		if cached, ok := s.cache[entry.ID]; ok && cached.summaryHash == hash {
			out[entry.ID] = cached.vector
			continue
		}
		missing = append(missing, entry)
		inputs = append(inputs, embeddingText(entry))
	}
	s.mu.Unlock()

	if len(missing) == 0 {
		return out, nil
	}

	vectors, err := retry.DoWithResult(ctx, nil, func() ([][]float32, error) {
		return s.client.CreateEmbeddings(ctx, inputs)
	})
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("embed %d logs: %w", len(missing), err)
	}
	metrics.EmbeddingRequestsTotal.WithLabelValues("ok").Inc()

	s.mu.Lock()
	for i, entry := range missing {
		s.cache[entry.ID] = cachedVector{
			summaryHash: sha256.Sum256([]byte(entry.Summary)),
			vector:      vectors[i],
		}
		out[entry.ID] = vectors[i]
	}
	s.mu.Unlock()

	return out, nil
}

// embeddingText is the text a log is embedded under. Falls back to id when a
// log has no summary so every log stays searchable.
func embeddingText(entry *models.GovernanceLog) string {
	if entry.Summary == "" {
		return entry.ID
	}
	return entry.Summary
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
