package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
)

// mockLogRepo is an in-memory GovernanceLogRepository that records mutating
// calls so tests can assert the store was (or was not) touched.
type mockLogRepo struct {
	logs  map[string]*models.GovernanceLog
	order []string

	listErr   error
	getErr    error
	updateErr error
	createErr error
	countErr  error

	updateCalls []updateCall
	createCalls []*models.GovernanceLog
}

type updateCall struct {
	id     string
	fields map[string]string
}

func newMockLogRepo(logs ...*models.GovernanceLog) *mockLogRepo {
	m := &mockLogRepo{logs: make(map[string]*models.GovernanceLog)}
	for _, l := range logs {
		m.add(l)
	}
	return m
}

func (m *mockLogRepo) add(l *models.GovernanceLog) {
	m.logs[l.ID] = l
	m.order = append(m.order, l.ID)
}

func (m *mockLogRepo) List(ctx context.Context, filter repositories.LogFilter) ([]*models.GovernanceLog, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*models.GovernanceLog
	for _, id := range m.order {
		l := m.logs[id]
		if filter.EntryType != "" && l.EntryType != filter.EntryType {
			continue
		}
		if filter.Phase != "" && l.RelatedPhase != filter.Phase {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *mockLogRepo) Get(ctx context.Context, id string) (*models.GovernanceLog, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	l, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return l, nil
}

func (m *mockLogRepo) UpdateFields(ctx context.Context, id string, fields map[string]string) (*models.GovernanceLog, error) {
	m.updateCalls = append(m.updateCalls, updateCall{id: id, fields: fields})
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	l, ok := m.logs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	for field, value := range fields {
		switch field {
		case models.FieldRelatedPhase:
			l.RelatedPhase = value
		case models.FieldRelatedStep:
			l.RelatedStep = value
		case models.FieldLinkedAnchor:
			l.LinkedAnchor = value
		case models.FieldMemoryAnchorID:
			l.MemoryAnchorID = value
		default:
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedField, field)
		}
	}
	return l, nil
}

func (m *mockLogRepo) Create(ctx context.Context, entry *models.GovernanceLog) (*models.GovernanceLog, error) {
	m.createCalls = append(m.createCalls, entry)
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.add(entry)
	return entry, nil
}

func (m *mockLogRepo) CountByPhase(ctx context.Context, phase string, excludeID string) (int, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	count := 0
	for _, l := range m.logs {
		if l.ID != excludeID && l.RelatedPhase == phase {
			count++
		}
	}
	return count, nil
}

var _ repositories.GovernanceLogRepository = (*mockLogRepo)(nil)

// mockSearch is a configurable SemanticSearchService that records requests.
type mockSearch struct {
	results  map[string][]models.ScoredLog // keyed by query
	err      error
	requests []SearchRequest
}

func (m *mockSearch) SearchLogs(ctx context.Context, req SearchRequest) ([]models.ScoredLog, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.results[req.Query], nil
}

var _ SemanticSearchService = (*mockSearch)(nil)

// testAnchorRegistry writes a temporary anchors file and loads it.
func testAnchorRegistry(t *testing.T, anchors ...string) *AnchorRegistry {
	t.Helper()

	path := filepath.Join(t.TempDir(), "anchors.yaml")
	content := "anchors:\n"
	for _, a := range anchors {
		content += "  - " + a + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write anchors file: %v", err)
	}

	registry, err := NewAnchorRegistry(path, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to load anchor registry: %v", err)
	}
	return registry
}
