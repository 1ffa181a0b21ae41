//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/testhelpers"
)

func newTestRepo(t *testing.T) GovernanceLogRepository {
	t.Helper()
	return NewGovernanceLogRepository(testhelpers.GetEngineDB(t).DB)
}

func createLog(t *testing.T, repo GovernanceLogRepository, entry *models.GovernanceLog) *models.GovernanceLog {
	t.Helper()

	if entry.ID == "" {
		entry.ID = "test-" + uuid.NewString()
	}
	created, err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	return created
}

func TestCreateAndGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	target := createLog(t, repo, &models.GovernanceLog{Summary: "target entry"})
	entry := createLog(t, repo, &models.GovernanceLog{
		Summary:        "links and references",
		EntryType:      "Decision",
		Classification: "routine",
		RelatedPhase:   "OF-9.5",
		RelatedStep:    "OF-9.5.3",
		LinkedAnchor:   "WT-ANCHOR-GOVERNANCE",
		MemoryAnchorID: "OF-GOVLOG-CORE",
		Links:          []models.LogLink{{TargetID: target.ID}},
	})

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)

	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "links and references", got.Summary)
	assert.Equal(t, "Decision", got.EntryType)
	assert.Equal(t, "OF-9.5", got.RelatedPhase)
	assert.Equal(t, "OF-9.5.3", got.RelatedStep)
	assert.Equal(t, "WT-ANCHOR-GOVERNANCE", got.LinkedAnchor)
	assert.Equal(t, "OF-GOVLOG-CORE", got.MemoryAnchorID)
	require.Len(t, got.Links, 1)
	assert.Equal(t, target.ID, got.Links[0].TargetID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), "absent-"+uuid.NewString())

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	phase := "OF-77." + uuid.NewString()[:4]
	first := createLog(t, repo, &models.GovernanceLog{
		EntryType:    "Decision",
		RelatedPhase: phase,
		CreatedAt:    time.Now().UTC().Add(-time.Hour),
	})
	second := createLog(t, repo, &models.GovernanceLog{
		EntryType:    "Deployment",
		RelatedPhase: phase,
	})

	byPhase, err := repo.List(ctx, LogFilter{Phase: phase})
	require.NoError(t, err)
	require.Len(t, byPhase, 2)
	// Oldest first.
	assert.Equal(t, first.ID, byPhase[0].ID)
	assert.Equal(t, second.ID, byPhase[1].ID)

	byType, err := repo.List(ctx, LogFilter{Phase: phase, EntryType: "Decision"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, first.ID, byType[0].ID)

	limited, err := repo.List(ctx, LogFilter{Phase: phase, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestUpdateFields(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	entry := createLog(t, repo, &models.GovernanceLog{RelatedPhase: "of-9.5"})

	updated, err := repo.UpdateFields(ctx, entry.ID, map[string]string{
		models.FieldRelatedPhase: "OF-9.5",
	})
	require.NoError(t, err)
	assert.Equal(t, "OF-9.5", updated.RelatedPhase)
	assert.True(t, updated.UpdatedAt.After(updated.CreatedAt) || updated.UpdatedAt.Equal(updated.CreatedAt))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, "OF-9.5", got.RelatedPhase)
}

func TestUpdateFields_RejectsUnknownColumn(t *testing.T) {
	repo := newTestRepo(t)

	entry := createLog(t, repo, &models.GovernanceLog{})

	_, err := repo.UpdateFields(context.Background(), entry.ID, map[string]string{
		"summary": "rewritten",
	})

	assert.ErrorIs(t, err, apperrors.ErrUnsupportedField)
}

func TestUpdateFields_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.UpdateFields(context.Background(), "absent-"+uuid.NewString(), map[string]string{
		models.FieldRelatedPhase: "OF-1",
	})

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCountByPhase(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	phase := "OF-88." + uuid.NewString()[:4]
	a := createLog(t, repo, &models.GovernanceLog{RelatedPhase: phase})
	createLog(t, repo, &models.GovernanceLog{RelatedPhase: phase})

	count, err := repo.CountByPhase(ctx, phase, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	orphaned, err := repo.CountByPhase(ctx, "OF-99."+uuid.NewString()[:4], a.ID)
	require.NoError(t, err)
	assert.Zero(t, orphaned)
}
