package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/database"
	"github.com/orbisforge/integrity-engine/pkg/models"
)

// LogFilter narrows List results. Zero values mean "no constraint".
type LogFilter struct {
	EntryType string
	Phase     string
	Limit     int
}

// GovernanceLogRepository provides data access for the governance log store.
// The integrity engine treats the store as append-only: entries are created
// and patched (cross-reference fields only), never deleted.
type GovernanceLogRepository interface {
	// List returns governance logs matching the filter, oldest first.
	List(ctx context.Context, filter LogFilter) ([]*models.GovernanceLog, error)

	// Get returns one governance log by id, or apperrors.ErrNotFound.
	Get(ctx context.Context, id string) (*models.GovernanceLog, error)

	// UpdateFields patches the given cross-reference columns and returns the
	// updated log. Only repairable fields are accepted.
	UpdateFields(ctx context.Context, id string, fields map[string]string) (*models.GovernanceLog, error)

	// Create inserts a new governance log entry.
	Create(ctx context.Context, entry *models.GovernanceLog) (*models.GovernanceLog, error)

	// CountByPhase returns how many logs other than excludeID reference the
	// given phase. Used by the orphaned-phase heuristic.
	CountByPhase(ctx context.Context, phase string, excludeID string) (int, error)
}

// Columns the repair path is allowed to patch.
var updatableColumns = map[string]bool{
	models.FieldRelatedPhase:   true,
	models.FieldRelatedStep:    true,
	models.FieldLinkedAnchor:   true,
	models.FieldMemoryAnchorID: true,
}

type governanceLogRepository struct {
	db *database.DB
}

// NewGovernanceLogRepository creates a new GovernanceLogRepository.
func NewGovernanceLogRepository(db *database.DB) GovernanceLogRepository {
	return &governanceLogRepository{db: db}
}

var _ GovernanceLogRepository = (*governanceLogRepository)(nil)

const logColumns = `id, summary, entry_type, classification, related_phase, related_step, linked_anchor, memory_anchor_id, links, created_at, updated_at`

func (r *governanceLogRepository) List(ctx context.Context, filter LogFilter) ([]*models.GovernanceLog, error) {
	query := `SELECT ` + logColumns + ` FROM governance_logs`
	var conds []string
	var args []any

	if filter.EntryType != "" {
		args = append(args, filter.EntryType)
		conds = append(conds, fmt.Sprintf("entry_type = $%d", len(args)))
	}
	if filter.Phase != "" {
		args = append(args, filter.Phase)
		conds = append(conds, fmt.Sprintf("related_phase = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query governance logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.GovernanceLog
	for rows.Next() {
		entry, err := scanGovernanceLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating governance logs: %w", err)
	}

	return logs, nil
}

func (r *governanceLogRepository) Get(ctx context.Context, id string) (*models.GovernanceLog, error) {
	query := `SELECT ` + logColumns + ` FROM governance_logs WHERE id = $1`

	entry, err := scanGovernanceLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *governanceLogRepository) UpdateFields(ctx context.Context, id string, fields map[string]string) (*models.GovernanceLog, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+1)
	for column, value := range fields {
		if !updatableColumns[column] {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedField, column)
		}
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := fmt.Sprintf(
		`UPDATE governance_logs SET %s WHERE id = $%d RETURNING `+logColumns,
		strings.Join(sets, ", "), len(args),
	)

	entry, err := scanGovernanceLog(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to update governance log %q: %w", id, err)
	}
	return entry, nil
}

func (r *governanceLogRepository) Create(ctx context.Context, entry *models.GovernanceLog) (*models.GovernanceLog, error) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt

	linksJSON, err := json.Marshal(entry.Links)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal links: %w", err)
	}
	if entry.Links == nil {
		linksJSON = []byte("[]")
	}

	query := `
		INSERT INTO governance_logs (
			id, summary, entry_type, classification, related_phase, related_step,
			linked_anchor, memory_anchor_id, links, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.Summary,
		entry.EntryType,
		entry.Classification,
		entry.RelatedPhase,
		entry.RelatedStep,
		entry.LinkedAnchor,
		entry.MemoryAnchorID,
		linksJSON,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create governance log: %w", err)
	}

	return entry, nil
}

func (r *governanceLogRepository) CountByPhase(ctx context.Context, phase string, excludeID string) (int, error) {
	query := `SELECT COUNT(*) FROM governance_logs WHERE related_phase = $1 AND id <> $2`

	var count int
	if err := r.db.QueryRow(ctx, query, phase, excludeID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count logs for phase %q: %w", phase, err)
	}
	return count, nil
}

func scanGovernanceLog(row pgx.Row) (*models.GovernanceLog, error) {
	var entry models.GovernanceLog
	var linksJSON []byte

	err := row.Scan(
		&entry.ID,
		&entry.Summary,
		&entry.EntryType,
		&entry.Classification,
		&entry.RelatedPhase,
		&entry.RelatedStep,
		&entry.LinkedAnchor,
		&entry.MemoryAnchorID,
		&linksJSON,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan governance log: %w", err)
	}

	if len(linksJSON) > 0 && string(linksJSON) != "null" {
		if err := json.Unmarshal(linksJSON, &entry.Links); err != nil {
			return nil, fmt.Errorf("failed to unmarshal links: %w", err)
		}
	}

	return &entry, nil
}
