package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
)

// Cross-reference formats. Phases are OF-<n> with optional dot-segments;
// steps carry at least one dot-segment more than their parent phase.
var (
	phasePattern  = regexp.MustCompile(`^OF-\d+(\.\d+)*$`)
	stepPattern   = regexp.MustCompile(`^OF-\d+(\.\d+)+$`)
	anchorPattern = regexp.MustCompile(`^[A-Z][A-Z0-9-]+$`)

	// permissiveAnchorPattern accepts project-scoped anchors that are valid
	// even when absent from the documentation registry.
	permissiveAnchorPattern = regexp.MustCompile(`^OF-[A-Z0-9]+-[A-Z0-9-]+$`)
)

// RuleValidators inspects one cross-reference field per call and reports
// zero or more issues. Validators are independent and order-independent with
// respect to each other; only the governance-log link validator touches the
// store. Construct a fresh instance per scan so issue ids restart their
// sequence.
type RuleValidators struct {
	repo    repositories.GovernanceLogRepository
	anchors *AnchorRegistry
	logger  *zap.Logger
	seq     atomic.Uint64
	now     func() time.Time
}

// NewRuleValidators creates validators for one scan pass.
func NewRuleValidators(repo repositories.GovernanceLogRepository, anchors *AnchorRegistry, logger *zap.Logger) *RuleValidators {
	return &RuleValidators{
		repo:    repo,
		anchors: anchors,
		logger:  logger.Named("validators"),
		now:     time.Now,
	}
}

// issueID builds {category}-{qualifier}-{logID}-{timestamp} with a per-scan
// sequence suffix so ids stay unique within a single millisecond.
func (v *RuleValidators) issueID(issueType, qualifier, logID string) string {
	return fmt.Sprintf("%s-%s-%s-%d-%d", issueType, qualifier, logID, v.now().UnixMilli(), v.seq.Add(1))
}

// ValidatePhase checks related_phase format and whether the phase is
// orphaned (no other log references it).
func (v *RuleValidators) ValidatePhase(ctx context.Context, entry *models.GovernanceLog) []models.Issue {
	phase := entry.RelatedPhase
	if phase == "" {
		return nil
	}

	if !phasePattern.MatchString(phase) {
		return []models.Issue{{
			ID:           v.issueID(models.IssueTypePhase, "format", entry.ID),
			LogID:        entry.ID,
			IssueType:    models.IssueTypePhase,
			Field:        models.FieldRelatedPhase,
			CurrentValue: phase,
			Severity:     models.SeverityWarning,
			Description:  fmt.Sprintf("Phase %q does not match the OF-<n>(.<n>)* format", phase),
		}}
	}

	// Orphan heuristic: a well-formed phase that no other log references is
	// likely stale or mistyped.
	count, err := v.repo.CountByPhase(ctx, phase, entry.ID)
	if err != nil {
		v.logger.Warn("Skipping orphaned-phase check",
			zap.String("log_id", entry.ID),
			zap.String("phase", phase),
			zap.Error(err))
		return nil
	}
	if count == 0 {
		return []models.Issue{{
			ID:           v.issueID(models.IssueTypePhase, "orphan", entry.ID),
			LogID:        entry.ID,
			IssueType:    models.IssueTypePhase,
			Field:        models.FieldRelatedPhase,
			CurrentValue: phase,
			Severity:     models.SeverityWarning,
			Description:  fmt.Sprintf("Phase %q has no other associated log activity (orphaned phase)", phase),
		}}
	}

	return nil
}

// ValidateStep checks related_step format and, when the entry also declares
// a phase, that the step actually belongs to it.
func (v *RuleValidators) ValidateStep(ctx context.Context, entry *models.GovernanceLog) []models.Issue {
	step := entry.RelatedStep
	if step == "" {
		return nil
	}

	if !stepPattern.MatchString(step) {
		return []models.Issue{{
			ID:           v.issueID(models.IssueTypeStep, "format", entry.ID),
			LogID:        entry.ID,
			IssueType:    models.IssueTypeStep,
			Field:        models.FieldRelatedStep,
			CurrentValue: step,
			Severity:     models.SeverityWarning,
			Description:  fmt.Sprintf("Step %q does not match the OF-<n>.<n>(.<n>)* format", step),
		}}
	}

	// Parent/child consistency: the step's first two dot-segments name its
	// phase. A disagreement is a data-consistency violation, not formatting.
	if entry.RelatedPhase != "" {
		expected := stepParentPhase(step)
		if expected != "" && expected != entry.RelatedPhase {
			return []models.Issue{{
				ID:           v.issueID(models.IssueTypeStep, "mismatch", entry.ID),
				LogID:        entry.ID,
				IssueType:    models.IssueTypeStep,
				Field:        models.FieldRelatedStep,
				CurrentValue: step,
				Severity:     models.SeverityCritical,
				Description:  fmt.Sprintf("Step %q does not belong to declared phase %q (expected parent phase %q)", step, entry.RelatedPhase, expected),
			}}
		}
	}

	return nil
}

// stepParentPhase derives the parent phase from a step id by keeping the
// first two dot-segments: "OF-9.5.3" -> "OF-9.5".
func stepParentPhase(step string) string {
	parts := strings.Split(step, ".")
	if len(parts) < 2 {
		return ""
	}
	return parts[0] + "." + parts[1]
}

// ValidateAnchor checks linked_anchor (and memory_anchor_id, which follows
// the same rules) for format and registry membership.
func (v *RuleValidators) ValidateAnchor(ctx context.Context, entry *models.GovernanceLog) []models.Issue {
	var issues []models.Issue
	issues = append(issues, v.checkAnchorValue(entry, models.FieldLinkedAnchor, entry.LinkedAnchor)...)
	issues = append(issues, v.checkAnchorValue(entry, models.FieldMemoryAnchorID, entry.MemoryAnchorID)...)
	return issues
}

func (v *RuleValidators) checkAnchorValue(entry *models.GovernanceLog, field, anchor string) []models.Issue {
	if anchor == "" {
		return nil
	}

	if !anchorPattern.MatchString(anchor) {
		// Cosmetic: the anchor is malformed but nothing dangles.
		return []models.Issue{{
			ID:           v.issueID(models.IssueTypeAnchor, "format", entry.ID),
			LogID:        entry.ID,
			IssueType:    models.IssueTypeAnchor,
			Field:        field,
			CurrentValue: anchor,
			Severity:     models.SeverityInfo,
			Description:  fmt.Sprintf("Anchor %q has invalid format (expected uppercase letters, digits and hyphens)", anchor),
		}}
	}

	if !v.anchors.Known(anchor) && !permissiveAnchorPattern.MatchString(anchor) {
		return []models.Issue{{
			ID:           v.issueID(models.IssueTypeAnchor, "unknown", entry.ID),
			LogID:        entry.ID,
			IssueType:    models.IssueTypeAnchor,
			Field:        field,
			CurrentValue: anchor,
			Severity:     models.SeverityWarning,
			Description:  fmt.Sprintf("Anchor %q not found in documentation", anchor),
		}}
	}

	return nil
}

// ValidateLinks verifies every outgoing log link in order: the target must
// exist, and a target that links straight back is flagged as circular. Each
// direction of a circular pair is reported independently.
func (v *RuleValidators) ValidateLinks(ctx context.Context, entry *models.GovernanceLog) []models.Issue {
	var issues []models.Issue

	for _, link := range entry.Links {
		target, err := v.repo.Get(ctx, link.TargetID)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				issues = append(issues, models.Issue{
					ID:           v.issueID(models.IssueTypeGovernanceLog, "missing", entry.ID),
					LogID:        entry.ID,
					IssueType:    models.IssueTypeGovernanceLog,
					Field:        models.FieldLinks,
					CurrentValue: link.TargetID,
					Severity:     models.SeverityCritical,
					Description:  fmt.Sprintf("Linked governance log %q not found", link.TargetID),
				})
				continue
			}

			issues = append(issues, models.Issue{
				ID:           v.issueID(models.IssueTypeGovernanceLog, "error", entry.ID),
				LogID:        entry.ID,
				IssueType:    models.IssueTypeGovernanceLog,
				Field:        models.FieldLinks,
				CurrentValue: link.TargetID,
				Severity:     models.SeverityCritical,
				Description:  fmt.Sprintf("Failed to verify linked governance log %q: %v", link.TargetID, err),
			})
			continue
		}

		if target.LinksTo(entry.ID) {
			issues = append(issues, models.Issue{
				ID:           v.issueID(models.IssueTypeGovernanceLog, "circular", entry.ID),
				LogID:        entry.ID,
				IssueType:    models.IssueTypeGovernanceLog,
				Field:        models.FieldLinks,
				CurrentValue: link.TargetID,
				Severity:     models.SeverityWarning,
				Description:  fmt.Sprintf("Circular reference between %q and %q", entry.ID, link.TargetID),
			})
		}
	}

	return issues
}
