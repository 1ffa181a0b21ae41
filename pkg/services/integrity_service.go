package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/apperrors"
	"github.com/orbisforge/integrity-engine/pkg/config"
	"github.com/orbisforge/integrity-engine/pkg/metrics"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
)

// Messages surfaced to callers as RepairResult failures. These are API
// contract, not incidental strings: the admin UI renders them inline.
const (
	msgIssueNotFound    = "Issue not found in last integrity report"
	msgLogNotFound      = "Governance log not found"
	msgStaleReport      = "Report is no longer current; rescan before repairing"
	msgUnsupportedField = "Field cannot be repaired through this path"
)

// Fields the repair path may patch. Multi-entry link repair is out of scope.
var repairableFields = map[string]bool{
	models.FieldRelatedPhase:   true,
	models.FieldRelatedStep:    true,
	models.FieldLinkedAnchor:   true,
	models.FieldMemoryAnchorID: true,
}

// IntegrityService scans the governance log store for broken cross-references
// and applies caller-chosen repairs against the most recent report.
type IntegrityService interface {
	// PerformScan runs a full scan and replaces the current report.
	PerformScan(ctx context.Context) (*models.IntegrityReport, error)

	// LastReport returns the most recent report, or nil before the first scan.
	LastReport() *models.IntegrityReport

	// ApplyRepair patches one cross-reference field named by an issue in the
	// current report. Caller-addressable failures (stale issue, missing log,
	// unsupported field) come back inside the RepairResult.
	ApplyRepair(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error)

	// LogIntegrity summarizes the current report's findings for one log.
	// Returns apperrors.ErrNoReport before the first scan.
	LogIntegrity(logID string) (*models.LogIntegrity, error)
}

type integrityService struct {
	repo        repositories.GovernanceLogRepository
	suggestions *SuggestionGenerator
	anchors     *AnchorRegistry
	cfg         config.IntegrityConfig
	logger      *zap.Logger

	scanMu sync.Mutex // serializes scans; concurrent scans racing on the report slot is undefined otherwise

	mu      sync.RWMutex
	current *models.IntegrityReport
}

// NewIntegrityService creates a new IntegrityService.
func NewIntegrityService(
	repo repositories.GovernanceLogRepository,
	suggestions *SuggestionGenerator,
	anchors *AnchorRegistry,
	cfg config.IntegrityConfig,
	logger *zap.Logger,
) IntegrityService {
	return &integrityService{
		repo:        repo,
		suggestions: suggestions,
		anchors:     anchors,
		cfg:         cfg,
		logger:      logger.Named("integrity-service"),
	}
}

var _ IntegrityService = (*integrityService)(nil)

func (s *integrityService) PerformScan(ctx context.Context) (*models.IntegrityReport, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	start := time.Now()

	// Single bulk page. Known scalability ceiling: the store is scanned in
	// full on every pass, which is fine at governance-log volumes (thousands)
	// and would need pagination beyond that.
	logs, err := s.repo.List(ctx, repositories.LogFilter{})
	if err != nil {
		metrics.ScansTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("integrity scan failed: %w", err)
	}

	validators := NewRuleValidators(s.repo, s.anchors, s.logger)

	report := &models.IntegrityReport{
		ReportID: uuid.NewString(),
	}

	// Fixed check order per log: phase, step, anchor, then each link in
	// order. Issue collection order is log-then-field-then-link and the
	// suggestion pass below preserves it.
	for _, entry := range logs {
		report.Issues = append(report.Issues, s.runValidator(entry, "phase", func() []models.Issue {
			return validators.ValidatePhase(ctx, entry)
		})...)
		report.Issues = append(report.Issues, s.runValidator(entry, "step", func() []models.Issue {
			return validators.ValidateStep(ctx, entry)
		})...)
		report.Issues = append(report.Issues, s.runValidator(entry, "anchor", func() []models.Issue {
			return validators.ValidateAnchor(ctx, entry)
		})...)
		report.Issues = append(report.Issues, s.runValidator(entry, "links", func() []models.Issue {
			return validators.ValidateLinks(ctx, entry)
		})...)
	}

	for i := range report.Issues {
		report.Issues[i].Suggestions = s.suggestions.Generate(ctx, &report.Issues[i])
	}

	report.Tally()
	report.ScannedLogs = len(logs)
	report.ScanDuration = time.Since(start).Milliseconds()
	report.LastScan = time.Now().UTC()

	metrics.ScansTotal.WithLabelValues("ok").Inc()
	metrics.ScanDurationSeconds.Observe(time.Since(start).Seconds())
	metrics.LogsScanned.Set(float64(report.ScannedLogs))
	metrics.IssuesFound.WithLabelValues(models.SeverityCritical).Set(float64(report.CriticalIssues))
	metrics.IssuesFound.WithLabelValues(models.SeverityWarning).Set(float64(report.WarningIssues))
	metrics.IssuesFound.WithLabelValues(models.SeverityInfo).Set(float64(report.InfoIssues))

	s.logger.Info("Integrity scan completed",
		zap.String("report_id", report.ReportID),
		zap.Int("scanned_logs", report.ScannedLogs),
		zap.Int("total_issues", report.TotalIssues),
		zap.Int("critical", report.CriticalIssues),
		zap.Int64("duration_ms", report.ScanDuration))

	s.mu.Lock()
	s.current = report
	s.mu.Unlock()

	return report, nil
}

// runValidator contains one check so a misbehaving validator cannot abort
// the whole scan; the offending log is skipped for that check only.
func (s *integrityService) runValidator(entry *models.GovernanceLog, check string, fn func() []models.Issue) (issues []models.Issue) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Validator panicked; skipping check for this log",
				zap.String("check", check),
				zap.String("log_id", entry.ID),
				zap.Any("panic", r))
			issues = nil
		}
	}()
	return fn()
}

func (s *integrityService) LastReport() *models.IntegrityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *integrityService) ApplyRepair(ctx context.Context, req models.RepairRequest) (*models.RepairResult, error) {
	now := time.Now().UTC()

	fail := func(message string) (*models.RepairResult, error) {
		metrics.RepairsTotal.WithLabelValues(metrics.RepairOutcomeRejected).Inc()
		return &models.RepairResult{
			Success:   false,
			IssueID:   req.IssueID,
			Timestamp: now,
			Message:   message,
		}, nil
	}

	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil {
		return fail(msgIssueNotFound)
	}
	if req.ReportID != "" && req.ReportID != current.ReportID {
		return fail(msgStaleReport)
	}

	issue := current.FindIssue(req.IssueID)
	if issue == nil {
		return fail(msgIssueNotFound)
	}

	if !repairableFields[issue.Field] {
		return fail(msgUnsupportedField)
	}

	entry, err := s.repo.Get(ctx, issue.LogID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fail(msgLogNotFound)
		}
		metrics.RepairsTotal.WithLabelValues(metrics.RepairOutcomeError).Inc()
		return nil, fmt.Errorf("fetch governance log %q: %w", issue.LogID, err)
	}

	oldValue := fieldValue(entry, issue.Field)

	updated, err := s.repo.UpdateFields(ctx, entry.ID, map[string]string{issue.Field: req.NewValue})
	if err != nil {
		metrics.RepairsTotal.WithLabelValues(metrics.RepairOutcomeError).Inc()
		return nil, fmt.Errorf("apply repair to log %q: %w", entry.ID, err)
	}

	// The primary mutation succeeded; an audit write failure is logged but
	// does not flip the result.
	if err := s.writeAuditEntry(ctx, req, issue, oldValue, now); err != nil {
		s.logger.Error("Failed to write repair audit entry",
			zap.String("issue_id", issue.ID),
			zap.String("log_id", entry.ID),
			zap.Error(err))
	}

	metrics.RepairsTotal.WithLabelValues(metrics.RepairOutcomeApplied).Inc()

	s.logger.Info("Applied link integrity repair",
		zap.String("issue_id", issue.ID),
		zap.String("log_id", updated.ID),
		zap.String("field", issue.Field),
		zap.String("old_value", oldValue),
		zap.String("new_value", req.NewValue))

	return &models.RepairResult{
		Success:      true,
		IssueID:      issue.ID,
		OldValue:     oldValue,
		NewValue:     req.NewValue,
		UpdatedLogID: updated.ID,
		Timestamp:    now,
		Message:      fmt.Sprintf("Repaired %s on governance log %q", issue.Field, updated.ID),
	}, nil
}

func (s *integrityService) writeAuditEntry(ctx context.Context, req models.RepairRequest, issue *models.Issue, oldValue string, now time.Time) error {
	source := req.RepairSource
	if source == "" {
		source = models.SourceManual
	}

	summary := fmt.Sprintf("Link integrity repair: %s on log %q changed from %q to %q (source: %s)",
		issue.Field, issue.LogID, oldValue, req.NewValue, source)
	if req.UserReason != "" {
		summary += ". Reason: " + req.UserReason
	}

	audit := &models.GovernanceLog{
		ID:             "repair-" + uuid.NewString(),
		Summary:        summary,
		EntryType:      models.EntryTypeRepair,
		Classification: models.ClassificationAudit,
		LinkedAnchor:   models.RepairAuditAnchor,
		Links:          []models.LogLink{{TargetID: issue.LogID}},
		CreatedAt:      now,
	}

	_, err := s.repo.Create(ctx, audit)
	return err
}

func (s *integrityService) LogIntegrity(logID string) (*models.LogIntegrity, error) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil {
		return nil, apperrors.ErrNoReport
	}

	result := &models.LogIntegrity{
		LogID:    logID,
		Severity: "ok",
	}
	for i := range current.Issues {
		if current.Issues[i].LogID != logID {
			continue
		}
		result.IssueCount++
		result.Severity = worseSeverity(result.Severity, current.Issues[i].Severity)
	}
	return result, nil
}

var severityRank = map[string]int{
	"ok":                    0,
	models.SeverityInfo:     1,
	models.SeverityWarning:  2,
	models.SeverityCritical: 3,
}

func worseSeverity(a, b string) string {
	if severityRank[b] > severityRank[a] {
		return b
	}
	return a
}

// fieldValue reads the repairable field named by an issue.
func fieldValue(entry *models.GovernanceLog, field string) string {
	switch field {
	case models.FieldRelatedPhase:
		return entry.RelatedPhase
	case models.FieldRelatedStep:
		return entry.RelatedStep
	case models.FieldLinkedAnchor:
		return entry.LinkedAnchor
	case models.FieldMemoryAnchorID:
		return entry.MemoryAnchorID
	default:
		return ""
	}
}
