package models

import "time"

// IssueType categorizes what kind of cross-reference failed validation.
const (
	IssueTypePhase         = "phase"
	IssueTypeStep          = "step"
	IssueTypeAnchor        = "anchor"
	IssueTypeGovernanceLog = "governance_log"
	IssueTypeFile          = "file"
)

// Issue fields. Each validator inspects exactly one of these on a log entry.
const (
	FieldRelatedPhase   = "related_phase"
	FieldRelatedStep    = "related_step"
	FieldLinkedAnchor   = "linked_anchor"
	FieldLinks          = "links"
	FieldMemoryAnchorID = "memory_anchor_id"
)

// Issue severities. Critical is reserved for referential-integrity
// violations, warning for plausible-but-unconfirmed problems, info for
// cosmetic formatting. Severities are fixed per check, not configurable.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Suggestion sources.
const (
	SourceExactMatch    = "exact_match"
	SourceSemanticMatch = "semantic_match"
	SourcePatternMatch  = "pattern_match"
	SourceManual        = "manual"
)

// Issue is a single finding produced by one scan pass. Issues exist only
// within the report that produced them; they are referenced by id when a
// caller requests a repair against that report.
type Issue struct {
	ID           string             `json:"id"`
	LogID        string             `json:"log_id"`
	IssueType    string             `json:"issue_type"`
	Field        string             `json:"field"`
	CurrentValue string             `json:"current_value"`
	Severity     string             `json:"severity"`
	Description  string             `json:"description"`
	Suggestions  []RepairSuggestion `json:"suggestions"`
}

// RepairSuggestion is a candidate replacement value for an invalid
// cross-reference, ranked by confidence in [0,1].
type RepairSuggestion struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Source     string  `json:"source"`
}

// IntegrityReport is the aggregate result of one scan. The engine keeps at
// most the latest report in memory as context for repair requests.
type IntegrityReport struct {
	ReportID       string    `json:"report_id"`
	TotalIssues    int       `json:"total_issues"`
	CriticalIssues int       `json:"critical_issues"`
	WarningIssues  int       `json:"warning_issues"`
	InfoIssues     int       `json:"info_issues"`
	Issues         []Issue   `json:"issues"`
	ScanDuration   int64     `json:"scan_duration_ms"`
	ScannedLogs    int       `json:"scanned_logs"`
	LastScan       time.Time `json:"last_scan"`
}

// FindIssue returns the issue with the given id, or nil.
func (r *IntegrityReport) FindIssue(issueID string) *Issue {
	for i := range r.Issues {
		if r.Issues[i].ID == issueID {
			return &r.Issues[i]
		}
	}
	return nil
}

// Tally recomputes the severity counters from the issue list.
func (r *IntegrityReport) Tally() {
	r.TotalIssues = len(r.Issues)
	r.CriticalIssues = 0
	r.WarningIssues = 0
	r.InfoIssues = 0
	for i := range r.Issues {
		switch r.Issues[i].Severity {
		case SeverityCritical:
			r.CriticalIssues++
		case SeverityWarning:
			r.WarningIssues++
		case SeverityInfo:
			r.InfoIssues++
		}
	}
}

// RepairRequest is the payload for a repair attempt against the current
// report. ReportID is optional; when set it must match the current report.
type RepairRequest struct {
	IssueID      string `json:"issue_id"`
	NewValue     string `json:"new_value"`
	RepairSource string `json:"repair_source"`
	UserReason   string `json:"user_reason,omitempty"`
	ReportID     string `json:"report_id,omitempty"`
}

// RepairResult is the outcome of one repair attempt. Failures that callers
// can act on (stale issue, missing log, unsupported field) are reported here
// rather than as errors so the UI can render them inline.
type RepairResult struct {
	Success      bool      `json:"success"`
	IssueID      string    `json:"issue_id"`
	OldValue     string    `json:"old_value,omitempty"`
	NewValue     string    `json:"new_value,omitempty"`
	UpdatedLogID string    `json:"updated_log_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message"`
}

// ScoredLog pairs a governance log with its semantic relevance to a query.
type ScoredLog struct {
	Log            *GovernanceLog `json:"log"`
	RelevanceScore float64        `json:"relevance_score"`
}

// LogIntegrity summarizes the last report's findings for a single log.
// Severity is the worst severity among that log's issues, or "ok".
type LogIntegrity struct {
	LogID      string `json:"log_id"`
	IssueCount int    `json:"issue_count"`
	Severity   string `json:"severity"`
}
