package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/orbisforge/integrity-engine/pkg/config"
	"github.com/orbisforge/integrity-engine/pkg/models"
	"github.com/orbisforge/integrity-engine/pkg/repositories"
)

// SuggestionGenerator produces ranked repair candidates for an issue using
// pattern heuristics and the semantic similarity provider. Generation is
// best-effort: provider failures are logged and yield fewer suggestions,
// never a scan failure.
type SuggestionGenerator struct {
	search  SemanticSearchService
	repo    repositories.GovernanceLogRepository
	anchors *AnchorRegistry
	cfg     config.IntegrityConfig
	logger  *zap.Logger
}

// NewSuggestionGenerator creates a new SuggestionGenerator.
func NewSuggestionGenerator(
	search SemanticSearchService,
	repo repositories.GovernanceLogRepository,
	anchors *AnchorRegistry,
	cfg config.IntegrityConfig,
	logger *zap.Logger,
) *SuggestionGenerator {
	return &SuggestionGenerator{
		search:  search,
		repo:    repo,
		anchors: anchors,
		cfg:     cfg,
		logger:  logger.Named("suggestions"),
	}
}

// Generate returns up to MaxSuggestions candidates for the issue, sorted
// descending by confidence.
func (g *SuggestionGenerator) Generate(ctx context.Context, issue *models.Issue) []models.RepairSuggestion {
	var suggestions []models.RepairSuggestion

	switch issue.IssueType {
	case models.IssueTypePhase:
		suggestions = g.phaseSuggestions(ctx, issue)
	case models.IssueTypeStep:
		suggestions = g.stepSuggestions(ctx, issue)
	case models.IssueTypeAnchor:
		suggestions = g.anchorSuggestions(issue)
	case models.IssueTypeGovernanceLog:
		suggestions = g.logSuggestions(ctx, issue)
	}

	suggestions = dedupeByValue(suggestions)

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].Confidence > suggestions[j].Confidence
	})

	if len(suggestions) > g.cfg.MaxSuggestions {
		suggestions = suggestions[:g.cfg.MaxSuggestions]
	}

	return suggestions
}

func (g *SuggestionGenerator) phaseSuggestions(ctx context.Context, issue *models.Issue) []models.RepairSuggestion {
	var suggestions []models.RepairSuggestion

	results, err := g.search.SearchLogs(ctx, SearchRequest{
		Query:     "phase " + issue.CurrentValue,
		Limit:     g.cfg.SearchLimit,
		Threshold: g.cfg.PhaseSearchThreshold,
	})
	if err != nil {
		g.logger.Warn("Phase suggestion search failed",
			zap.String("issue_id", issue.ID),
			zap.Error(err))
	}
	for _, r := range results {
		if r.Log.RelatedPhase == "" || r.Log.RelatedPhase == issue.CurrentValue {
			continue
		}
		suggestions = append(suggestions, models.RepairSuggestion{
			Value:      r.Log.RelatedPhase,
			Confidence: r.RelevanceScore,
			Reasoning:  fmt.Sprintf("Semantically similar log %q references phase %q", r.Log.ID, r.Log.RelatedPhase),
			Source:     models.SourceSemanticMatch,
		})
	}

	if upper := strings.ToUpper(issue.CurrentValue); upper != issue.CurrentValue {
		suggestions = append(suggestions, models.RepairSuggestion{
			Value:      upper,
			Confidence: g.cfg.CaseFixConfidence,
			Reasoning:  "Phase ids are uppercase; this is the uppercase form of the current value",
			Source:     models.SourcePatternMatch,
		})
	}

	return suggestions
}

func (g *SuggestionGenerator) stepSuggestions(ctx context.Context, issue *models.Issue) []models.RepairSuggestion {
	entry, err := g.repo.Get(ctx, issue.LogID)
	if err != nil {
		g.logger.Warn("Step suggestion lookup failed",
			zap.String("issue_id", issue.ID),
			zap.String("log_id", issue.LogID),
			zap.Error(err))
		return nil
	}

	if !phasePattern.MatchString(entry.RelatedPhase) {
		return nil
	}

	results, err := g.search.SearchLogs(ctx, SearchRequest{
		Query:     entry.Summary,
		Limit:     g.cfg.SearchLimit,
		Threshold: g.cfg.StepSearchThreshold,
		Filters:   SearchFilters{EntryType: entry.EntryType},
	})
	if err != nil {
		g.logger.Warn("Step suggestion search failed",
			zap.String("issue_id", issue.ID),
			zap.Error(err))
		return nil
	}

	var suggestions []models.RepairSuggestion
	for _, r := range results {
		if r.Log.RelatedStep == "" || r.Log.RelatedStep == issue.CurrentValue {
			continue
		}
		// Only steps that actually live under the declared phase qualify.
		if !strings.HasPrefix(r.Log.RelatedStep, entry.RelatedPhase) {
			continue
		}
		suggestions = append(suggestions, models.RepairSuggestion{
			Value:      r.Log.RelatedStep,
			Confidence: r.RelevanceScore,
			Reasoning:  fmt.Sprintf("Similar %q log %q tracks step %q under phase %q", r.Log.EntryType, r.Log.ID, r.Log.RelatedStep, entry.RelatedPhase),
			Source:     models.SourceSemanticMatch,
		})
	}

	return suggestions
}

func (g *SuggestionGenerator) anchorSuggestions(issue *models.Issue) []models.RepairSuggestion {
	var suggestions []models.RepairSuggestion

	if normalized := normalizeAnchor(issue.CurrentValue); normalized != issue.CurrentValue {
		suggestions = append(suggestions, models.RepairSuggestion{
			Value:      normalized,
			Confidence: g.cfg.AnchorNormalizeConfidence,
			Reasoning:  "Normalized to the uppercase hyphenated anchor format",
			Source:     models.SourcePatternMatch,
		})
	}

	current := strings.ToUpper(issue.CurrentValue)
	for _, anchor := range g.anchors.Anchors() {
		upper := strings.ToUpper(anchor)
		if strings.Contains(upper, current) || strings.Contains(current, upper) {
			suggestions = append(suggestions, models.RepairSuggestion{
				Value:      anchor,
				Confidence: g.cfg.AnchorSubstringConfidence,
				Reasoning:  fmt.Sprintf("Known anchor %q overlaps the current value", anchor),
				Source:     models.SourcePatternMatch,
			})
		}
	}

	return suggestions
}

func (g *SuggestionGenerator) logSuggestions(ctx context.Context, issue *models.Issue) []models.RepairSuggestion {
	results, err := g.search.SearchLogs(ctx, SearchRequest{
		Query:     issue.CurrentValue,
		Limit:     g.cfg.SearchLimit,
		Threshold: g.cfg.LogSearchThreshold,
	})
	if err != nil {
		g.logger.Warn("Governance log suggestion search failed",
			zap.String("issue_id", issue.ID),
			zap.Error(err))
		return nil
	}

	var suggestions []models.RepairSuggestion
	for _, r := range results {
		if r.Log.ID == issue.LogID {
			continue
		}
		suggestions = append(suggestions, models.RepairSuggestion{
			Value:      r.Log.ID,
			Confidence: r.RelevanceScore,
			Reasoning:  fmt.Sprintf("Log %q is semantically close to the dangling reference", r.Log.ID),
			Source:     models.SourceSemanticMatch,
		})
	}

	return suggestions
}

// normalizeAnchor uppercases and replaces every character outside [A-Z0-9-]
// with a hyphen.
func normalizeAnchor(value string) string {
	upper := strings.ToUpper(value)
	var b strings.Builder
	b.Grow(len(upper))
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}

// dedupeByValue keeps the highest-confidence suggestion per candidate value.
func dedupeByValue(suggestions []models.RepairSuggestion) []models.RepairSuggestion {
	best := make(map[string]int, len(suggestions))
	out := suggestions[:0]
	for _, s := range suggestions {
		if i, ok := best[s.Value]; ok {
			if s.Confidence > out[i].Confidence {
				out[i] = s
			}
			continue
		}
		best[s.Value] = len(out)
		out = append(out, s)
	}
	return out
}
