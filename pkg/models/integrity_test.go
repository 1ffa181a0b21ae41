package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportTally(t *testing.T) {
	report := &IntegrityReport{Issues: []Issue{
		{ID: "i1", Severity: SeverityCritical},
		{ID: "i2", Severity: SeverityCritical},
		{ID: "i3", Severity: SeverityWarning},
		{ID: "i4", Severity: SeverityInfo},
	}}

	report.Tally()

	assert.Equal(t, 4, report.TotalIssues)
	assert.Equal(t, 2, report.CriticalIssues)
	assert.Equal(t, 1, report.WarningIssues)
	assert.Equal(t, 1, report.InfoIssues)
}

func TestReportTally_RecomputesFromScratch(t *testing.T) {
	report := &IntegrityReport{
		TotalIssues:    99,
		CriticalIssues: 99,
		Issues:         []Issue{{ID: "i1", Severity: SeverityInfo}},
	}

	report.Tally()

	assert.Equal(t, 1, report.TotalIssues)
	assert.Zero(t, report.CriticalIssues)
	assert.Equal(t, 1, report.InfoIssues)
}

func TestFindIssue(t *testing.T) {
	report := &IntegrityReport{Issues: []Issue{
		{ID: "i1"},
		{ID: "i2"},
	}}

	found := report.FindIssue("i2")
	require.NotNil(t, found)
	assert.Equal(t, "i2", found.ID)

	// The pointer addresses the report's own slice so callers can attach
	// suggestions in place.
	found.CurrentValue = "patched"
	assert.Equal(t, "patched", report.Issues[1].CurrentValue)

	assert.Nil(t, report.FindIssue("absent"))
}

func TestLinksTo(t *testing.T) {
	entry := &GovernanceLog{Links: []LogLink{{TargetID: "L2"}, {TargetID: "L3"}}}

	assert.True(t, entry.LinksTo("L2"))
	assert.True(t, entry.LinksTo("L3"))
	assert.False(t, entry.LinksTo("L4"))

	var empty GovernanceLog
	assert.False(t, empty.LinksTo("L2"))
}
