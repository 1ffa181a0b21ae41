package models

import "time"

// GovernanceLog represents one entry in the append-only governance log store.
// Entries are created by the store's write path and never deleted; the
// integrity engine only patches the four cross-reference fields.
type GovernanceLog struct {
	ID             string    `json:"id"`
	Summary        string    `json:"summary"`
	EntryType      string    `json:"entry_type,omitempty"`
	Classification string    `json:"classification,omitempty"`
	RelatedPhase   string    `json:"related_phase,omitempty"`
	RelatedStep    string    `json:"related_step,omitempty"`
	LinkedAnchor   string    `json:"linked_anchor,omitempty"`
	MemoryAnchorID string    `json:"memory_anchor_id,omitempty"`
	Links          []LogLink `json:"links,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LogLink is a reference from one governance log to another by id.
type LogLink struct {
	TargetID string `json:"target_id"`
}

// LinksTo reports whether the log carries a link to the given id.
func (g *GovernanceLog) LinksTo(id string) bool {
	for _, l := range g.Links {
		if l.TargetID == id {
			return true
		}
	}
	return false
}

// Entry types written by the integrity engine itself.
const (
	EntryTypeRepair = "repair"
)

// Classification values used by engine-authored entries.
const (
	ClassificationAudit = "audit"
)

// RepairAuditAnchor tags audit entries written after a successful repair.
const RepairAuditAnchor = "OF-GOVLOG-LINK-INTEGRITY"
