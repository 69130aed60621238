// Package snapshot captures immutable per-version views of a decision.
package snapshot

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/davidahmann/proofofchoice/pkg/types"
)

const (
	SummaryCreated        = "Decision created"
	SummaryOptionsUpdated = "Options updated"
	SummaryApproved       = "Decision approved"
	SummaryRevised        = "Reopened for revision"
)

// Capture snapshots d at its current version. An empty summary falls back to SummaryOptionsUpdated.
func Capture(id string, d types.Decision, actor types.Actor, summary string, at time.Time) types.VersionSnapshot {
	if strings.TrimSpace(summary) == "" {
		summary = SummaryOptionsUpdated
	}
	return types.VersionSnapshot{
		ID:             id,
		DecisionID:     d.ID,
		Version:        d.Version,
		CreatedAt:      at.UTC().Truncate(time.Microsecond),
		CreatedBy:      actor,
		ChangesSummary: summary,
		OptionCount:    len(d.Options),
		Status:         d.Status,
	}
}

// Listed is a snapshot as returned to readers.
type Listed struct {
	types.VersionSnapshot
	Current bool `json:"current"`
}

// List orders snapshots newest-first and flags the head version.
func List(snapshots []types.VersionSnapshot) []Listed {
	ordered := slices.Clone(snapshots)
	slices.SortFunc(ordered, func(a, b types.VersionSnapshot) int {
		return b.Version - a.Version
	})
	out := make([]Listed, len(ordered))
	for i, s := range ordered {
		out[i] = Listed{VersionSnapshot: s, Current: i == 0}
	}
	return out
}

// CheckContiguous reports the first missing or duplicated version, if any.
func CheckContiguous(snapshots []types.VersionSnapshot, head int) error {
	seen := make(map[int]bool, len(snapshots))
	for _, s := range snapshots {
		if seen[s.Version] {
			return fmt.Errorf("version %d captured twice", s.Version)
		}
		seen[s.Version] = true
	}
	for v := 1; v <= head; v++ {
		if !seen[v] {
			return fmt.Errorf("version %d has no snapshot", v)
		}
	}
	if len(seen) != head {
		return fmt.Errorf("snapshots beyond head version %d", head)
	}
	return nil
}
