package app

import "billing-engine/internal/core"

// HistoryResult is returned by History.
type HistoryResult struct {
	Target   core.LedgerTarget  `json:"target"`
	TargetID int64              `json:"target_id"`
	Entries  []core.LedgerEntry `json:"entries"`
}
