package entity

import "github.com/joseph-ayodele/packet-underwriter/constants"

// ReconciliationEntry is the verdict for one reference field.
// Status is not_found exactly when Found is empty.
type ReconciliationEntry struct {
	Field         string                    `json:"field"`
	Kind          constants.FieldKind       `json:"kind"`
	Expected      string                    `json:"expected"`
	Found         string                    `json:"found,omitempty"`
	Status        constants.ReconcileStatus `json:"status"`
	MatchStrategy constants.MatchStrategy   `json:"match_strategy,omitempty"`
	Confidence    float64                   `json:"confidence"`
	Ambiguous     bool                      `json:"ambiguous,omitempty"`
	Components    []string                  `json:"components,omitempty"`
	SourceIDs     []string                  `json:"source_document_ids,omitempty"`
}

// Reconciliation is the output of the reconcile stage.
type Reconciliation struct {
	Entries []ReconciliationEntry `json:"entries"`
	// Unreferenced lists reference names whose expected value was absent.
	Unreferenced []string `json:"unreferenced,omitempty"`
	// Partial is set when an extraction it read from was degraded or absent.
	Partial bool     `json:"partial,omitempty"`
	Notes   []string `json:"notes,omitempty"`
}

// Entry finds the entry for a field name.
func (r Reconciliation) Entry(field string) (ReconciliationEntry, bool) {
	for _, e := range r.Entries {
		if e.Field == field {
			return e, true
		}
	}
	return ReconciliationEntry{}, false
}
