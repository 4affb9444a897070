package entity

import (
	"time"

	"github.com/joseph-ayodele/packet-underwriter/constants"
)

// StageReport records how one stage ended.
type StageReport struct {
	ID       string                `json:"id"`
	Status   constants.StageStatus `json:"status"`
	Required bool                  `json:"required"`
	Attempts int                   `json:"attempts"`
	Retries  int                   `json:"retries"`
	Waits    []time.Duration       `json:"waits,omitempty"`
	Err      string                `json:"error,omitempty"`
	Notes    []string              `json:"notes,omitempty"`
	Duration time.Duration         `json:"duration"`
}

// Report is the payload returned for one case evaluation.
type Report struct {
	CaseID         string                `json:"case_id"`
	RunID          string                `json:"run_id"`
	Status         constants.RunStatus   `json:"status"`
	Stages         []StageReport         `json:"stages,omitempty"`
	Skipped        []SkippedAttachment   `json:"skipped_attachments,omitempty"`
	Extractions    []CategoryExtraction  `json:"extractions,omitempty"`
	Reconciliation *Reconciliation       `json:"reconciliation,omitempty"`
	AdverseMedia   *AdverseMedia         `json:"adverse_media,omitempty"`
	PaymentHistory *PaymentHistory       `json:"payment_history,omitempty"`
	Score          *CaseScore            `json:"score,omitempty"`
	CostEstimate   float64               `json:"cost_estimate"`
	Annotations    []string              `json:"annotations,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     time.Time             `json:"finished_at"`
}

// DegradedStages lists stages that did not complete cleanly.
func (r Report) DegradedStages() []StageReport {
	var out []StageReport
	for _, s := range r.Stages {
		if s.Status != constants.StageCompleted {
			out = append(out, s)
		}
	}
	return out
}
