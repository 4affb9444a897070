package constants

// StageStatus is the lifecycle state of one pipeline stage.
type StageStatus string

const (
	StageNotStarted StageStatus = "not_started"
	StageRunning    StageStatus = "running"
	StageCompleted  StageStatus = "completed"
	StageDegraded   StageStatus = "degraded"
	StageFailed     StageStatus = "failed"
	StageCancelled  StageStatus = "cancelled"
	StageSkipped    StageStatus = "skipped"
)

// Terminal reports whether no further transition is possible.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageCompleted, StageDegraded, StageFailed, StageCancelled, StageSkipped:
		return true
	}
	return false
}

// RunStatus is the overall outcome of a case evaluation.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunDegraded  RunStatus = "degraded"
	RunFailed    RunStatus = "failed"
	RunNotFound  RunStatus = "not_found"
	RunCancelled RunStatus = "cancelled"
)

// BatchStatus is the outcome of one OCR batch call.
type BatchStatus string

const (
	BatchDone   BatchStatus = "done"
	BatchFailed BatchStatus = "failed"
)

// ReconcileStatus is the verdict for one reconciled field.
type ReconcileStatus string

const (
	Match    ReconcileStatus = "match"
	Mismatch ReconcileStatus = "mismatch"
	NotFound ReconcileStatus = "not_found"
)

// MatchStrategy names the rule that produced a match.
type MatchStrategy string

const (
	StrategyNone        MatchStrategy = ""
	StrategyExact       MatchStrategy = "exact"
	StrategyNormalized  MatchStrategy = "normalized"
	StrategyContainment MatchStrategy = "containment"
	StrategySplitSum    MatchStrategy = "split-sum"
)

// FieldKind is the typed shape of an extracted or reference value.
type FieldKind string

const (
	KindMoney FieldKind = "money"
	KindDate  FieldKind = "date"
	KindText  FieldKind = "text"
	KindEnum  FieldKind = "enum"
)

// FieldSource records how a field was extracted.
type FieldSource string

const (
	SourceLLM   FieldSource = "llm"
	SourceRegex FieldSource = "regex"
)

// Recommendation is the final underwriting suggestion.
type Recommendation string

const (
	Approve Recommendation = "approve"
	Review  Recommendation = "review"
	Decline Recommendation = "decline"
)
