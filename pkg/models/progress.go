package models

// ExecutionProgress carries the record counters reported by the external
// processing service for one task.
type ExecutionProgress struct {
	ExpectedRecords  int64 `json:"expectedRecords"`
	ProcessedRecords int64 `json:"processedRecords"`
	Errors           int64 `json:"errors"`
}

// Advance merges a new progress observation. Counters are monotonically
// non-decreasing: stale or regressed observations are ignored per field.
func (p *ExecutionProgress) Advance(observed ExecutionProgress) {
	if observed.ExpectedRecords > p.ExpectedRecords {
		p.ExpectedRecords = observed.ExpectedRecords
	}

	if observed.ProcessedRecords > p.ProcessedRecords {
		p.ProcessedRecords = observed.ProcessedRecords
	}

	if observed.Errors > p.Errors {
		p.Errors = observed.Errors
	}
}
