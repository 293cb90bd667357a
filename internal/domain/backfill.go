package domain

// BackfillOperation is what the backfill service did with one entity.
type BackfillOperation string

const (
	BackfillInsert BackfillOperation = "insert"
	BackfillUpdate BackfillOperation = "update"
	BackfillSkip   BackfillOperation = "skip"
	BackfillFailed BackfillOperation = "failed"
)

// BackfillResult is the per-entity outcome of a backfill run.
type BackfillResult struct {
	EntityID     string            `json:"entityId"`
	Success      bool              `json:"success"`
	Operation    BackfillOperation `json:"operation"`
	ErrorMessage string            `json:"errorMessage,omitempty"`
	DurationMs   int64             `json:"durationMs"`
}

// BackfillSummary aggregates a backfill batch.
type BackfillSummary struct {
	EntityType      string            `json:"entityType"`
	Source          Target            `json:"source"`
	Destination     Target            `json:"destination"`
	TotalProcessed  int               `json:"totalProcessed"`
	Inserted        int               `json:"inserted"`
	Updated         int               `json:"updated"`
	Skipped         int               `json:"skipped"`
	Failed          int               `json:"failed"`
	TotalDurationMs int64             `json:"totalDurationMs"`
	FailedIDs       map[string]string `json:"failedIds,omitempty"`

	Results []BackfillResult `json:"-"`
}

// Record folds one per-entity result into the summary.
func (s *BackfillSummary) Record(r BackfillResult) {
	s.TotalProcessed++
	s.Results = append(s.Results, r)

	switch r.Operation {
	case BackfillInsert:
		s.Inserted++
	case BackfillUpdate:
		s.Updated++
	case BackfillSkip:
		s.Skipped++
	case BackfillFailed:
		s.Failed++
		if s.FailedIDs == nil {
			s.FailedIDs = make(map[string]string)
		}
		s.FailedIDs[r.EntityID] = r.ErrorMessage
	}
}

// SuccessRate is (inserted+updated+skipped)/total as a percentage.
func (s *BackfillSummary) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 100
	}
	ok := s.Inserted + s.Updated + s.Skipped
	return float64(ok) / float64(s.TotalProcessed) * 100
}

// AverageDurationMs is the mean per-entity processing time.
func (s *BackfillSummary) AverageDurationMs() float64 {
	if s.TotalProcessed == 0 {
		return 0
	}
	return float64(s.TotalDurationMs) / float64(s.TotalProcessed)
}

// IsFullySuccessful reports whether no entity failed.
func (s *BackfillSummary) IsFullySuccessful() bool {
	return s.Failed == 0
}
