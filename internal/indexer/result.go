package indexer

import "time"

// Status is the outcome of one item in a batch stage.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome records what happened to one file.
type Outcome struct {
	Name   string
	Status Status
	Reason string // Empty for StatusOK
	Output string // Written file, for StatusOK
	Count  int    // Chunks produced or embedded
}

// StageResult contains statistics about one pipeline stage.
type StageResult struct {
	Stage    string
	Outcomes []Outcome
	Duration time.Duration
}

// Count returns the number of outcomes with the given status.
func (r *StageResult) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Items returns the outcomes with the given status, in file order.
func (r *StageResult) Items(status Status) []Outcome {
	var out []Outcome
	for _, o := range r.Outcomes {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}

// Total sums Count over successful outcomes.
func (r *StageResult) Total() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusOK {
			n += o.Count
		}
	}
	return n
}
