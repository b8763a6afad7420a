package types

import "time"

// SourceState is a step in a single source's scrape lifecycle.
//
//	Pending -> Fetching -> {Succeeded | Retrying -> Fetching | Failed}
//	Succeeded -> Extracting -> Filtering -> Done
type SourceState int32

const (
	StatePending    SourceState = 0
	StateFetching   SourceState = 1
	StateRetrying   SourceState = 2
	StateSucceeded  SourceState = 3
	StateFailed     SourceState = 4
	StateExtracting SourceState = 5
	StateFiltering  SourceState = 6
	StateDone       SourceState = 7
)

func (s SourceState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateExtracting:
		return "extracting"
	case StateFiltering:
		return "filtering"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal step.
func (s SourceState) CanTransition(next SourceState) bool {
	switch s {
	case StatePending:
		return next == StateFetching || next == StateFailed
	case StateFetching:
		return next == StateSucceeded || next == StateRetrying || next == StateFailed
	case StateRetrying:
		return next == StateFetching || next == StateFailed
	case StateSucceeded:
		return next == StateExtracting || next == StateFailed
	case StateExtracting:
		return next == StateFiltering || next == StateFailed
	case StateFiltering:
		return next == StateDone || next == StateFailed
	default:
		return false
	}
}

// SourceOutcome is one line of the aggregation manifest.
type SourceOutcome struct {
	Source     string        `json:"source"                yaml:"source"`
	Category   Category      `json:"category"              yaml:"category"`
	State      SourceState   `json:"-"                     yaml:"-"`
	StateName  string        `json:"state"                 yaml:"state"`
	ErrorClass string        `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	Err        error         `json:"-"                     yaml:"-"`
	Error      string        `json:"error,omitempty"       yaml:"error,omitempty"`
	Records    int           `json:"records"               yaml:"records"`
	Attempts   int           `json:"attempts"              yaml:"attempts"`
	Duration   time.Duration `json:"duration"              yaml:"duration"`
}

// Succeeded reports whether the source finished without error.
func (o SourceOutcome) Succeeded() bool { return o.Err == nil && o.State == StateDone }

// AggregationResult is the output of one cross-category scrape.
type AggregationResult struct {
	RunID      string          `json:"run_id"     yaml:"run_id"`
	Query      string          `json:"query"      yaml:"query"`
	Records    []Record        `json:"records"    yaml:"records"`
	Outcomes   []SourceOutcome `json:"outcomes"   yaml:"outcomes"`
	Duplicates int             `json:"duplicates" yaml:"duplicates"`
	StartedAt  time.Time       `json:"started_at" yaml:"started_at"`
	Duration   time.Duration   `json:"duration"   yaml:"duration"`
}

// Failed returns the manifest entries of sources that did not succeed.
func (r *AggregationResult) Failed() []SourceOutcome {
	var out []SourceOutcome
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			out = append(out, o)
		}
	}
	return out
}

// Succeeded returns the names of sources that completed cleanly.
func (r *AggregationResult) Succeeded() []string {
	var out []string
	for _, o := range r.Outcomes {
		if o.Succeeded() {
			out = append(out, o.Source)
		}
	}
	return out
}

// Errors returns per-source errors keyed by source name.
func (r *AggregationResult) Errors() map[string]error {
	errs := make(map[string]error)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			errs[o.Source] = o.Err
		}
	}
	return errs
}

// Partial reports whether at least one source failed.
func (r *AggregationResult) Partial() bool {
	return len(r.Failed()) > 0
}
