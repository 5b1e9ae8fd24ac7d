package trace

import "time"

// Entry records how one request was resolved.
type Entry struct {
	Timestamp   time.Time         `json:"timestamp"`
	RequestID   string            `json:"request_id"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	MatchedID   string            `json:"matched_id"`
	Skipped     []string          `json:"skipped,omitempty"`
	Status      int               `json:"status"`
	Candidates  []CandidateResult `json:"candidates"`
	RateLimited bool              `json:"rate_limited"`
	Error       string            `json:"error,omitempty"`
}

// CandidateResult records the evaluation of a single resource whose method
// and route matched the request.
type CandidateResult struct {
	ResourceID   string `json:"resource_id"`
	Source       string `json:"source,omitempty"`
	Matched      bool   `json:"matched"`
	FailedField  string `json:"failed_field,omitempty"`
	FailedReason string `json:"failed_reason,omitempty"`
}
