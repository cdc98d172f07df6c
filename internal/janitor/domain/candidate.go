package domain

import "time"

// Candidate is an intention to run a campaign against a codebase. At most one
// Candidate exists per (Codebase, Campaign) pair.
type Candidate struct {
	Codebase      string
	Campaign      string
	Command       string
	Context       string
	Value         float64
	SuccessChance *float64 // optional prior in [0,1]; nil means "unknown"
	PublishPolicy string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Key returns the (Codebase, Campaign) identity tuple.
func (c Candidate) Key() CandidateKey {
	return CandidateKey{Codebase: c.Codebase, Campaign: c.Campaign}
}

// CandidateKey is the uniqueness key for a Candidate.
type CandidateKey struct {
	Codebase string
	Campaign string
}
