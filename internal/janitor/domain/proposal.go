package domain

import "time"

// ProposalStatus is the hoster-reported lifecycle state of a merge proposal.
type ProposalStatus string

const (
	ProposalStatusOpen   ProposalStatus = "open"
	ProposalStatusMerged ProposalStatus = "merged"
	ProposalStatusClosed ProposalStatus = "closed"
)

// Proposal is a merge/pull request opened on a hoster for one (codebase,
// campaign) pair. At most one open Proposal exists per pair at a time; new
// pushes update the existing proposal rather than opening another.
type Proposal struct {
	URL      string
	Codebase string
	Campaign string
	Status   ProposalStatus
	Revision  string
	RunID     string
	CreatedAt time.Time
	UpdatedAt time.Time
	MergedAt  *time.Time
	ClosedAt  *time.Time
}
