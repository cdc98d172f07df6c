package domain

import (
	"time"

	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// BranchRole identifies the purpose of a result branch produced by a run,
// e.g. the main changed branch versus an auxiliary debian/upstream branch.
type BranchRole string

const (
	BranchRoleMain     BranchRole = "main"
	BranchRoleUpstream BranchRole = "upstream"
	BranchRoleDebian   BranchRole = "debian"
)

// ResultBranch is one VCS branch a run produced, identified by role and
// recorded with both endpoints so the publisher can detect whether a branch
// moved since the last successful publish.
type ResultBranch struct {
	Role         BranchRole
	Name         string
	BaseRevision string
	HeadRevision string
}

// FailureDetails captures the structured, worker-reported explanation for a
// non-success ResultCode. Stage and Details are worker-defined; only the
// envelope is interpreted by the core.
type FailureDetails struct {
	Stage   string
	Message string
	Details map[string]interface{}
}

// Run is one attempt to execute a campaign's command against a codebase. It
// is append-only once finished: the core never mutates a completed run.
type Run struct {
	ID         string
	Codebase   string
	Campaign   string
	Command    string
	Context    string
	StartTime  time.Time
	FinishTime time.Time

	ResultCode jerrors.ResultCode

	// FailureDetails is nil when ResultCode is ResultSuccess.
	FailureDetails   *FailureDetails
	FailureTransient bool

	InstigatedContext  string
	MainBranchRevision string

	ResultBranches []ResultBranch
}

// Duration returns how long the run took. Callers must only call this once
// FinishTime is set.
func (r Run) Duration() time.Duration {
	return r.FinishTime.Sub(r.StartTime)
}

// Success reports whether the run completed successfully.
func (r Run) Success() bool {
	return r.ResultCode == jerrors.ResultSuccess
}

// BranchByRole returns the result branch with the given role, if any.
func (r Run) BranchByRole(role BranchRole) (ResultBranch, bool) {
	for _, b := range r.ResultBranches {
		if b.Role == role {
			return b, true
		}
	}
	return ResultBranch{}, false
}
