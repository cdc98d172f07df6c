// Package hoster abstracts the forge (GitLab/GitHub/etc.) a codebase is
// hosted on: opening/updating merge proposals and reporting their status.
// The actual publish action is delegated to an isolated subprocess, wired in
// subprocess.go, rather than performed in-process.
package hoster

import (
	"context"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// ProposalInfo is a forge's current view of a merge proposal.
type ProposalInfo struct {
	URL          string
	Status       domain.ProposalStatus
	HeadRevision string
	Conflicted   bool
}

// Hoster is the per-forge surface the publisher needs. Concrete
// implementations wrap a specific forge's API client; hosterfake provides an
// in-memory double for tests.
type Hoster interface {
	// ProposalStatus fetches the current state of an existing proposal.
	ProposalStatus(ctx context.Context, url string) (ProposalInfo, error)
	// BranchRevision resolves a branch's current head revision on the
	// forge, tolerating BranchMissing/BranchUnavailable per spec §4.5's
	// reconciliation sweep.
	BranchRevision(ctx context.Context, vcsURL, branch string) (string, error)
	// Close closes an open proposal with an explanatory note, used when the
	// reconciliation sweep finds only nothing-to-do runs since it opened.
	Close(ctx context.Context, url, note string) error
}

// Publisher is the publish_one capability the Publisher state machine
// delegates the actual push/propose action to. SubprocessPublisher is the
// production implementation, isolating forge credentials in a separate
// process; hosterfake provides a scripted in-memory double for tests.
type Publisher interface {
	PublishOne(ctx context.Context, req PublishRequest) (PublishResponse, error)
}
