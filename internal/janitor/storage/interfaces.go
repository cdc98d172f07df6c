// Package storage defines the persistence boundary for the fleet engine:
// one small interface per aggregate, composed by callers that need more
// than one. Concrete implementations live in the postgres and memory
// subpackages.
package storage

import (
	"context"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
)

// CodebaseStore persists codebases.
type CodebaseStore interface {
	UpsertCodebase(ctx context.Context, cb domain.Codebase) (domain.Codebase, error)
	GetCodebase(ctx context.Context, name string) (domain.Codebase, error)
	ListCodebases(ctx context.Context) ([]domain.Codebase, error)
	RemoveCodebase(ctx context.Context, name string) error
}

// CampaignStore persists campaigns.
type CampaignStore interface {
	UpsertCampaign(ctx context.Context, c domain.Campaign) (domain.Campaign, error)
	GetCampaign(ctx context.Context, name string) (domain.Campaign, error)
	ListCampaigns(ctx context.Context) ([]domain.Campaign, error)
}

// CandidateStore persists candidates, keyed by (codebase, campaign).
type CandidateStore interface {
	UpsertCandidate(ctx context.Context, c domain.Candidate) (domain.Candidate, error)
	GetCandidate(ctx context.Context, key domain.CandidateKey) (domain.Candidate, error)
	ListCandidates(ctx context.Context) ([]domain.Candidate, error)
	ListCandidatesForCampaign(ctx context.Context, campaign string) ([]domain.Candidate, error)
	DeleteCandidate(ctx context.Context, key domain.CandidateKey) error
}

// RunStore persists completed and in-flight runs.
type RunStore interface {
	CreateRun(ctx context.Context, r domain.Run) (domain.Run, error)
	GetRun(ctx context.Context, id string) (domain.Run, error)
	LastRun(ctx context.Context, codebase, campaign string) (domain.Run, bool, error)
	ListRuns(ctx context.Context, codebase, campaign string, limit int) ([]domain.Run, error)
	// WorkerOutcomes returns the most recent outcomes for a (codebase,
	// campaign) pair up to limit, oldest first, used by the success-rate
	// estimator.
	WorkerOutcomes(ctx context.Context, codebase, campaign string, limit int) ([]domain.Run, error)
	// ListPublishReadyRuns returns successful runs, newest first, that have
	// no publish record yet, for the publish_pending sweep.
	ListPublishReadyRuns(ctx context.Context, limit int) ([]domain.Run, error)
}

// QueueStore persists scheduled work and in-flight claims. Claim must be
// implemented with a locking read (e.g. SELECT ... FOR UPDATE SKIP LOCKED)
// so concurrent workers never race on the same item.
type QueueStore interface {
	Enqueue(ctx context.Context, item domain.QueueItem) (domain.QueueItem, error)
	// Claim atomically picks the highest-priority unclaimed item, in
	// (bucket, priority, id) order, whose RequiredCapability (if any) is
	// in capabilities, and records a claim for worker. A nil/empty
	// capabilities list only matches items with no RequiredCapability.
	Claim(ctx context.Context, worker string, capabilities []domain.BuildTargetClass) (domain.QueueItem, domain.Claim, bool, error)
	Keepalive(ctx context.Context, queueItemID int64, worker string, at time.Time) error
	Complete(ctx context.Context, queueItemID int64) error
	// ReclaimExpired releases claims whose keepalive has lapsed so their
	// items become claimable again.
	ReclaimExpired(ctx context.Context, timeout time.Duration, now time.Time) (int, error)
	ListBuckets(ctx context.Context) (map[string]int, error)
	Len(ctx context.Context) (int, error)
}

// ProposalStore persists merge proposals.
type ProposalStore interface {
	UpsertProposal(ctx context.Context, p domain.Proposal) (domain.Proposal, error)
	GetOpenProposal(ctx context.Context, codebase, campaign string) (domain.Proposal, bool, error)
	ListProposals(ctx context.Context, codebase, campaign string) ([]domain.Proposal, error)
	// ListOpenProposals returns every open proposal across all codebases,
	// for the periodic reconciliation sweep.
	ListOpenProposals(ctx context.Context) ([]domain.Proposal, error)
}

// PublishRecordStore persists the append-only publish attempt log.
type PublishRecordStore interface {
	AppendPublishRecord(ctx context.Context, rec domain.PublishRecord) (domain.PublishRecord, error)
	LastPublishRecord(ctx context.Context, codebase, campaign string) (domain.PublishRecord, bool, error)
	ListPublishRecords(ctx context.Context, codebase, campaign string, limit int) ([]domain.PublishRecord, error)
	// LastPublishForCampaign returns the most recent publish attempt time
	// across every codebase for campaign, for the admin API's /last-publish.
	LastPublishForCampaign(ctx context.Context, campaign string) (time.Time, bool, error)
	// CountRecentPushes returns how many push/attempt-push records a
	// maintainer's codebases produced since since, for rate limiting.
	CountRecentPushes(ctx context.Context, maintainer string, since time.Time) (int, error)
}

// ChangeSetStore persists diff payloads for completed runs.
type ChangeSetStore interface {
	PutChangeSet(ctx context.Context, cs domain.ChangeSet) error
	GetChangeSet(ctx context.Context, runID string, branch domain.BranchRole) (domain.ChangeSet, bool, error)
}

// Store composes every aggregate-level interface. Concrete implementations
// (postgres, memory) satisfy it in full; most callers should depend on the
// smaller interfaces above instead.
type Store interface {
	CodebaseStore
	CampaignStore
	CandidateStore
	RunStore
	QueueStore
	ProposalStore
	PublishRecordStore
	ChangeSetStore
}
