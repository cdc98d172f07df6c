package domain

import (
	"time"

	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// PublishMode is the effective publish action resolved for a candidate at
// attempt time, after rate-limit and sensitive-host downgrades are applied.
type PublishMode string

const (
	PublishModeSkip        PublishMode = "skip"
	PublishModeBuildOnly   PublishMode = "build-only"
	PublishModePropose     PublishMode = "propose"
	PublishModeAttemptPush PublishMode = "attempt-push"
	PublishModePush        PublishMode = "push"
)

// PublishState is a publish attempt's position in the publisher state
// machine.
type PublishState string

const (
	PublishStateCandidate       PublishState = "candidate"
	PublishStateSkipped         PublishState = "skipped"
	PublishStateBuilding        PublishState = "building"
	PublishStatePushed          PublishState = "pushed"
	PublishStateProposed        PublishState = "proposed"
	PublishStateUpdated         PublishState = "updated"
	PublishStateConflict        PublishState = "conflict"
	PublishStateClosedNoChanges PublishState = "closed-no-changes"
	PublishStateFailed          PublishState = "failed"
)

// PublishRecord is the append-only log entry for one publish attempt against
// a run's result branches.
type PublishRecord struct {
	ID          string
	Codebase    string
	Campaign    string
	RunID       string
	Mode        PublishMode
	State       PublishState
	ResultCode  jerrors.ResultCode
	ProposalURL string
	Revision    string
	AttemptedAt time.Time
}
