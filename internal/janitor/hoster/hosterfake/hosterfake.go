// Package hosterfake is an in-memory hoster.Hoster double for tests:
// scripted proposal states and branch revisions, no network calls.
package hosterfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/openjanitor/janitor/internal/janitor/hoster"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// Fake is a hoster.Hoster backed by maps the test sets up directly.
type Fake struct {
	mu        sync.Mutex
	proposals map[string]hoster.ProposalInfo
	branches  map[string]string
	closed    map[string]string
}

var _ hoster.Hoster = (*Fake)(nil)

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		proposals: make(map[string]hoster.ProposalInfo),
		branches:  make(map[string]string),
		closed:    make(map[string]string),
	}
}

// SetProposal seeds or overwrites a proposal's forge-reported state.
func (f *Fake) SetProposal(info hoster.ProposalInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.proposals[info.URL] = info
}

// SetBranchRevision seeds the head revision BranchRevision returns for a
// (vcsURL, branch) pair.
func (f *Fake) SetBranchRevision(vcsURL, branch, revision string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[vcsURL+"#"+branch] = revision
}

func (f *Fake) ProposalStatus(_ context.Context, url string) (hoster.ProposalInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.proposals[url]
	if !ok {
		return hoster.ProposalInfo{}, fmt.Errorf("no such proposal: %s", url)
	}
	return info, nil
}

func (f *Fake) BranchRevision(_ context.Context, vcsURL, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rev, ok := f.branches[vcsURL+"#"+branch]
	if !ok {
		return "", fmt.Errorf("branch unavailable: %s#%s", vcsURL, branch)
	}
	return rev, nil
}

func (f *Fake) Close(_ context.Context, url, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.proposals[url]
	if !ok {
		return fmt.Errorf("no such proposal: %s", url)
	}
	info.Status = "closed"
	f.proposals[url] = info
	f.closed[url] = note
	return nil
}

// ClosedNote returns the note Close was called with for url, if any.
func (f *Fake) ClosedNote(url string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	note, ok := f.closed[url]
	return note, ok
}

// PublishOneFunc is a FakePublisher's scripted response for a single
// PublishOne call.
type PublishOneFunc func(ctx context.Context, req hoster.PublishRequest) (hoster.PublishResponse, error)

// FakePublisher is a hoster.Publisher double driven by a queue of scripted
// responses, so tests can assert the publisher state machine's behavior
// without spawning the publish_one subprocess.
type FakePublisher struct {
	mu        sync.Mutex
	responses []PublishOneFunc
	Requests  []hoster.PublishRequest
}

var _ hoster.Publisher = (*FakePublisher)(nil)

// NewFakePublisher creates a FakePublisher that returns responses in order,
// one per PublishOne call. Calling PublishOne more times than there are
// scripted responses panics, since that means a test under-specified its
// expectations.
func NewFakePublisher(responses ...PublishOneFunc) *FakePublisher {
	return &FakePublisher{responses: responses}
}

// PushResponse returns a PublishOneFunc that always succeeds with resp.
func PushResponse(resp hoster.PublishResponse) PublishOneFunc {
	return func(context.Context, hoster.PublishRequest) (hoster.PublishResponse, error) {
		return resp, nil
	}
}

// PushError returns a PublishOneFunc that always fails with a PublishError
// tagged code.
func PushError(code jerrors.ResultCode, description string) PublishOneFunc {
	return func(context.Context, hoster.PublishRequest) (hoster.PublishResponse, error) {
		return hoster.PublishResponse{}, &hoster.PublishError{Code: code, Description: description}
	}
}

func (f *FakePublisher) PublishOne(ctx context.Context, req hoster.PublishRequest) (hoster.PublishResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Requests = append(f.Requests, req)
	if len(f.responses) == 0 {
		panic("hosterfake.FakePublisher: PublishOne called with no scripted response remaining")
	}
	fn := f.responses[0]
	f.responses = f.responses[1:]
	return fn(ctx, req)
}
