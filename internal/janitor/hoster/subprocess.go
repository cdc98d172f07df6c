package hoster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

// PublishRequest is the JSON payload sent to the publish_one subprocess on
// its stdin, per spec §4.5 step 3.
type PublishRequest struct {
	Mode                string `json:"mode"`
	Suite               string `json:"suite"`
	Codebase            string `json:"codebase"`
	Command             string `json:"command"`
	SubworkerResult     string `json:"subworker_result"`
	MainBranchURL       string `json:"main_branch_url"`
	LocalBranchURL      string `json:"local_branch_url"`
	LogID               string `json:"log_id"`
	AllowCreateProposal bool   `json:"allow_create_proposal"`
}

// PublishResponse is the JSON payload read from the subprocess's stdout on
// success.
type PublishResponse struct {
	ProposalURL string `json:"proposal_url,omitempty"`
	BranchName  string `json:"branch_name"`
	IsNew       bool   `json:"is_new"`
}

// publishFailure mirrors the subprocess's failure payload, a {code,
// description} pair drawn from the result-code taxonomy.
type publishFailure struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// PublishError is a publish_one failure tagged with a result code from the
// §7 taxonomy, e.g. too-many-requests or conflict.
type PublishError struct {
	Code        jerrors.ResultCode
	Description string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish_one failed [%s]: %s", e.Code, e.Description)
}

// SubprocessPublisher invokes an external publish_one binary per codebase
// publish attempt, isolating forge credentials and VCS plumbing from the
// core process.
type SubprocessPublisher struct {
	binaryPath string
}

var _ Publisher = (*SubprocessPublisher)(nil)

// NewSubprocessPublisher creates a SubprocessPublisher invoking binaryPath.
func NewSubprocessPublisher(binaryPath string) *SubprocessPublisher {
	return &SubprocessPublisher{binaryPath: binaryPath}
}

// PublishOne runs the publish_one subprocess with req on stdin and decodes
// its stdout as either a PublishResponse or a *PublishError tagged with the
// subprocess's failure taxonomy code.
func (p *SubprocessPublisher) PublishOne(ctx context.Context, req PublishRequest) (PublishResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return PublishResponse{}, fmt.Errorf("marshal publish_one request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.binaryPath)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var resp PublishResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err == nil && resp.BranchName != "" {
		return resp, nil
	}

	var failure publishFailure
	if err := json.Unmarshal(stdout.Bytes(), &failure); err == nil && failure.Code != "" {
		return PublishResponse{}, &PublishError{
			Code:        jerrors.ResultCode(failure.Code),
			Description: failure.Description,
		}
	}

	if runErr != nil {
		return PublishResponse{}, fmt.Errorf("publish_one: %w: %s", runErr, stderr.String())
	}
	return PublishResponse{}, fmt.Errorf("publish_one: unparseable response: %s", stdout.String())
}
