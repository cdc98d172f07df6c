package memory

import (
	"context"
	"testing"
	"time"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
)

func TestCodebaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := New()

	cb, err := m.UpsertCodebase(ctx, domain.Codebase{Name: "foo", Value: 5})
	if err != nil {
		t.Fatalf("UpsertCodebase: %v", err)
	}
	if cb.CreatedAt.IsZero() || cb.UpdatedAt.IsZero() {
		t.Fatalf("UpsertCodebase did not stamp timestamps: %+v", cb)
	}

	got, err := m.GetCodebase(ctx, "foo")
	if err != nil {
		t.Fatalf("GetCodebase: %v", err)
	}
	if got.Value != 5 {
		t.Fatalf("GetCodebase().Value = %v, want 5", got.Value)
	}

	created := got.CreatedAt
	if _, err := m.UpsertCodebase(ctx, domain.Codebase{Name: "foo", Value: 6}); err != nil {
		t.Fatalf("second UpsertCodebase: %v", err)
	}
	updated, err := m.GetCodebase(ctx, "foo")
	if err != nil {
		t.Fatalf("GetCodebase: %v", err)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Fatalf("CreatedAt changed on update: %v -> %v", created, updated.CreatedAt)
	}
	if updated.Value != 6 {
		t.Fatalf("Value not updated: got %v, want 6", updated.Value)
	}

	if err := m.RemoveCodebase(ctx, "foo"); err != nil {
		t.Fatalf("RemoveCodebase: %v", err)
	}
	removed, err := m.GetCodebase(ctx, "foo")
	if err != nil {
		t.Fatalf("GetCodebase after remove: %v", err)
	}
	if !removed.Removed {
		t.Fatalf("codebase not marked Removed after RemoveCodebase")
	}
}

func TestCandidateUniquenessByKey(t *testing.T) {
	ctx := context.Background()
	m := New()

	if _, err := m.UpsertCandidate(ctx, domain.Candidate{Codebase: "cb", Campaign: "c1", Value: 1}); err != nil {
		t.Fatalf("UpsertCandidate: %v", err)
	}
	if _, err := m.UpsertCandidate(ctx, domain.Candidate{Codebase: "cb", Campaign: "c1", Value: 2}); err != nil {
		t.Fatalf("UpsertCandidate (overwrite): %v", err)
	}

	all, err := m.ListCandidates(ctx)
	if err != nil {
		t.Fatalf("ListCandidates: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("len(ListCandidates()) = %d, want 1 (at most one candidate per codebase/campaign)", len(all))
	}
	if all[0].Value != 2 {
		t.Fatalf("candidate not overwritten: Value = %v, want 2", all[0].Value)
	}

	if err := m.DeleteCandidate(ctx, domain.CandidateKey{Codebase: "cb", Campaign: "c1"}); err != nil {
		t.Fatalf("DeleteCandidate: %v", err)
	}
	if _, err := m.GetCandidate(ctx, domain.CandidateKey{Codebase: "cb", Campaign: "c1"}); err == nil {
		t.Fatalf("GetCandidate should fail after DeleteCandidate")
	}
}

func TestRunLifecycleAndPublishReadiness(t *testing.T) {
	ctx := context.Background()
	m := New()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	success, err := m.CreateRun(ctx, domain.Run{
		Codebase: "cb", Campaign: "camp",
		StartTime: start, FinishTime: start.Add(10 * time.Second),
		ResultCode: jerrors.ResultSuccess,
	})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if success.ID == "" {
		t.Fatalf("CreateRun did not assign an ID")
	}

	last, ok, err := m.LastRun(ctx, "cb", "camp")
	if err != nil || !ok {
		t.Fatalf("LastRun: ok=%v err=%v", ok, err)
	}
	if last.ID != success.ID {
		t.Fatalf("LastRun returned %s, want %s", last.ID, success.ID)
	}

	ready, err := m.ListPublishReadyRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListPublishReadyRuns: %v", err)
	}
	if len(ready) != 1 || ready[0].ID != success.ID {
		t.Fatalf("ListPublishReadyRuns = %+v, want exactly the unpublished success", ready)
	}

	if _, err := m.AppendPublishRecord(ctx, domain.PublishRecord{
		Codebase: "cb", Campaign: "camp", RunID: success.ID,
		Mode: domain.PublishModePush, State: domain.PublishStatePushed, ResultCode: jerrors.ResultSuccess,
	}); err != nil {
		t.Fatalf("AppendPublishRecord: %v", err)
	}

	ready, err = m.ListPublishReadyRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListPublishReadyRuns after publish: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("ListPublishReadyRuns = %+v, want empty once the run has a publish record", ready)
	}
}

func TestWorkerOutcomesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	m := New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		begin := start.Add(time.Duration(i) * time.Hour)
		if _, err := m.CreateRun(ctx, domain.Run{
			Codebase: "cb", Campaign: "camp",
			StartTime: begin, FinishTime: begin.Add(time.Second),
			ResultCode: jerrors.ResultSuccess,
			Context:    begin.String(),
		}); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	outcomes, err := m.WorkerOutcomes(ctx, "cb", "camp", 3)
	if err != nil {
		t.Fatalf("WorkerOutcomes: %v", err)
	}
	if len(outcomes) != 3 {
		t.Fatalf("len(WorkerOutcomes) = %d, want 3 (limited)", len(outcomes))
	}
	for i := 0; i+1 < len(outcomes); i++ {
		if !outcomes[i].FinishTime.Before(outcomes[i+1].FinishTime) {
			t.Fatalf("WorkerOutcomes must be oldest-first")
		}
	}
	// The limit keeps the most recent runs, not the oldest.
	if !outcomes[len(outcomes)-1].FinishTime.Equal(start.Add(4 * time.Hour).Add(time.Second)) {
		t.Fatalf("WorkerOutcomes with a limit should keep the most recent runs")
	}
}

func TestProposalOpenAndSweepQueries(t *testing.T) {
	ctx := context.Background()
	m := New()

	if _, err := m.UpsertProposal(ctx, domain.Proposal{
		URL: "https://forge.example/mr/1", Codebase: "cb", Campaign: "camp",
		Status: domain.ProposalStatusOpen, RunID: "run-1",
	}); err != nil {
		t.Fatalf("UpsertProposal: %v", err)
	}
	if _, err := m.UpsertProposal(ctx, domain.Proposal{
		URL: "https://forge.example/mr/2", Codebase: "cb2", Campaign: "camp",
		Status: domain.ProposalStatusMerged, RunID: "run-2",
	}); err != nil {
		t.Fatalf("UpsertProposal (merged): %v", err)
	}

	open, ok, err := m.GetOpenProposal(ctx, "cb", "camp")
	if err != nil || !ok {
		t.Fatalf("GetOpenProposal: ok=%v err=%v", ok, err)
	}
	if open.URL != "https://forge.example/mr/1" {
		t.Fatalf("GetOpenProposal returned %s", open.URL)
	}

	if _, ok, err := m.GetOpenProposal(ctx, "cb2", "camp"); err != nil || ok {
		t.Fatalf("a merged proposal must not be returned as open: ok=%v err=%v", ok, err)
	}

	all, err := m.ListOpenProposals(ctx)
	if err != nil {
		t.Fatalf("ListOpenProposals: %v", err)
	}
	if len(all) != 1 || all[0].URL != open.URL {
		t.Fatalf("ListOpenProposals = %+v, want exactly the one open proposal", all)
	}
}

func TestPublishRecordQueries(t *testing.T) {
	ctx := context.Background()
	m := New()

	if _, err := m.UpsertCodebase(ctx, domain.Codebase{Name: "cb", Maintainer: "alice@example.com"}); err != nil {
		t.Fatalf("UpsertCodebase: %v", err)
	}

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if _, err := m.AppendPublishRecord(ctx, domain.PublishRecord{
		Codebase: "cb", Campaign: "camp", Mode: domain.PublishModePush,
		State: domain.PublishStatePushed, ResultCode: jerrors.ResultSuccess, AttemptedAt: now,
	}); err != nil {
		t.Fatalf("AppendPublishRecord: %v", err)
	}
	if _, err := m.AppendPublishRecord(ctx, domain.PublishRecord{
		Codebase: "cb", Campaign: "camp", Mode: domain.PublishModePush,
		State: domain.PublishStatePushed, ResultCode: jerrors.ResultSuccess, AttemptedAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("AppendPublishRecord (2nd): %v", err)
	}

	last, ok, err := m.LastPublishRecord(ctx, "cb", "camp")
	if err != nil || !ok {
		t.Fatalf("LastPublishRecord: ok=%v err=%v", ok, err)
	}
	if !last.AttemptedAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("LastPublishRecord returned the older record")
	}

	at, ok, err := m.LastPublishForCampaign(ctx, "camp")
	if err != nil || !ok {
		t.Fatalf("LastPublishForCampaign: ok=%v err=%v", ok, err)
	}
	if !at.Equal(now.Add(time.Hour)) {
		t.Fatalf("LastPublishForCampaign = %v, want %v", at, now.Add(time.Hour))
	}

	count, err := m.CountRecentPushes(ctx, "alice@example.com", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountRecentPushes: %v", err)
	}
	if count != 2 {
		t.Fatalf("CountRecentPushes = %d, want 2", count)
	}

	count, err = m.CountRecentPushes(ctx, "bob@example.com", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("CountRecentPushes (other maintainer): %v", err)
	}
	if count != 0 {
		t.Fatalf("CountRecentPushes for an unrelated maintainer = %d, want 0", count)
	}
}

func TestChangeSetPutAndGetDoesNotAlias(t *testing.T) {
	ctx := context.Background()
	m := New()

	diff := []byte("--- a\n+++ b\n")
	if err := m.PutChangeSet(ctx, domain.ChangeSet{RunID: "run-1", Branch: domain.BranchRoleMain, Diff: diff}); err != nil {
		t.Fatalf("PutChangeSet: %v", err)
	}

	diff[0] = 'X'

	got, ok, err := m.GetChangeSet(ctx, "run-1", domain.BranchRoleMain)
	if err != nil || !ok {
		t.Fatalf("GetChangeSet: ok=%v err=%v", ok, err)
	}
	if got.Diff[0] == 'X' {
		t.Fatalf("GetChangeSet aliased the caller's mutated slice")
	}
}
