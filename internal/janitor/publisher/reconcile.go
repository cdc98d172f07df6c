package publisher

import (
	"context"
	"fmt"

	"github.com/openjanitor/janitor/internal/janitor/domain"
	"github.com/openjanitor/janitor/internal/janitor/jerrors"
	"github.com/sirupsen/logrus"
)

// SweepResult tallies what the reconciliation sweep did, for logging and
// tests.
type SweepResult struct {
	Checked int
	Updated int
	Closed  int
	Refresh int
}

// Sweep implements the existing-proposal reconciliation pass from spec
// §4.5: every open proposal has its forge status and head revision
// refreshed, then is closed, re-proposed, or left alone according to the
// runs that have landed since it was opened.
func (p *Publisher) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	proposals, err := p.store.ListOpenProposals(ctx)
	if err != nil {
		return result, err
	}

	for _, prop := range proposals {
		result.Checked++
		if err := p.reconcileOne(ctx, prop, &result); err != nil {
			p.log.WithFields(logrus.Fields{"proposal": prop.URL, "codebase": prop.Codebase}).
				WithError(err).Warn("reconcile proposal failed, continuing sweep")
		}
	}
	return result, nil
}

func (p *Publisher) reconcileOne(ctx context.Context, prop domain.Proposal, result *SweepResult) error {
	info, err := p.hoster.ProposalStatus(ctx, prop.URL)
	if err != nil {
		p.log.WithFields(logrus.Fields{"proposal": prop.URL}).
			WithError(err).Warn("forge status unavailable, leaving proposal as last observed")
		return nil
	}

	prop.Status = info.Status
	if info.HeadRevision != "" {
		prop.Revision = info.HeadRevision
	}
	prop, err = p.store.UpsertProposal(ctx, prop)
	if err != nil {
		return fmt.Errorf("update proposal %s: %w", prop.URL, err)
	}
	result.Updated++

	if prop.Status != domain.ProposalStatusOpen {
		return nil
	}

	if info.Conflicted {
		if _, err := p.scheduler.ScheduleConflictRefresh(ctx, prop.Codebase, prop.Campaign, "", ""); err != nil {
			return fmt.Errorf("schedule conflict refresh for %s: %w", prop.Codebase, err)
		}
		result.Refresh++
	}

	return p.reconcileRunsSince(ctx, prop, result)
}

// reconcileRunsSince implements the "look up the most recent runs ... more
// recent than the proposal's source run" branch of the sweep.
func (p *Publisher) reconcileRunsSince(ctx context.Context, prop domain.Proposal, result *SweepResult) error {
	source, err := p.store.GetRun(ctx, prop.RunID)
	if err != nil {
		return fmt.Errorf("load source run %s: %w", prop.RunID, err)
	}

	runs, err := p.store.ListRuns(ctx, prop.Codebase, prop.Campaign, 50)
	if err != nil {
		return fmt.Errorf("list runs for %s/%s: %w", prop.Codebase, prop.Campaign, err)
	}

	var since []domain.Run
	for _, r := range runs {
		if r.StartTime.After(source.FinishTime) {
			since = append(since, r)
		}
	}
	if len(since) == 0 {
		return nil
	}

	mostRecentNonTrivial, ok := firstNonTrivial(since)
	if !ok {
		// Every run since was nothing-to-do / nothing-new-to-do.
		note := "nothing new to do"
		if err := p.hoster.Close(ctx, prop.URL, note); err != nil {
			return fmt.Errorf("close stale proposal %s: %w", prop.URL, err)
		}
		result.Closed++
		if _, err := p.record(ctx, source, domain.PublishModePropose, domain.PublishStateClosedNoChanges, jerrors.ResultNothingNewToDo, prop.URL, prop.Revision); err != nil {
			return fmt.Errorf("record close of %s: %w", prop.URL, err)
		}
		return nil
	}

	if !mostRecentNonTrivial.Success() {
		// Leave the proposal alone; the failure will surface via the run log.
		return nil
	}

	_, err = p.PublishRun(ctx, mostRecentNonTrivial)
	return err
}

// firstNonTrivial returns the most recent run (runs is ordered newest
// first) whose result code is not one of the "nothing happened" classes.
func firstNonTrivial(runs []domain.Run) (domain.Run, bool) {
	for _, r := range runs {
		if r.ResultCode == jerrors.ResultNothingToDo || r.ResultCode == jerrors.ResultNothingNewToDo {
			continue
		}
		return r, true
	}
	return domain.Run{}, false
}
