package attendance

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/participant"
)

// expectedSnapshot lists the participants the eligible endlist teams should have attendance rows for.
func expectedSnapshot(endlist []participant.EndlistTeam) Snapshot {
	var snap Snapshot
	contingents := make(map[int]bool)
	contestants := make(map[int]bool)
	managers := make(map[int]bool)

	for _, t := range endlist {
		if !t.Eligible() {
			continue
		}
		snap.Teams = append(snap.Teams, Ref{ID: t.TeamID, Name: t.TeamName})
		if !contingents[t.Contingent.ID] {
			contingents[t.Contingent.ID] = true
			snap.Contingents = append(snap.Contingents, Ref{ID: t.Contingent.ID, Name: t.Contingent.Name})
		}
		for _, m := range t.Members {
			if !contestants[m.ID] {
				contestants[m.ID] = true
				snap.Contestants = append(snap.Contestants, Ref{ID: m.ID, Name: m.Name})
			}
		}
		for _, m := range t.Managers {
			if !managers[m.ID] {
				managers[m.ID] = true
				snap.Managers = append(snap.Managers, Ref{ID: m.ID, Name: m.Name})
			}
		}
	}
	return snap
}

// computeMismatch compares two lists by id. Results are sorted by id.
func computeMismatch(expected, actual []Ref) Mismatch {
	mm := Mismatch{MissingInAttendance: []Ref{}, ExtraInAttendance: []Ref{}}
	inActual := make(map[int]bool, len(actual))
	for _, r := range actual {
		inActual[r.ID] = true
	}
	inExpected := make(map[int]bool, len(expected))
	for _, r := range expected {
		inExpected[r.ID] = true
		if !inActual[r.ID] {
			mm.MissingInAttendance = append(mm.MissingInAttendance, r)
		}
	}
	for _, r := range actual {
		if !inExpected[r.ID] {
			mm.ExtraInAttendance = append(mm.ExtraInAttendance, r)
		}
	}
	sortRefs(mm.MissingInAttendance)
	sortRefs(mm.ExtraInAttendance)
	return mm
}

func sortRefs(refs []Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
}

func (svc *service) SyncStatus(ctx context.Context, eventID int) (SyncStatus, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return SyncStatus{}, err
	}

	var (
		endlist []participant.EndlistTeam
		actual  Snapshot
		last    *time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		endlist, err = svc.participants.Endlist(gctx, eventID)
		return errors.Wrap(err, "loading endlist")
	})
	g.Go(func() (err error) {
		actual, err = svc.reports.Snapshot(gctx, eventID)
		return errors.Wrap(err, "loading attendance snapshot")
	})
	g.Go(func() (err error) {
		last, err = svc.reports.LastSyncDate(gctx, eventID)
		return errors.Wrap(err, "loading last sync date")
	})
	if err := g.Wait(); err != nil {
		return SyncStatus{}, err
	}

	expected := expectedSnapshot(endlist)
	st := SyncStatus{
		LastSyncDate:   last,
		ActualCounts:   actual.Counts(),
		ExpectedCounts: expected.Counts(),
		Mismatches: Mismatches{
			Contingents: computeMismatch(expected.Contingents, actual.Contingents),
			Teams:       computeMismatch(expected.Teams, actual.Teams),
			Contestants: computeMismatch(expected.Contestants, actual.Contestants),
			Managers:    computeMismatch(expected.Managers, actual.Managers),
		},
	}
	st.Differences = st.ExpectedCounts.Sub(st.ActualCounts)
	st.IsSynced = st.Differences.IsZero() && st.Mismatches.Empty()
	return st, nil
}

type cleanupPlan struct {
	teamIDs             []int
	teamRecordIDs       []int
	contestantRecordIDs []int
	details             []CleanupDetail
}

// planCleanup selects the attendance rows that no longer belong to the endlist:
// team rows of teams not approved anymore (with their contestant rows),
// and contestant rows of people who are not age-valid members of an approved team.
func planCleanup(endlist []participant.EndlistTeam, teams []TeamRecord, contestants []ContestantRecord) cleanupPlan {
	approved := make(map[int]bool, len(endlist))
	valid := make(map[int]bool)
	for _, t := range endlist {
		approved[t.TeamID] = true
		for _, m := range t.Members {
			if t.MemberEligible(m) {
				valid[m.ID] = true
			}
		}
	}

	plan := cleanupPlan{details: []CleanupDetail{}}
	removedTeams := make(map[int]bool)
	for _, tr := range teams {
		if approved[tr.TeamID] {
			continue
		}
		removedTeams[tr.TeamID] = true
		plan.teamIDs = append(plan.teamIDs, tr.TeamID)
		plan.teamRecordIDs = append(plan.teamRecordIDs, tr.ID)
		plan.details = append(plan.details, CleanupDetail{Type: "team", ID: tr.TeamID, Reason: "team is not approved for the event"})
	}
	for _, cr := range contestants {
		if removedTeams[cr.TeamID] || valid[cr.ContestantID] {
			continue
		}
		plan.contestantRecordIDs = append(plan.contestantRecordIDs, cr.ID)
		plan.details = append(plan.details, CleanupDetail{
			Type:   "contestant",
			ID:     cr.ContestantID,
			Name:   cr.Name,
			Reason: "contestant is not an eligible member of an approved team",
		})
	}
	return plan
}

func (svc *service) Cleanup(ctx context.Context, eventID int) (CleanupResult, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return CleanupResult{}, err
	}

	var (
		endlist     []participant.EndlistTeam
		teams       []TeamRecord
		contestants []ContestantRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		endlist, err = svc.participants.Endlist(gctx, eventID)
		return errors.Wrap(err, "loading endlist")
	})
	g.Go(func() (err error) {
		teams, err = svc.repo.TeamRecords(gctx, eventID)
		return errors.Wrap(err, "loading team rows")
	})
	g.Go(func() (err error) {
		contestants, err = svc.repo.ContestantRecords(gctx, eventID)
		return errors.Wrap(err, "loading contestant rows")
	})
	if err := g.Wait(); err != nil {
		return CleanupResult{}, err
	}

	plan := planCleanup(endlist, teams, contestants)
	res := CleanupResult{Details: plan.details}
	err := svc.runInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		if len(plan.teamIDs) > 0 {
			if res.DeletedTeamContestants, err = svc.repo.DeleteTeamContestantRecords(ctx, eventID, plan.teamIDs, tx); err != nil {
				return errors.Wrap(err, "deleting team contestant rows")
			}
			if res.DeletedTeams, err = svc.repo.DeleteTeamRecords(ctx, plan.teamRecordIDs, tx); err != nil {
				return errors.Wrap(err, "deleting team rows")
			}
		}
		if len(plan.contestantRecordIDs) > 0 {
			if res.DeletedContestants, err = svc.repo.DeleteContestantRecords(ctx, plan.contestantRecordIDs, tx); err != nil {
				return errors.Wrap(err, "deleting contestant rows")
			}
		}
		return nil
	})
	if err != nil {
		return CleanupResult{}, err
	}

	svc.invalidateStats(ctx, eventID)
	return res, nil
}
