package attendance

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/participant"
)

const emptyChunkMessage = "No teams to process in this chunk"

type managerPlan struct {
	participant.Manager
	contestGroup string
}

// contingentPlan is what a chunk writes for one contingent.
type contingentPlan struct {
	contingent participant.Contingent
	teams      []participant.EndlistTeam
	managers   []managerPlan
}

// buildSyncPlan groups the eligible teams by contingent, in order of appearance.
// A manager shared by several teams is kept once, with the contest group of its first team.
func buildSyncPlan(teams []participant.EndlistTeam) []contingentPlan {
	var plans []contingentPlan
	index := make(map[int]int)
	seenManagers := make(map[int]bool)

	for _, t := range teams {
		if !t.Eligible() {
			continue
		}
		i, ok := index[t.Contingent.ID]
		if !ok {
			i = len(plans)
			index[t.Contingent.ID] = i
			plans = append(plans, contingentPlan{contingent: t.Contingent})
		}
		plans[i].teams = append(plans[i].teams, t)

		for _, mgr := range t.Managers {
			if seenManagers[mgr.ID] {
				continue
			}
			seenManagers[mgr.ID] = true
			plans[i].managers = append(plans[i].managers, managerPlan{Manager: mgr, contestGroup: t.ContestGroup()})
		}
	}
	return plans
}

func (svc *service) Count(ctx context.Context, eventID, chunkSize int) (CountResult, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return CountResult{}, err
	}
	chunkSize = CleanChunkSize(chunkSize, svc.conf.ChunkSize, svc.conf.MaxChunkSize)

	total, err := svc.participants.CountEndlist(ctx, eventID)
	if err != nil {
		return CountResult{}, errors.Wrap(err, "counting endlist teams")
	}
	return CountResult{
		TotalTeams:  total,
		ChunkSize:   chunkSize,
		TotalChunks: (total + chunkSize - 1) / chunkSize,
	}, nil
}

// SyncChunk creates the missing attendance rows of one page of the endlist and refreshes the existing ones.
// Each contingent is written in its own transaction; a failing contingent is recorded in the metrics.
func (svc *service) SyncChunk(ctx context.Context, eventID, chunkSize, offset int) (ChunkResult, error) {
	chunkSize = CleanChunkSize(chunkSize, svc.conf.ChunkSize, svc.conf.MaxChunkSize)
	if offset < 0 {
		offset = 0
	}
	metrics := ChunkMetrics{Errors: []string{}}

	teams, err := svc.participants.EndlistPage(ctx, eventID, chunkSize, offset)
	if err != nil {
		return ChunkResult{Metrics: metrics}, errors.Wrap(err, "loading endlist chunk")
	}
	if len(teams) == 0 {
		return ChunkResult{Message: emptyChunkMessage, Metrics: metrics}, nil
	}

	for _, plan := range buildSyncPlan(teams) {
		if err = ctx.Err(); err != nil {
			return ChunkResult{Metrics: metrics}, err
		}

		var cm ChunkMetrics
		err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
			cm = ChunkMetrics{}
			return svc.syncContingent(ctx, eventID, plan, &cm, tx)
		})
		if err != nil {
			svc.logger.Error(fmt.Sprintf("syncing contingent %d of event %d: %v", plan.contingent.ID, eventID, err), err)
			metrics.addError(fmt.Sprintf("Contingent %d (%s): %v", plan.contingent.ID, plan.contingent.Name, errors.Cause(err)))
			continue
		}
		metrics.Add(cm, "")
	}

	svc.invalidateStats(ctx, eventID)
	return ChunkResult{
		Message: fmt.Sprintf("Chunk processed: %d teams", metrics.ProcessedTeams),
		Metrics: metrics,
	}, nil
}

func (svc *service) syncContingent(ctx context.Context, eventID int, plan contingentPlan, m *ChunkMetrics, tx core.DBExecutor) error {
	now := svc.now()
	c := plan.contingent
	record := func(ic string) Record {
		return Record{
			Hashcode:         Hashcode(ic, eventID, c.ID),
			EventID:          eventID,
			ContingentID:     c.ID,
			StateID:          c.StateID(),
			ZoneID:           c.ZoneID(),
			State:            c.StateName(),
			AttendanceStatus: StatusNotPresent,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}

	created, err := svc.repo.UpsertContingent(ctx, ContingentRecord{Record: record(contingentIC(c.ID))}, tx)
	if err != nil {
		return errors.Wrap(err, "upserting contingent")
	}
	tally(created, &m.NewContingents, &m.UpdatedContingents)

	for _, team := range plan.teams {
		created, err = svc.repo.UpsertTeam(ctx, TeamRecord{Record: record(teamIC(team.TeamID)), TeamID: team.TeamID}, tx)
		if err != nil {
			return errors.Wrapf(err, "upserting team %d", team.TeamID)
		}
		tally(created, &m.NewTeams, &m.UpdatedTeams)

		for _, member := range team.Members {
			created, err = svc.repo.UpsertContestant(ctx, ContestantRecord{
				Record:       record(personIC(member.IC, member.ID)),
				ContestantID: member.ID,
				TeamID:       team.TeamID,
				Name:         member.Name,
				IC:           member.IC,
				ContestGroup: team.ContestGroup(),
				ContestID:    team.ContestID,
				ContestName:  team.ContestFullName(),
			}, tx)
			if err != nil {
				return errors.Wrapf(err, "upserting contestant %d", member.ID)
			}
			tally(created, &m.NewContestants, &m.UpdatedContestants)
		}
		m.ProcessedTeams++
	}

	for _, mgr := range plan.managers {
		created, err = svc.repo.UpsertManager(ctx, ManagerRecord{
			Record:       record(personIC(mgr.IC, mgr.ID)),
			ManagerID:    mgr.ID,
			Name:         mgr.Name,
			IC:           mgr.IC,
			Email:        mgr.Email,
			EmailStatus:  EmailPending,
			ContestGroup: mgr.contestGroup,
		}, tx)
		if err != nil {
			return errors.Wrapf(err, "upserting manager %d", mgr.ID)
		}
		tally(created, &m.NewManagers, &m.UpdatedManagers)
	}
	return nil
}
