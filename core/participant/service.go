package participant

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/syaifulazham/techlympics/core"
)

const loadConcurrency = 8

var (
	// errors
	ErrNotFound         = errors.New("not found")
	ErrContingentAbsent = core.NewValidationError(nil, core.FieldError{Field: "contingentId", Error: "contingent not found"})
)

type (
	Repository interface {
		QueryContingents(ctx context.Context, filter *ContingentFilter, page core.Pagination, exec ...core.DBExecutor) ([]Contingent, int, error)
		GetContingent(ctx context.Context, id int, exec ...core.DBExecutor) (Contingent, error)
		ContingentManagers(ctx context.Context, contingentID int, exec ...core.DBExecutor) ([]Manager, error)
		ContingentTeams(ctx context.Context, contingentID int, exec ...core.DBExecutor) ([]Team, error)
		GetTeam(ctx context.Context, id int, exec ...core.DBExecutor) (Team, error)
		// TeamMembers returns the members of each team, ordered by name.
		TeamMembers(ctx context.Context, teamIDs []int, exec ...core.DBExecutor) (map[int][]Contestant, error)
		TeamManagers(ctx context.Context, teamIDs []int, exec ...core.DBExecutor) (map[int][]Manager, error)

		QueryContestants(ctx context.Context, contingentID int, filter *ContestantFilter, page core.Pagination, exec ...core.DBExecutor) ([]Contestant, int, error)
		GetContestant(ctx context.Context, id int, exec ...core.DBExecutor) (Contestant, error)
		CreateContestant(ctx context.Context, c Contestant, exec ...core.DBExecutor) (Contestant, error)
		UpdateContestant(ctx context.Context, c Contestant, exec ...core.DBExecutor) (Contestant, error)
		DeleteContestant(ctx context.Context, id int, exec ...core.DBExecutor) error

		// EndlistTeams returns a page of the event's endlist ordered by team id, without members nor managers.
		EndlistTeams(ctx context.Context, eventID, limit, offset int, exec ...core.DBExecutor) ([]EndlistTeam, error)
		CountEndlistTeams(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error)
		EndlistContingents(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]EndlistContingent, error)
	}

	Service interface {
		QueryContingents(ctx context.Context, filter *ContingentFilter, page core.Pagination) ([]Contingent, core.Page, error)
		GetContingent(ctx context.Context, id int) (ContingentDetail, error)
		ContingentTeams(ctx context.Context, contingentID int) ([]Team, error)
		GetTeam(ctx context.Context, id int) (Team, error)
		QueryContestants(ctx context.Context, contingentID int, filter *ContestantFilter, page core.Pagination) ([]Contestant, core.Page, error)
		GetContestant(ctx context.Context, id int) (Contestant, error)
		CreateContestant(ctx context.Context, nc NewContestant) (Contestant, error)
		UpdateContestant(ctx context.Context, id int, uc UpdateContestant) (Contestant, error)
		DeleteContestant(ctx context.Context, id int) error

		// Endlist returns every endlist team of the event with members and managers, eligible or not.
		Endlist(ctx context.Context, eventID int) ([]EndlistTeam, error)
		// EndlistPage returns a page of the endlist with members and managers.
		EndlistPage(ctx context.Context, eventID, limit, offset int) ([]EndlistTeam, error)
		CountEndlist(ctx context.Context, eventID int) (int, error)
		EndlistContingents(ctx context.Context, eventID int) ([]EndlistContingent, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) QueryContingents(ctx context.Context, filter *ContingentFilter, page core.Pagination) ([]Contingent, core.Page, error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	items, total, err := svc.repo.QueryContingents(ctx, filter, page)
	if err != nil {
		return nil, core.Page{}, err
	}
	return items, core.NewPage(page, total), nil
}

func (svc *service) GetContingent(ctx context.Context, id int) (ContingentDetail, error) {
	var detail ContingentDetail

	c, err := svc.repo.GetContingent(ctx, id)
	if err != nil {
		return detail, err
	}
	detail.Contingent = c

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		managers, err := svc.repo.ContingentManagers(gctx, id)
		detail.Managers = managers
		return errors.Wrap(err, "loading managers")
	})
	g.Go(func() error {
		teams, err := svc.repo.ContingentTeams(gctx, id)
		detail.Teams = teams
		return errors.Wrap(err, "loading teams")
	})
	if err = g.Wait(); err != nil {
		return ContingentDetail{}, err
	}
	return detail, nil
}

func (svc *service) ContingentTeams(ctx context.Context, contingentID int) ([]Team, error) {
	if _, err := svc.repo.GetContingent(ctx, contingentID); err != nil {
		return nil, err
	}
	return svc.repo.ContingentTeams(ctx, contingentID)
}

func (svc *service) GetTeam(ctx context.Context, id int) (Team, error) {
	team, err := svc.repo.GetTeam(ctx, id)
	if err != nil {
		return Team{}, err
	}
	members, managers, err := svc.loadTeamPeople(ctx, []int{id})
	if err != nil {
		return Team{}, err
	}
	team.Members = members[id]
	team.Managers = managers[id]
	team.MemberCount = len(team.Members)
	return team, nil
}

func (svc *service) QueryContestants(ctx context.Context, contingentID int, filter *ContestantFilter, page core.Pagination) ([]Contestant, core.Page, error) {
	page.Clean()
	if filter != nil {
		filter.Clean()
	}
	items, total, err := svc.repo.QueryContestants(ctx, contingentID, filter, page)
	if err != nil {
		return nil, core.Page{}, err
	}
	return items, core.NewPage(page, total), nil
}

func (svc *service) GetContestant(ctx context.Context, id int) (Contestant, error) {
	return svc.repo.GetContestant(ctx, id)
}

func (svc *service) CreateContestant(ctx context.Context, nc NewContestant) (Contestant, error) {
	if _, err := svc.repo.GetContingent(ctx, nc.ContingentID); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Contestant{}, ErrContingentAbsent
		}
		return Contestant{}, err
	}
	now := time.Now().UTC()
	return svc.repo.CreateContestant(ctx, Contestant{
		Name:         nc.Name,
		IC:           nc.IC,
		Email:        nc.Email,
		Gender:       nc.Gender,
		Age:          nc.Age,
		EduLevel:     nc.EduLevel,
		ClassGrade:   nc.ClassGrade,
		ContingentID: nc.ContingentID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
}

func (svc *service) UpdateContestant(ctx context.Context, id int, uc UpdateContestant) (Contestant, error) {
	c, err := svc.repo.GetContestant(ctx, id)
	if err != nil {
		return Contestant{}, err
	}
	c = uc.apply(c)
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateContestant(ctx, c)
}

func (svc *service) DeleteContestant(ctx context.Context, id int) error {
	return svc.repo.DeleteContestant(ctx, id)
}

func (svc *service) Endlist(ctx context.Context, eventID int) ([]EndlistTeam, error) {
	return svc.EndlistPage(ctx, eventID, 0, 0)
}

func (svc *service) EndlistPage(ctx context.Context, eventID, limit, offset int) ([]EndlistTeam, error) {
	teams, err := svc.repo.EndlistTeams(ctx, eventID, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "loading endlist teams")
	}
	if len(teams) == 0 {
		return teams, nil
	}

	ids := make([]int, 0, len(teams))
	for _, t := range teams {
		ids = append(ids, t.TeamID)
	}
	members, managers, err := svc.loadTeamPeople(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range teams {
		teams[i].Members = members[teams[i].TeamID]
		teams[i].Managers = managers[teams[i].TeamID]
	}
	return teams, nil
}

// loadTeamPeople loads members and managers of the teams concurrently, in batches.
func (svc *service) loadTeamPeople(ctx context.Context, teamIDs []int) (map[int][]Contestant, map[int][]Manager, error) {
	const batchSize = 100

	var mu sync.Mutex
	members := make(map[int][]Contestant, len(teamIDs))
	managers := make(map[int][]Manager, len(teamIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for start := 0; start < len(teamIDs); start += batchSize {
		end := start + batchSize
		if end > len(teamIDs) {
			end = len(teamIDs)
		}
		batch := teamIDs[start:end]

		g.Go(func() error {
			res, err := svc.repo.TeamMembers(gctx, batch)
			if err != nil {
				return errors.Wrap(err, "loading team members")
			}
			mu.Lock()
			for id, m := range res {
				members[id] = m
			}
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			res, err := svc.repo.TeamManagers(gctx, batch)
			if err != nil {
				return errors.Wrap(err, "loading team managers")
			}
			mu.Lock()
			for id, m := range res {
				managers[id] = m
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return members, managers, nil
}

func (svc *service) CountEndlist(ctx context.Context, eventID int) (int, error) {
	return svc.repo.CountEndlistTeams(ctx, eventID)
}

func (svc *service) EndlistContingents(ctx context.Context, eventID int) ([]EndlistContingent, error) {
	items, err := svc.repo.EndlistContingents(ctx, eventID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].SetSyncState()
	}
	return items, nil
}
