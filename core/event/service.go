package event

import (
	"context"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
)

var ErrNotFound = errors.New("event not found")

type (
	Repository interface {
		GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
		QueryEvents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Event, error)
	}

	Service interface {
		Get(ctx context.Context, id int) (Event, error)
		List(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error)
	}

	service struct {
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository) *service {
	return &service{repo: repo}
}

func (svc *service) Get(ctx context.Context, id int) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *service) List(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Event, error) {
	if filter != nil {
		filter.Search = core.CleanString(filter.Search)
		filter.Status = core.CleanString(filter.Status)
	}
	return svc.repo.QueryEvents(ctx, filter, ordering)
}
