package boiledrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/event"
)

var (
	eventColumns     = []string{"id", "name", "venue", "status", "start_date", "end_date", "created_at", "updated_at"}
	eventOrderFields = map[string]string{
		"name":       "name",
		"status":     "status",
		"start_date": "start_date",
		"startDate":  "start_date",
		"created_at": "created_at",
	}
)

type eventRow struct {
	ID        int         `boil:"id"`
	Name      string      `boil:"name"`
	Venue     null.String `boil:"venue"`
	Status    string      `boil:"status"`
	StartDate time.Time   `boil:"start_date"`
	EndDate   time.Time   `boil:"end_date"`
	CreatedAt time.Time   `boil:"created_at"`
	UpdatedAt time.Time   `boil:"updated_at"`
}

func (r eventRow) unboil() event.Event {
	return event.Event{
		ID:        r.ID,
		Name:      r.Name,
		Venue:     r.Venue.String,
		Status:    r.Status,
		StartDate: r.StartDate.UTC(),
		EndDate:   r.EndDate.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type eventRepository struct {
	repo
}

var _ event.Repository = (*eventRepository)(nil)

func NewEventRepository(exec core.DBExecutor) *eventRepository {
	return &eventRepository{repo{exec: exec}}
}

func (repo eventRepository) GetEvent(ctx context.Context, id int, exec ...core.DBExecutor) (event.Event, error) {
	var r eventRow
	err := one(ctx, repo.getExec(exec), &r, qm.Select(eventColumns...), qm.From("event"), qm.Where("id = ?", id))
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return event.Event{}, event.ErrNotFound
		}
		return event.Event{}, errors.Wrap(err, "finding event")
	}
	return r.unboil(), nil
}

func (repo eventRepository) QueryEvents(ctx context.Context, filter *event.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]event.Event, error) {
	mods := []qm.QueryMod{qm.Select(eventColumns...), qm.From("event")}
	if filter != nil {
		if filter.Search != "" {
			val := "%" + filter.Search + "%"
			mods = append(mods, qm.Expr(qm.Where("name ILIKE ? OR venue ILIKE ?", val, val)))
		}
		if filter.Status != "" {
			mods = append(mods, qm.Where("status = ?", filter.Status))
		}
	}
	mods = append(mods, orderBy(ordering, eventOrderFields, "start_date DESC"))

	var rows []eventRow
	if err := all(ctx, repo.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.unboil())
	}
	return events, nil
}
