package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core/attendance"
)

// ReportTZ is the zone daily and hourly attendance are bucketed in.
const ReportTZ = "Asia/Kuala_Lumpur"

var present = pq.QuoteLiteral(attendance.StatusPresent)

type reportRepository struct {
	db *sqlx.DB
}

var _ attendance.ReportRepository = (*reportRepository)(nil)

func NewReportRepository(db *sql.DB) *reportRepository {
	return &reportRepository{db: sqlx.NewDb(db, "postgres")}
}

// query expands the slice arguments of q and rebinds it for postgres.
func (repo reportRepository) query(q string, args ...interface{}) (string, []interface{}, error) {
	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return "", nil, err
	}
	return repo.db.Rebind(q), args, nil
}

func (repo reportRepository) get(ctx context.Context, dst interface{}, q string, args ...interface{}) error {
	q, args, err := repo.query(q, args...)
	if err != nil {
		return err
	}
	return repo.db.GetContext(ctx, dst, q, args...)
}

func (repo reportRepository) sel(ctx context.Context, dst interface{}, q string, args ...interface{}) error {
	q, args, err := repo.query(q, args...)
	if err != nil {
		return err
	}
	return repo.db.SelectContext(ctx, dst, q, args...)
}

// groupFilter restricts contestant and manager rows to the contest groups, when any.
// The returned args follow the event id of each filtered subquery.
func groupFilter(eventID int, groups []string) (string, []interface{}) {
	if len(groups) == 0 {
		return "", []interface{}{eventID}
	}
	return "AND contest_group IN (?)", []interface{}{eventID, groups}
}

func (repo reportRepository) Counts(ctx context.Context, eventID int, groups []string) (attendance.Stats, error) {
	filter, args := groupFilter(eventID, groups)
	teamFilter := ""
	if filter != "" {
		teamFilter = "AND team_id IN (SELECT team_id FROM c)"
	}
	q := fmt.Sprintf(`
WITH c AS (
	SELECT contingent_id, team_id, attendance_status FROM attendance_contestant WHERE event_id = ? %[1]s
), m AS (
	SELECT contingent_id, attendance_status FROM attendance_manager WHERE event_id = ? %[1]s
), t AS (
	SELECT team_id, attendance_status FROM attendance_team WHERE event_id = ? %[2]s
)
SELECT
	(SELECT COUNT(*) FROM (SELECT contingent_id FROM c UNION SELECT contingent_id FROM m) x) AS total_contingents,
	(SELECT COUNT(*) FROM t) AS total_teams,
	(SELECT COUNT(*) FROM c) AS total_contestants,
	(SELECT COUNT(*) FROM m) AS total_managers,
	(SELECT COUNT(*) FROM (
		SELECT contingent_id FROM c WHERE attendance_status = %[3]s
		UNION SELECT contingent_id FROM m WHERE attendance_status = %[3]s
	) x) AS present_contingents,
	(SELECT COUNT(*) FROM t WHERE attendance_status = %[3]s) AS present_teams,
	(SELECT COUNT(*) FROM c WHERE attendance_status = %[3]s) AS present_contestants,
	(SELECT COUNT(*) FROM m WHERE attendance_status = %[3]s) AS present_managers`,
		filter, teamFilter, present)

	args = append(append(args, args...), eventID)
	var stats attendance.Stats
	if err := repo.get(ctx, &stats, q, args...); err != nil {
		return attendance.Stats{}, errors.Wrap(err, "counting attendance")
	}
	return stats, nil
}

func (repo reportRepository) StateStats(ctx context.Context, eventID int, groups []string) ([]attendance.StateStats, error) {
	filter, args := groupFilter(eventID, groups)
	q := fmt.Sprintf(`
SELECT
	COALESCE(state_id, 0) AS state_id,
	COALESCE(MAX(state), 'Unknown State') AS state_name,
	COUNT(DISTINCT contingent_id) AS total_contingents,
	COUNT(DISTINCT team_id) AS total_teams,
	COUNT(*) AS total_contestants,
	COUNT(DISTINCT contingent_id) FILTER (WHERE attendance_status = %[2]s) AS present_contingents,
	COUNT(DISTINCT team_id) FILTER (WHERE attendance_status = %[2]s) AS present_teams,
	COUNT(*) FILTER (WHERE attendance_status = %[2]s) AS present_contestants
FROM attendance_contestant
WHERE event_id = ? %[1]s
GROUP BY COALESCE(state_id, 0)
ORDER BY state_name ASC`, filter, present)

	var stats []attendance.StateStats
	if err := repo.sel(ctx, &stats, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying state statistics")
	}
	return stats, nil
}

// presentTimes selects the check-in times of present contestants and managers.
func presentTimes(filter string) string {
	return fmt.Sprintf(`
	SELECT attendance_time FROM attendance_contestant WHERE event_id = ? AND attendance_status = %[2]s %[1]s
	UNION ALL
	SELECT attendance_time FROM attendance_manager WHERE event_id = ? AND attendance_status = %[2]s %[1]s`,
		filter, present)
}

func (repo reportRepository) DailyAttendance(ctx context.Context, eventID int, groups []string) ([]attendance.DailyCount, error) {
	filter, args := groupFilter(eventID, groups)
	q := fmt.Sprintf(`
SELECT to_char(p.attendance_time AT TIME ZONE %s, 'YYYY-MM-DD') AS date, COUNT(*) AS count
FROM (%s) p
WHERE p.attendance_time IS NOT NULL
GROUP BY 1
ORDER BY 1`, pq.QuoteLiteral(ReportTZ), presentTimes(filter))

	var counts []attendance.DailyCount
	if err := repo.sel(ctx, &counts, q, append(args, args...)...); err != nil {
		return nil, errors.Wrap(err, "querying daily attendance")
	}
	return counts, nil
}

func (repo reportRepository) HourlyAttendance(ctx context.Context, eventID int, groups []string) ([]attendance.HourlyCount, error) {
	filter, args := groupFilter(eventID, groups)
	q := fmt.Sprintf(`
SELECT EXTRACT(HOUR FROM p.attendance_time AT TIME ZONE %s)::int AS hour, COUNT(*) AS count
FROM (%s) p
WHERE p.attendance_time IS NOT NULL
GROUP BY 1
ORDER BY 1`, pq.QuoteLiteral(ReportTZ), presentTimes(filter))

	var counts []attendance.HourlyCount
	if err := repo.sel(ctx, &counts, q, append(args, args...)...); err != nil {
		return nil, errors.Wrap(err, "querying hourly attendance")
	}
	return counts, nil
}

const (
	snapshotContingents = `
SELECT DISTINCT ac.contingent_id AS id, COALESCE(c.name, '') AS name
FROM attendance_contingent ac LEFT JOIN contingent c ON c.id = ac.contingent_id
WHERE ac.event_id = $1 ORDER BY id`
	snapshotTeams = `
SELECT DISTINCT att.team_id AS id, COALESCE(t.name, '') AS name
FROM attendance_team att LEFT JOIN team t ON t.id = att.team_id
WHERE att.event_id = $1 ORDER BY id`
	snapshotContestants = `
SELECT DISTINCT ON (contestant_id) contestant_id AS id, COALESCE(name, '') AS name
FROM attendance_contestant WHERE event_id = $1 ORDER BY contestant_id, id`
	snapshotManagers = `
SELECT DISTINCT ON (manager_id) manager_id AS id, COALESCE(name, '') AS name
FROM attendance_manager WHERE event_id = $1 ORDER BY manager_id, id`
)

// Snapshot lists the distinct participants the event's attendance rows refer to.
func (repo reportRepository) Snapshot(ctx context.Context, eventID int) (attendance.Snapshot, error) {
	var snap attendance.Snapshot
	for _, s := range []struct {
		dst  *[]attendance.Ref
		q    string
		what string
	}{
		{&snap.Contingents, snapshotContingents, "contingents"},
		{&snap.Teams, snapshotTeams, "teams"},
		{&snap.Contestants, snapshotContestants, "contestants"},
		{&snap.Managers, snapshotManagers, "managers"},
	} {
		if err := repo.db.SelectContext(ctx, s.dst, s.q, eventID); err != nil {
			return attendance.Snapshot{}, errors.Wrapf(err, "listing attendance %s", s.what)
		}
	}
	return snap, nil
}

func (repo reportRepository) LastSyncDate(ctx context.Context, eventID int) (*time.Time, error) {
	var last sql.NullTime
	err := repo.db.GetContext(ctx, &last, `
SELECT MAX(updated_at) FROM (
	SELECT updated_at FROM attendance_contingent WHERE event_id = $1
	UNION ALL SELECT updated_at FROM attendance_team WHERE event_id = $1
	UNION ALL SELECT updated_at FROM attendance_contestant WHERE event_id = $1
	UNION ALL SELECT updated_at FROM attendance_manager WHERE event_id = $1
) u`, eventID)
	if err != nil {
		return nil, errors.Wrap(err, "querying last sync date")
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time.UTC()
	return &t, nil
}

const (
	exportContingents = `
SELECT ac.contingent_id, COALESCE(c.name, '') AS name, COALESCE(ac.state, '') AS state,
	ac.attendance_status, ac.attendance_time
FROM attendance_contingent ac LEFT JOIN contingent c ON c.id = ac.contingent_id
WHERE ac.event_id = $1 ORDER BY name, ac.contingent_id`
	exportTeams = `
SELECT att.team_id, COALESCE(t.name, '') AS name, COALESCE(c.name, '') AS contingent,
	COALESCE(att.state, '') AS state, att.attendance_status, att.attendance_time
FROM attendance_team att
LEFT JOIN team t ON t.id = att.team_id
LEFT JOIN contingent c ON c.id = att.contingent_id
WHERE att.event_id = $1 ORDER BY contingent, name, att.team_id`
	exportContestants = `
SELECT ac.contestant_id, COALESCE(ac.name, '') AS name, COALESCE(ac.ic, '') AS ic,
	COALESCE(t.name, '') AS team, COALESCE(c.name, '') AS contingent,
	COALESCE(ac.contest_name, '') AS contest_name, COALESCE(ac.contest_group, '') AS contest_group,
	COALESCE(ac.state, '') AS state, ac.attendance_status, ac.attendance_time
FROM attendance_contestant ac
LEFT JOIN team t ON t.id = ac.team_id
LEFT JOIN contingent c ON c.id = ac.contingent_id
WHERE ac.event_id = $1 ORDER BY contingent, team, name, ac.contestant_id`
	exportManagers = `
SELECT am.manager_id, COALESCE(am.name, '') AS name, COALESCE(am.email, '') AS email,
	COALESCE(c.name, '') AS contingent, COALESCE(am.state, '') AS state,
	am.email_status, am.attendance_status, am.attendance_time
FROM attendance_manager am
LEFT JOIN contingent c ON c.id = am.contingent_id
WHERE am.event_id = $1 ORDER BY contingent, name, am.manager_id`
)

func (repo reportRepository) ExportRows(ctx context.Context, eventID int) (attendance.ExportData, error) {
	var data attendance.ExportData
	if err := repo.db.SelectContext(ctx, &data.Contingents, exportContingents, eventID); err != nil {
		return attendance.ExportData{}, errors.Wrap(err, "exporting contingents")
	}
	if err := repo.db.SelectContext(ctx, &data.Teams, exportTeams, eventID); err != nil {
		return attendance.ExportData{}, errors.Wrap(err, "exporting teams")
	}
	if err := repo.db.SelectContext(ctx, &data.Contestants, exportContestants, eventID); err != nil {
		return attendance.ExportData{}, errors.Wrap(err, "exporting contestants")
	}
	if err := repo.db.SelectContext(ctx, &data.Managers, exportManagers, eventID); err != nil {
		return attendance.ExportData{}, errors.Wrap(err, "exporting managers")
	}
	return data, nil
}
