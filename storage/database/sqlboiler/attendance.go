package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/strmangle"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
)

var (
	recordColumns = []string{
		"hashcode", "contingent_id", "event_id", "state_id", "zone_id", "state",
		"attendance_status", "attendance_date", "attendance_time", "created_at", "updated_at",
	}
	// refreshed when a sync meets an existing row; attendance is left untouched
	recordRefreshColumns = []string{"state_id", "zone_id", "state", "updated_at"}

	endpointColumns = []string{"id", "event_id", "endpointhash", "kind", "passcode_hash", "created_at"}
	logColumns      = []string{"id", "event_id", "participant_type", "participant_id", "check_in_time", "method", "endpoint_hash", "created_at"}
)

func withColumns(cols []string, extra ...string) []string {
	return append(append(make([]string, 0, len(cols)+len(extra)), cols...), extra...)
}

func selectColumns(extra ...string) []string {
	return withColumns([]string{"id"}, withColumns(recordColumns, extra...)...)
}

type recordRow struct {
	ID               int         `boil:"id"`
	Hashcode         string      `boil:"hashcode"`
	ContingentID     int         `boil:"contingent_id"`
	EventID          int         `boil:"event_id"`
	StateID          null.Int    `boil:"state_id"`
	ZoneID           null.Int    `boil:"zone_id"`
	State            null.String `boil:"state"`
	AttendanceStatus string      `boil:"attendance_status"`
	AttendanceDate   null.Time   `boil:"attendance_date"`
	AttendanceTime   null.Time   `boil:"attendance_time"`
	CreatedAt        time.Time   `boil:"created_at"`
	UpdatedAt        time.Time   `boil:"updated_at"`
}

func boilRecord(r attendance.Record) recordRow {
	status := r.AttendanceStatus
	if status == "" {
		status = attendance.StatusNotPresent
	}
	return recordRow{
		ID:               r.ID,
		Hashcode:         r.Hashcode,
		ContingentID:     r.ContingentID,
		EventID:          r.EventID,
		StateID:          null.IntFromPtr(r.StateID),
		ZoneID:           null.IntFromPtr(r.ZoneID),
		State:            nullString(r.State),
		AttendanceStatus: status,
		AttendanceDate:   null.TimeFromPtr(r.AttendanceDate),
		AttendanceTime:   null.TimeFromPtr(r.AttendanceTime),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r recordRow) values() []interface{} {
	return []interface{}{
		r.Hashcode, r.ContingentID, r.EventID, r.StateID, r.ZoneID, r.State,
		r.AttendanceStatus, r.AttendanceDate, r.AttendanceTime, r.CreatedAt, r.UpdatedAt,
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

func (r recordRow) unboil() attendance.Record {
	return attendance.Record{
		ID:               r.ID,
		Hashcode:         r.Hashcode,
		EventID:          r.EventID,
		ContingentID:     r.ContingentID,
		StateID:          r.StateID.Ptr(),
		ZoneID:           r.ZoneID.Ptr(),
		State:            r.State.String,
		AttendanceStatus: r.AttendanceStatus,
		AttendanceDate:   utcPtr(r.AttendanceDate),
		AttendanceTime:   utcPtr(r.AttendanceTime),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type teamRecordRow struct {
	recordRow `boil:",bind"`
	TeamID    int `boil:"team_id"`
}

type contestantRecordRow struct {
	recordRow    `boil:",bind"`
	ContestantID int         `boil:"contestant_id"`
	TeamID       int         `boil:"team_id"`
	Name         null.String `boil:"name"`
	IC           null.String `boil:"ic"`
	ContestGroup null.String `boil:"contest_group"`
	ContestID    null.Int    `boil:"contest_id"`
	ContestName  null.String `boil:"contest_name"`
}

func (r contestantRecordRow) unboil() attendance.ContestantRecord {
	return attendance.ContestantRecord{
		Record:       r.recordRow.unboil(),
		ContestantID: r.ContestantID,
		TeamID:       r.TeamID,
		Name:         r.Name.String,
		IC:           r.IC.String,
		ContestGroup: r.ContestGroup.String,
		ContestID:    r.ContestID.Int,
		ContestName:  r.ContestName.String,
	}
}

type managerRecordRow struct {
	recordRow    `boil:",bind"`
	ManagerID    int         `boil:"manager_id"`
	Name         null.String `boil:"name"`
	IC           null.String `boil:"ic"`
	Email        null.String `boil:"email"`
	EmailStatus  string      `boil:"email_status"`
	ContestGroup null.String `boil:"contest_group"`
}

func (r managerRecordRow) unboil() attendance.ManagerRecord {
	return attendance.ManagerRecord{
		Record:       r.recordRow.unboil(),
		ManagerID:    r.ManagerID,
		Name:         r.Name.String,
		IC:           r.IC.String,
		Email:        r.Email.String,
		EmailStatus:  r.EmailStatus,
		ContestGroup: r.ContestGroup.String,
	}
}

var (
	contestantRecordColumns = []string{"contestant_id", "team_id", "name", "ic", "contest_group", "contest_id", "contest_name"}
	managerRecordColumns    = []string{"manager_id", "name", "ic", "email", "email_status", "contest_group"}
)

type endpointRow struct {
	ID           int       `boil:"id"`
	EventID      int       `boil:"event_id"`
	Endpointhash string    `boil:"endpointhash"`
	Kind         string    `boil:"kind"`
	PasscodeHash []byte    `boil:"passcode_hash"`
	CreatedAt    time.Time `boil:"created_at"`
}

func (r endpointRow) unboil() attendance.Endpoint {
	return attendance.Endpoint{
		ID:           r.ID,
		EventID:      r.EventID,
		Endpointhash: r.Endpointhash,
		Kind:         r.Kind,
		PasscodeHash: r.PasscodeHash,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

type logRow struct {
	ID              int         `boil:"id"`
	EventID         int         `boil:"event_id"`
	ParticipantType string      `boil:"participant_type"`
	ParticipantID   int         `boil:"participant_id"`
	CheckInTime     time.Time   `boil:"check_in_time"`
	Method          string      `boil:"method"`
	EndpointHash    null.String `boil:"endpoint_hash"`
	CreatedAt       time.Time   `boil:"created_at"`
}

func (r logRow) unboil() attendance.LogEntry {
	return attendance.LogEntry{
		ID:              r.ID,
		EventID:         r.EventID,
		ParticipantType: r.ParticipantType,
		ParticipantID:   r.ParticipantID,
		CheckInTime:     r.CheckInTime.UTC(),
		Method:          r.Method,
		EndpointHash:    r.EndpointHash.String,
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{repo{exec: exec}}
}

func (repo attendanceRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return attendance.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

// upsert inserts a row keyed by its hashcode, or refreshes refresh columns of the existing one.
// It reports whether the row was inserted.
func (repo attendanceRepository) upsert(ctx context.Context, exe core.DBExecutor, table string, cols, refresh []string, vals []interface{}) (bool, error) {
	sets := make([]string, 0, len(refresh))
	for _, col := range refresh {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", quote(col), quote(col)))
	}
	q := fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s RETURNING (xmax = 0) AS inserted",
		insertQuery(table, cols), quote("hashcode"), strings.Join(sets, ", "))

	var inserted bool
	if err := queries.Raw(q, vals...).QueryRowContext(ctx, exe).Scan(&inserted); err != nil {
		return false, errors.Wrapf(err, "upserting %s", table)
	}
	return inserted, nil
}

func (repo attendanceRepository) UpsertContingent(ctx context.Context, rec attendance.ContingentRecord, exec ...core.DBExecutor) (bool, error) {
	return repo.upsert(ctx, repo.getExec(exec), "attendance_contingent",
		recordColumns, recordRefreshColumns, boilRecord(rec.Record).values())
}

func (repo attendanceRepository) UpsertTeam(ctx context.Context, rec attendance.TeamRecord, exec ...core.DBExecutor) (bool, error) {
	return repo.upsert(ctx, repo.getExec(exec), "attendance_team",
		withColumns(recordColumns, "team_id"), recordRefreshColumns,
		append(boilRecord(rec.Record).values(), rec.TeamID))
}

func (repo attendanceRepository) UpsertContestant(ctx context.Context, rec attendance.ContestantRecord, exec ...core.DBExecutor) (bool, error) {
	vals := append(boilRecord(rec.Record).values(),
		rec.ContestantID, rec.TeamID, nullString(rec.Name), nullString(rec.IC),
		nullString(rec.ContestGroup), null.NewInt(rec.ContestID, rec.ContestID != 0), nullString(rec.ContestName))
	return repo.upsert(ctx, repo.getExec(exec), "attendance_contestant",
		withColumns(recordColumns, contestantRecordColumns...),
		withColumns(recordRefreshColumns, "team_id", "name", "ic", "contest_group", "contest_id", "contest_name"),
		vals)
}

func (repo attendanceRepository) UpsertManager(ctx context.Context, rec attendance.ManagerRecord, exec ...core.DBExecutor) (bool, error) {
	status := rec.EmailStatus
	if status == "" {
		status = attendance.EmailPending
	}
	vals := append(boilRecord(rec.Record).values(),
		rec.ManagerID, nullString(rec.Name), nullString(rec.IC), nullString(rec.Email), status, nullString(rec.ContestGroup))
	return repo.upsert(ctx, repo.getExec(exec), "attendance_manager",
		withColumns(recordColumns, managerRecordColumns...),
		withColumns(recordRefreshColumns, "name", "ic", "email", "contest_group"),
		vals)
}

func (repo attendanceRepository) CreateEndpoint(ctx context.Context, ep attendance.Endpoint, exec ...core.DBExecutor) (attendance.Endpoint, error) {
	r := endpointRow{
		EventID:      ep.EventID,
		Endpointhash: ep.Endpointhash,
		Kind:         ep.Kind,
		PasscodeHash: ep.PasscodeHash,
		CreatedAt:    ep.CreatedAt.UTC(),
	}
	q := insertQuery("attendance_endpoint", endpointColumns[1:], "id")
	err := queries.Raw(q, r.EventID, r.Endpointhash, r.Kind, r.PasscodeHash, r.CreatedAt).
		QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID)
	if err != nil {
		return attendance.Endpoint{}, errors.Wrap(err, "inserting attendance endpoint")
	}
	return r.unboil(), nil
}

func (repo attendanceRepository) GetEndpoint(ctx context.Context, eventID int, endpointhash string, exec ...core.DBExecutor) (attendance.Endpoint, error) {
	var r endpointRow
	err := one(ctx, repo.getExec(exec), &r,
		qm.Select(endpointColumns...), qm.From("attendance_endpoint"),
		qm.Where("event_id = ? AND endpointhash = ?", eventID, endpointhash))
	if err != nil {
		return attendance.Endpoint{}, repo.trapNoRowsErr(err, "finding attendance endpoint")
	}
	return r.unboil(), nil
}

func (repo attendanceRepository) ListEndpoints(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]attendance.Endpoint, error) {
	var rows []endpointRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(endpointColumns...), qm.From("attendance_endpoint"),
		qm.Where("event_id = ?", eventID), qm.OrderBy("created_at ASC, id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance endpoints")
	}
	endpoints := make([]attendance.Endpoint, 0, len(rows))
	for _, r := range rows {
		endpoints = append(endpoints, r.unboil())
	}
	return endpoints, nil
}

func (repo attendanceRepository) DeleteEndpoint(ctx context.Context, eventID, id int, exec ...core.DBExecutor) error {
	q := newQuery(qm.From("attendance_endpoint"), qm.Where("event_id = ? AND id = ?", eventID, id))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "deleting attendance endpoint")
	}
	return checkAffected(res, attendance.ErrEndpointNotFound)
}

func (repo attendanceRepository) FindManager(ctx context.Context, eventID int, hashcode string, exec ...core.DBExecutor) (attendance.ManagerRecord, error) {
	var r managerRecordRow
	err := one(ctx, repo.getExec(exec), &r,
		qm.Select(selectColumns(managerRecordColumns...)...), qm.From("attendance_manager"),
		qm.Where("event_id = ? AND hashcode = ?", eventID, hashcode))
	if err != nil {
		return attendance.ManagerRecord{}, repo.trapNoRowsErr(err, "finding attendance manager")
	}
	return r.unboil(), nil
}

func (repo attendanceRepository) FindContestant(ctx context.Context, eventID int, code string, exec ...core.DBExecutor) (attendance.ContestantRecord, error) {
	var r contestantRecordRow
	err := one(ctx, repo.getExec(exec), &r,
		qm.Select(selectColumns(contestantRecordColumns...)...), qm.From("attendance_contestant"),
		qm.Where("event_id = ?", eventID),
		qm.Expr(qm.Where("hashcode = ?", code), qm.Or("ic = ?", code)),
		qm.OrderBy("id ASC"))
	if err != nil {
		return attendance.ContestantRecord{}, repo.trapNoRowsErr(err, "finding attendance contestant")
	}
	return r.unboil(), nil
}

func (repo attendanceRepository) FindContingent(ctx context.Context, eventID int, hashcode string, exec ...core.DBExecutor) (attendance.ContingentRecord, error) {
	return repo.findContingent(ctx, repo.getExec(exec), qm.Where("event_id = ? AND hashcode = ?", eventID, hashcode))
}

func (repo attendanceRepository) GetContingentRecord(ctx context.Context, eventID, contingentID int, exec ...core.DBExecutor) (attendance.ContingentRecord, error) {
	return repo.findContingent(ctx, repo.getExec(exec), qm.Where("event_id = ? AND contingent_id = ?", eventID, contingentID))
}

func (repo attendanceRepository) findContingent(ctx context.Context, exe core.DBExecutor, where qm.QueryMod) (attendance.ContingentRecord, error) {
	var r recordRow
	err := one(ctx, exe, &r, qm.Select(selectColumns()...), qm.From("attendance_contingent"), where)
	if err != nil {
		return attendance.ContingentRecord{}, repo.trapNoRowsErr(err, "finding attendance contingent")
	}
	return attendance.ContingentRecord{Record: r.unboil()}, nil
}

// markPresent sets the rows of table matched by where, and not yet present, as present at at.
func (repo attendanceRepository) markPresent(ctx context.Context, exe core.DBExecutor, table string, at time.Time, where string, args ...interface{}) (int, error) {
	at = at.UTC()
	q := fmt.Sprintf(
		"UPDATE %s SET attendance_status = $1, attendance_date = $2, attendance_time = $2, updated_at = $2 WHERE attendance_status <> $1 AND %s",
		quote(table), where)
	res, err := queries.Raw(q, append([]interface{}{attendance.StatusPresent, at}, args...)...).ExecContext(ctx, exe)
	if err != nil {
		return 0, errors.Wrapf(err, "marking %s present", table)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo attendanceRepository) MarkManagerPresent(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	_, err := repo.markPresent(ctx, repo.getExec(exec), "attendance_manager", at, "id = $3", id)
	return err
}

func (repo attendanceRepository) MarkContestantPresent(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error {
	_, err := repo.markPresent(ctx, repo.getExec(exec), "attendance_contestant", at, "id = $3", id)
	return err
}

func (repo attendanceRepository) MarkContingentPresent(ctx context.Context, eventID, contingentID int, at time.Time, scope attendance.PresenceScope, exec ...core.DBExecutor) (attendance.PresenceCounts, error) {
	exe := repo.getExec(exec)
	where := "event_id = $3 AND contingent_id = $4"

	var (
		counts attendance.PresenceCounts
		err    error
	)
	if counts.Contingents, err = repo.markPresent(ctx, exe, "attendance_contingent", at, where, eventID, contingentID); err != nil {
		return counts, err
	}
	if counts.Teams, err = repo.markPresent(ctx, exe, "attendance_team", at, where, eventID, contingentID); err != nil {
		return counts, err
	}
	if counts.Contestants, err = repo.markPresent(ctx, exe, "attendance_contestant", at, where, eventID, contingentID); err != nil {
		return counts, err
	}
	if scope.Managers {
		if counts.Managers, err = repo.markPresent(ctx, exe, "attendance_manager", at, where, eventID, contingentID); err != nil {
			return counts, err
		}
	}
	return counts, nil
}

func (repo attendanceRepository) InsertLog(ctx context.Context, entry attendance.LogEntry, exec ...core.DBExecutor) (attendance.LogEntry, error) {
	r := logRow{
		EventID:         entry.EventID,
		ParticipantType: entry.ParticipantType,
		ParticipantID:   entry.ParticipantID,
		CheckInTime:     entry.CheckInTime.UTC(),
		Method:          entry.Method,
		EndpointHash:    nullString(entry.EndpointHash),
		CreatedAt:       entry.CreatedAt.UTC(),
	}
	if entry.CreatedAt.IsZero() {
		r.CreatedAt = r.CheckInTime
	}
	q := insertQuery("attendance_log", logColumns[1:], "id")
	err := queries.Raw(q, r.EventID, r.ParticipantType, r.ParticipantID, r.CheckInTime, r.Method, r.EndpointHash, r.CreatedAt).
		QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID)
	if err != nil {
		return attendance.LogEntry{}, errors.Wrap(err, "inserting attendance log")
	}
	return r.unboil(), nil
}

func (repo attendanceRepository) QueryLogs(ctx context.Context, eventID int, page core.Pagination, exec ...core.DBExecutor) ([]attendance.LogEntry, int, error) {
	exe := repo.getExec(exec)
	mods := []qm.QueryMod{qm.From("attendance_log"), qm.Where("event_id = ?", eventID)}

	total, err := count(ctx, exe, mods...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting attendance logs")
	}

	mods = append(mods, qm.Select(logColumns...), qm.OrderBy("check_in_time DESC, id DESC"))
	mods = append(mods, paginate(page)...)
	var rows []logRow
	if err = all(ctx, exe, &rows, mods...); err != nil {
		return nil, 0, errors.Wrap(err, "querying attendance logs")
	}
	entries := make([]attendance.LogEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.unboil())
	}
	return entries, total, nil
}

func (repo attendanceRepository) TeamRecords(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]attendance.TeamRecord, error) {
	var rows []teamRecordRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(selectColumns("team_id")...), qm.From("attendance_team"),
		qm.Where("event_id = ?", eventID), qm.OrderBy("id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance teams")
	}
	records := make([]attendance.TeamRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, attendance.TeamRecord{Record: r.recordRow.unboil(), TeamID: r.TeamID})
	}
	return records, nil
}

func (repo attendanceRepository) ContestantRecords(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]attendance.ContestantRecord, error) {
	var rows []contestantRecordRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(selectColumns(contestantRecordColumns...)...), qm.From("attendance_contestant"),
		qm.Where("event_id = ?", eventID), qm.OrderBy("id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying attendance contestants")
	}
	records := make([]attendance.ContestantRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.unboil())
	}
	return records, nil
}

func (repo attendanceRepository) deleteWhere(ctx context.Context, exe core.DBExecutor, table string, mods ...qm.QueryMod) (int, error) {
	q := newQuery(append([]qm.QueryMod{qm.From(table)}, mods...)...)
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, exe)
	if err != nil {
		return 0, errors.Wrapf(err, "deleting %s rows", table)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (repo attendanceRepository) DeleteTeamRecords(ctx context.Context, ids []int, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return repo.deleteWhere(ctx, repo.getExec(exec), "attendance_team", qm.WhereIn("id IN ?", intArgs(ids)...))
}

func (repo attendanceRepository) DeleteContestantRecords(ctx context.Context, ids []int, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return repo.deleteWhere(ctx, repo.getExec(exec), "attendance_contestant", qm.WhereIn("id IN ?", intArgs(ids)...))
}

func (repo attendanceRepository) DeleteTeamContestantRecords(ctx context.Context, eventID int, teamIDs []int, exec ...core.DBExecutor) (int, error) {
	if len(teamIDs) == 0 {
		return 0, nil
	}
	return repo.deleteWhere(ctx, repo.getExec(exec), "attendance_contestant",
		qm.Where("event_id = ?", eventID), qm.WhereIn("team_id IN ?", intArgs(teamIDs)...))
}

func (repo attendanceRepository) PendingManagers(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]attendance.ManagerRecord, error) {
	var rows []managerRecordRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(selectColumns(managerRecordColumns...)...), qm.From("attendance_manager"),
		qm.Where("event_id = ? AND email_status = ?", eventID, attendance.EmailPending),
		qm.OrderBy("id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying pending managers")
	}
	managers := make([]attendance.ManagerRecord, 0, len(rows))
	for _, r := range rows {
		managers = append(managers, r.unboil())
	}
	return managers, nil
}

func (repo attendanceRepository) SetManagerEmailStatus(ctx context.Context, ids []int, status string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q := fmt.Sprintf("UPDATE %s SET email_status = $1, updated_at = now() WHERE id IN (%s)",
		quote("attendance_manager"), strmangle.Placeholders(dialect.UseIndexPlaceholders, len(ids), 2, 1))
	_, err := queries.Raw(q, append([]interface{}{status}, intArgs(ids)...)...).ExecContext(ctx, repo.getExec(exec))
	return errors.Wrap(err, "setting manager email status")
}
