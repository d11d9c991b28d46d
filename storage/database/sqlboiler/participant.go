package boiledrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
	"github.com/volatiletech/sqlboiler/v4/queries"
	"github.com/volatiletech/sqlboiler/v4/queries/qm"
	"github.com/volatiletech/strmangle"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/participant"
)

// contingentSelect selects a contingent with its institutions, as bound by contingentRow.
var contingentSelect = []string{
	"c.id AS c_id", "c.name AS c_name", "c.contingent_type AS c_type", "c.logo_url AS c_logo_url",
	"c.created_at AS c_created_at", "c.updated_at AS c_updated_at",
	"s.id AS s_id", "s.name AS s_name", "s.ppd AS s_ppd", "s.state_id AS s_state_id", "ss.name AS s_state_name", "ss.zone_id AS s_zone_id",
	"h.id AS h_id", "h.name AS h_name", "h.state_id AS h_state_id", "hs.name AS h_state_name", "hs.zone_id AS h_zone_id",
	"i.id AS i_id", "i.name AS i_name", "i.state_id AS i_state_id", "ist.name AS i_state_name", "ist.zone_id AS i_zone_id",
}

// contingentJoins joins the institutions of the contingent aliased "c".
var contingentJoins = []qm.QueryMod{
	qm.LeftOuterJoin("school s ON s.id = c.school_id"),
	qm.LeftOuterJoin("state ss ON ss.id = s.state_id"),
	qm.LeftOuterJoin("higher_institution h ON h.id = c.higher_inst_id"),
	qm.LeftOuterJoin("state hs ON hs.id = h.state_id"),
	qm.LeftOuterJoin("independent i ON i.id = c.independent_id"),
	qm.LeftOuterJoin("state ist ON ist.id = i.state_id"),
}

var (
	managerColumns    = []string{"id", "name", "ic", "email", "phone", "contingent_id", "created_at", "updated_at"}
	contestantColumns = []string{"id", "name", "ic", "email", "gender", "age", "edu_level", "class_grade", "contingent_id", "created_at", "updated_at"}
)

type institutionCols struct {
	ID        null.Int
	Name      null.String
	PPD       null.String
	StateID   null.Int
	StateName null.String
	ZoneID    null.Int
}

func (ic institutionCols) unboil() *participant.Institution {
	if !ic.ID.Valid {
		return nil
	}
	return &participant.Institution{
		ID:        ic.ID.Int,
		Name:      ic.Name.String,
		PPD:       ic.PPD.String,
		StateID:   ic.StateID.Ptr(),
		StateName: ic.StateName.String,
		ZoneID:    ic.ZoneID.Ptr(),
	}
}

type contingentRow struct {
	ID        int         `boil:"c_id"`
	Name      string      `boil:"c_name"`
	Type      string      `boil:"c_type"`
	LogoURL   null.String `boil:"c_logo_url"`
	CreatedAt time.Time   `boil:"c_created_at"`
	UpdatedAt time.Time   `boil:"c_updated_at"`

	SchoolID        null.Int    `boil:"s_id"`
	SchoolName      null.String `boil:"s_name"`
	SchoolPPD       null.String `boil:"s_ppd"`
	SchoolStateID   null.Int    `boil:"s_state_id"`
	SchoolStateName null.String `boil:"s_state_name"`
	SchoolZoneID    null.Int    `boil:"s_zone_id"`

	HigherID        null.Int    `boil:"h_id"`
	HigherName      null.String `boil:"h_name"`
	HigherStateID   null.Int    `boil:"h_state_id"`
	HigherStateName null.String `boil:"h_state_name"`
	HigherZoneID    null.Int    `boil:"h_zone_id"`

	IndepID        null.Int    `boil:"i_id"`
	IndepName      null.String `boil:"i_name"`
	IndepStateID   null.Int    `boil:"i_state_id"`
	IndepStateName null.String `boil:"i_state_name"`
	IndepZoneID    null.Int    `boil:"i_zone_id"`
}

func (r contingentRow) unboil() participant.Contingent {
	return participant.Contingent{
		ID:             r.ID,
		Name:           r.Name,
		ContingentType: r.Type,
		LogoURL:        r.LogoURL.String,
		School: institutionCols{
			ID: r.SchoolID, Name: r.SchoolName, PPD: r.SchoolPPD,
			StateID: r.SchoolStateID, StateName: r.SchoolStateName, ZoneID: r.SchoolZoneID,
		}.unboil(),
		HigherInstitution: institutionCols{
			ID: r.HigherID, Name: r.HigherName,
			StateID: r.HigherStateID, StateName: r.HigherStateName, ZoneID: r.HigherZoneID,
		}.unboil(),
		Independent: institutionCols{
			ID: r.IndepID, Name: r.IndepName,
			StateID: r.IndepStateID, StateName: r.IndepStateName, ZoneID: r.IndepZoneID,
		}.unboil(),
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

type managerRow struct {
	ID           int         `boil:"id"`
	Name         string      `boil:"name"`
	IC           null.String `boil:"ic"`
	Email        null.String `boil:"email"`
	Phone        null.String `boil:"phone"`
	ContingentID int         `boil:"contingent_id"`
	CreatedAt    time.Time   `boil:"created_at"`
	UpdatedAt    time.Time   `boil:"updated_at"`

	// set when selected through manager_team
	TeamID int `boil:"team_id"`
}

func (r managerRow) unboil() participant.Manager {
	return participant.Manager{
		ID:           r.ID,
		Name:         r.Name,
		IC:           r.IC.String,
		Email:        r.Email.String,
		Phone:        r.Phone.String,
		ContingentID: r.ContingentID,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type contestantRow struct {
	ID           int         `boil:"id"`
	Name         string      `boil:"name"`
	IC           null.String `boil:"ic"`
	Email        null.String `boil:"email"`
	Gender       null.String `boil:"gender"`
	Age          null.Int    `boil:"age"`
	EduLevel     null.String `boil:"edu_level"`
	ClassGrade   null.String `boil:"class_grade"`
	ContingentID int         `boil:"contingent_id"`
	CreatedAt    time.Time   `boil:"created_at"`
	UpdatedAt    time.Time   `boil:"updated_at"`

	// set when selected through team_member
	TeamID int `boil:"team_id"`
}

func boilContestant(c participant.Contestant) contestantRow {
	return contestantRow{
		ID:           c.ID,
		Name:         c.Name,
		IC:           nullString(c.IC),
		Email:        nullString(c.Email),
		Gender:       nullString(c.Gender),
		Age:          null.IntFromPtr(c.Age),
		EduLevel:     nullString(c.EduLevel),
		ClassGrade:   nullString(c.ClassGrade),
		ContingentID: c.ContingentID,
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

func (r contestantRow) values() []interface{} {
	return []interface{}{r.Name, r.IC, r.Email, r.Gender, r.Age, r.EduLevel, r.ClassGrade, r.ContingentID, r.CreatedAt, r.UpdatedAt}
}

func (r contestantRow) unboil() participant.Contestant {
	return participant.Contestant{
		ID:           r.ID,
		Name:         r.Name,
		IC:           r.IC.String,
		Email:        r.Email.String,
		Gender:       r.Gender.String,
		Age:          r.Age.Ptr(),
		EduLevel:     r.EduLevel.String,
		ClassGrade:   r.ClassGrade.String,
		ContingentID: r.ContingentID,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

type teamRow struct {
	ID           int       `boil:"id"`
	Name         string    `boil:"name"`
	ContingentID int       `boil:"contingent_id"`
	MemberCount  int       `boil:"member_count"`
	CreatedAt    time.Time `boil:"created_at"`
	UpdatedAt    time.Time `boil:"updated_at"`
}

func (r teamRow) unboil() participant.Team {
	return participant.Team{
		ID:           r.ID,
		Name:         r.Name,
		ContingentID: r.ContingentID,
		MemberCount:  r.MemberCount,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

var teamSelect = []string{
	"t.id", "t.name", "t.contingent_id", "t.created_at", "t.updated_at",
	"(SELECT COUNT(*) FROM team_member tm WHERE tm.team_id = t.id) AS member_count",
}

type participantRepository struct {
	repo
}

var _ participant.Repository = (*participantRepository)(nil)

func NewParticipantRepository(exec core.DBExecutor) *participantRepository {
	return &participantRepository{repo{exec: exec}}
}

func (repo participantRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return participant.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func contingentFilterMods(filter *participant.ContingentFilter) []qm.QueryMod {
	mods := append([]qm.QueryMod{qm.From("contingent c")}, contingentJoins...)
	if filter == nil {
		return mods
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		mods = append(mods, qm.Expr(qm.Where(
			"c.name ILIKE ? OR s.name ILIKE ? OR h.name ILIKE ? OR i.name ILIKE ?", val, val, val, val)))
	}
	if filter.StateID > 0 {
		mods = append(mods, qm.Where("COALESCE(s.state_id, h.state_id, i.state_id) = ?", filter.StateID))
	}
	return mods
}

func (repo participantRepository) QueryContingents(ctx context.Context, filter *participant.ContingentFilter, page core.Pagination, exec ...core.DBExecutor) ([]participant.Contingent, int, error) {
	exe := repo.getExec(exec)
	mods := contingentFilterMods(filter)

	total, err := count(ctx, exe, mods...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting contingents")
	}

	mods = append(mods, qm.Select(contingentSelect...), qm.OrderBy("c.name ASC, c.id ASC"))
	mods = append(mods, paginate(page)...)
	var rows []contingentRow
	if err = all(ctx, exe, &rows, mods...); err != nil {
		return nil, 0, errors.Wrap(err, "querying contingents")
	}
	items := make([]participant.Contingent, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.unboil())
	}
	return items, total, nil
}

func (repo participantRepository) GetContingent(ctx context.Context, id int, exec ...core.DBExecutor) (participant.Contingent, error) {
	mods := append(contingentFilterMods(nil), qm.Select(contingentSelect...), qm.Where("c.id = ?", id))
	var r contingentRow
	if err := one(ctx, repo.getExec(exec), &r, mods...); err != nil {
		return participant.Contingent{}, repo.trapNoRowsErr(err, "finding contingent")
	}
	return r.unboil(), nil
}

func (repo participantRepository) ContingentManagers(ctx context.Context, contingentID int, exec ...core.DBExecutor) ([]participant.Manager, error) {
	var rows []managerRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(managerColumns...), qm.From("manager"),
		qm.Where("contingent_id = ?", contingentID), qm.OrderBy("name ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying contingent managers")
	}
	managers := make([]participant.Manager, 0, len(rows))
	for _, r := range rows {
		managers = append(managers, r.unboil())
	}
	return managers, nil
}

func (repo participantRepository) ContingentTeams(ctx context.Context, contingentID int, exec ...core.DBExecutor) ([]participant.Team, error) {
	var rows []teamRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select(teamSelect...), qm.From("team t"),
		qm.Where("t.contingent_id = ?", contingentID), qm.OrderBy("t.name ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying contingent teams")
	}
	teams := make([]participant.Team, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.unboil())
	}
	return teams, nil
}

func (repo participantRepository) GetTeam(ctx context.Context, id int, exec ...core.DBExecutor) (participant.Team, error) {
	var r teamRow
	err := one(ctx, repo.getExec(exec), &r, qm.Select(teamSelect...), qm.From("team t"), qm.Where("t.id = ?", id))
	if err != nil {
		return participant.Team{}, repo.trapNoRowsErr(err, "finding team")
	}
	return r.unboil(), nil
}

func (repo participantRepository) TeamMembers(ctx context.Context, teamIDs []int, exec ...core.DBExecutor) (map[int][]participant.Contestant, error) {
	members := make(map[int][]participant.Contestant, len(teamIDs))
	if len(teamIDs) == 0 {
		return members, nil
	}
	var rows []contestantRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select("tm.team_id", "c.id", "c.name", "c.ic", "c.email", "c.gender", "c.age", "c.edu_level",
			"c.class_grade", "c.contingent_id", "c.created_at", "c.updated_at"),
		qm.From("team_member tm"),
		qm.InnerJoin("contestant c ON c.id = tm.contestant_id"),
		qm.WhereIn("tm.team_id IN ?", intArgs(teamIDs)...),
		qm.OrderBy("c.name ASC, c.id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying team members")
	}
	for _, r := range rows {
		members[r.TeamID] = append(members[r.TeamID], r.unboil())
	}
	return members, nil
}

func (repo participantRepository) TeamManagers(ctx context.Context, teamIDs []int, exec ...core.DBExecutor) (map[int][]participant.Manager, error) {
	managers := make(map[int][]participant.Manager, len(teamIDs))
	if len(teamIDs) == 0 {
		return managers, nil
	}
	var rows []managerRow
	err := all(ctx, repo.getExec(exec), &rows,
		qm.Select("mt.team_id", "m.id", "m.name", "m.ic", "m.email", "m.phone", "m.contingent_id", "m.created_at", "m.updated_at"),
		qm.From("manager_team mt"),
		qm.InnerJoin("manager m ON m.id = mt.manager_id"),
		qm.WhereIn("mt.team_id IN ?", intArgs(teamIDs)...),
		qm.OrderBy("m.name ASC, m.id ASC"))
	if err != nil {
		return nil, errors.Wrap(err, "querying team managers")
	}
	for _, r := range rows {
		managers[r.TeamID] = append(managers[r.TeamID], r.unboil())
	}
	return managers, nil
}

func (repo participantRepository) QueryContestants(ctx context.Context, contingentID int, filter *participant.ContestantFilter, page core.Pagination, exec ...core.DBExecutor) ([]participant.Contestant, int, error) {
	exe := repo.getExec(exec)
	mods := []qm.QueryMod{qm.From("contestant"), qm.Where("contingent_id = ?", contingentID)}
	if filter != nil && filter.Search != "" {
		val := "%" + filter.Search + "%"
		mods = append(mods, qm.Expr(qm.Where("name ILIKE ? OR ic ILIKE ? OR email ILIKE ?", val, val, val)))
	}

	total, err := count(ctx, exe, mods...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting contestants")
	}

	mods = append(mods, qm.Select(contestantColumns...), qm.OrderBy("name ASC, id ASC"))
	mods = append(mods, paginate(page)...)
	var rows []contestantRow
	if err = all(ctx, exe, &rows, mods...); err != nil {
		return nil, 0, errors.Wrap(err, "querying contestants")
	}
	items := make([]participant.Contestant, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.unboil())
	}
	return items, total, nil
}

func (repo participantRepository) GetContestant(ctx context.Context, id int, exec ...core.DBExecutor) (participant.Contestant, error) {
	var r contestantRow
	err := one(ctx, repo.getExec(exec), &r, qm.Select(contestantColumns...), qm.From("contestant"), qm.Where("id = ?", id))
	if err != nil {
		return participant.Contestant{}, repo.trapNoRowsErr(err, "finding contestant")
	}
	return r.unboil(), nil
}

func (repo participantRepository) CreateContestant(ctx context.Context, c participant.Contestant, exec ...core.DBExecutor) (participant.Contestant, error) {
	r := boilContestant(c)
	q := insertQuery("contestant", contestantColumns[1:], "id")
	if err := queries.Raw(q, r.values()...).QueryRowContext(ctx, repo.getExec(exec)).Scan(&r.ID); err != nil {
		return participant.Contestant{}, errors.Wrap(err, "inserting contestant")
	}
	return r.unboil(), nil
}

func (repo participantRepository) UpdateContestant(ctx context.Context, c participant.Contestant, exec ...core.DBExecutor) (participant.Contestant, error) {
	r := boilContestant(c)
	q := updateQuery("contestant", contestantColumns[1:], "id")
	res, err := queries.Raw(q, append(r.values(), r.ID)...).ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return participant.Contestant{}, errors.Wrap(err, "updating contestant")
	}
	if err = checkAffected(res, participant.ErrNotFound); err != nil {
		return participant.Contestant{}, err
	}
	return r.unboil(), nil
}

func (repo participantRepository) DeleteContestant(ctx context.Context, id int, exec ...core.DBExecutor) error {
	q := newQuery(qm.From("contestant"), qm.Where("id = ?", id))
	queries.SetDelete(q)
	res, err := q.ExecContext(ctx, repo.getExec(exec))
	if err != nil {
		return errors.Wrap(err, "deleting contestant")
	}
	return checkAffected(res, participant.ErrNotFound)
}

type endlistRow struct {
	TeamID           int         `boil:"team_id"`
	TeamName         string      `boil:"team_name"`
	Status           string      `boil:"status"`
	RegistrationDate time.Time   `boil:"registration_date"`
	ContestID        int         `boil:"contest_id"`
	ContestCode      null.String `boil:"contest_code"`
	ContestName      string      `boil:"contest_name"`
	TargetGroupID    null.Int    `boil:"tg_id"`
	TargetGroupName  null.String `boil:"tg_name"`
	SchoolLevel      null.String `boil:"tg_school_level"`
	MinAge           null.Int    `boil:"tg_min_age"`
	MaxAge           null.Int    `boil:"tg_max_age"`

	Contingent contingentRow `boil:",bind"`
}

func (r endlistRow) unboil() participant.EndlistTeam {
	return participant.EndlistTeam{
		TeamID:           r.TeamID,
		TeamName:         r.TeamName,
		Status:           r.Status,
		RegistrationDate: r.RegistrationDate.UTC(),
		ContestID:        r.ContestID,
		ContestCode:      r.ContestCode.String,
		ContestName:      r.ContestName,
		TargetGroup: participant.TargetGroup{
			ID:          r.TargetGroupID.Int,
			Name:        r.TargetGroupName.String,
			SchoolLevel: r.SchoolLevel.String,
			MinAge:      r.MinAge.Ptr(),
			MaxAge:      r.MaxAge.Ptr(),
		},
		Contingent: r.Contingent.unboil(),
	}
}

func endlistMods(eventID int) []qm.QueryMod {
	return []qm.QueryMod{
		qm.From("event_contest_team ect"),
		qm.InnerJoin("event_contest ec ON ec.id = ect.event_contest_id"),
		qm.InnerJoin("contest ct ON ct.id = ec.contest_id"),
		qm.LeftOuterJoin("target_group tg ON tg.id = ct.target_group_id"),
		qm.InnerJoin("team t ON t.id = ect.team_id"),
		qm.InnerJoin("contingent c ON c.id = t.contingent_id"),
		qm.Where("ec.event_id = ?", eventID),
		qm.WhereIn("ect.status IN ?", stringArgs(participant.EndlistStatuses)...),
	}
}

func (repo participantRepository) EndlistTeams(ctx context.Context, eventID, limit, offset int, exec ...core.DBExecutor) ([]participant.EndlistTeam, error) {
	mods := append(endlistMods(eventID), contingentJoins...)
	mods = append(mods,
		qm.Select(append([]string{
			"t.id AS team_id", "t.name AS team_name", "ect.status", "ect.created_at AS registration_date",
			"ct.id AS contest_id", "ct.code AS contest_code", "ct.name AS contest_name",
			"tg.id AS tg_id", "tg.name AS tg_name", "tg.school_level AS tg_school_level",
			"tg.min_age AS tg_min_age", "tg.max_age AS tg_max_age",
		}, contingentSelect...)...),
		qm.OrderBy("t.id ASC, ect.id ASC"),
	)
	if limit > 0 {
		mods = append(mods, qm.Limit(limit))
	}
	if offset > 0 {
		mods = append(mods, qm.Offset(offset))
	}

	var rows []endlistRow
	if err := all(ctx, repo.getExec(exec), &rows, mods...); err != nil {
		return nil, errors.Wrap(err, "querying endlist teams")
	}
	teams := make([]participant.EndlistTeam, 0, len(rows))
	for _, r := range rows {
		teams = append(teams, r.unboil())
	}
	return teams, nil
}

func (repo participantRepository) CountEndlistTeams(ctx context.Context, eventID int, exec ...core.DBExecutor) (int, error) {
	total, err := count(ctx, repo.getExec(exec), endlistMods(eventID)...)
	if err != nil {
		return 0, errors.Wrap(err, "counting endlist teams")
	}
	return total, nil
}

const endlistContingentsQuery = `
WITH et AS (
	SELECT DISTINCT t.id AS team_id, t.contingent_id
	FROM event_contest_team ect
	INNER JOIN event_contest ec ON ec.id = ect.event_contest_id
	INNER JOIN team t ON t.id = ect.team_id
	WHERE ec.event_id = $1 AND ect.status IN (%s)
)
SELECT
	c.id, c.name, c.contingent_type,
	COALESCE(CASE c.contingent_type
		WHEN 'SCHOOL' THEN s.name
		WHEN 'HIGHER_INSTITUTION' THEN h.name
		WHEN 'INDEPENDENT' THEN i.name
	END, 'Unknown') AS institution_name,
	COALESCE(CASE c.contingent_type
		WHEN 'SCHOOL' THEN ss.name
		WHEN 'HIGHER_INSTITUTION' THEN hs.name
		WHEN 'INDEPENDENT' THEN ist.name
	END, 'Unknown State') AS state_name,
	(SELECT COUNT(*) FROM et WHERE et.contingent_id = c.id) AS team_count,
	(SELECT COUNT(DISTINCT tm.contestant_id) FROM team_member tm
		INNER JOIN et ON et.team_id = tm.team_id WHERE et.contingent_id = c.id) AS contestant_count,
	(SELECT COUNT(*) FROM attendance_team att
		INNER JOIN et ON et.team_id = att.team_id WHERE att.event_id = $1 AND et.contingent_id = c.id) AS synced_team_count,
	(SELECT MAX(ac.updated_at) FROM attendance_contingent ac
		WHERE ac.event_id = $1 AND ac.contingent_id = c.id) AS last_sync_date
FROM contingent c
LEFT JOIN school s ON s.id = c.school_id
LEFT JOIN state ss ON ss.id = s.state_id
LEFT JOIN higher_institution h ON h.id = c.higher_inst_id
LEFT JOIN state hs ON hs.id = h.state_id
LEFT JOIN independent i ON i.id = c.independent_id
LEFT JOIN state ist ON ist.id = i.state_id
WHERE c.id IN (SELECT contingent_id FROM et)
ORDER BY institution_name ASC, c.name ASC`

type endlistContingentRow struct {
	ID              int       `boil:"id"`
	Name            string    `boil:"name"`
	ContingentType  string    `boil:"contingent_type"`
	InstitutionName string    `boil:"institution_name"`
	StateName       string    `boil:"state_name"`
	TeamCount       int       `boil:"team_count"`
	ContestantCount int       `boil:"contestant_count"`
	SyncedTeamCount int       `boil:"synced_team_count"`
	LastSyncDate    null.Time `boil:"last_sync_date"`
}

func (repo participantRepository) EndlistContingents(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]participant.EndlistContingent, error) {
	args := append([]interface{}{eventID}, stringArgs(participant.EndlistStatuses)...)
	var rows []endlistContingentRow
	q := fmt.Sprintf(endlistContingentsQuery, strmangle.Placeholders(true, len(participant.EndlistStatuses), 2, 1))
	if err := queries.Raw(q, args...).Bind(ctx, repo.getExec(exec), &rows); err != nil {
		return nil, errors.Wrap(err, "querying endlist contingents")
	}
	items := make([]participant.EndlistContingent, 0, len(rows))
	for _, r := range rows {
		ec := participant.EndlistContingent{
			ID:              r.ID,
			Name:            r.Name,
			ContingentType:  r.ContingentType,
			InstitutionName: r.InstitutionName,
			StateName:       r.StateName,
			TeamCount:       r.TeamCount,
			ContestantCount: r.ContestantCount,
			SyncedTeamCount: r.SyncedTeamCount,
		}
		if r.LastSyncDate.Valid {
			t := r.LastSyncDate.Time.UTC()
			ec.LastSyncDate = &t
		}
		ec.SetSyncState()
		items = append(items, ec)
	}
	return items, nil
}
