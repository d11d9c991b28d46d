package boiledrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/participant"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	testutil "github.com/syaifulazham/techlympics/tests"
)

func managerCodes(t *testing.T, repo attendance.Repository, reg testutil.Registry) (rahim, lim attendance.ManagerRecord) {
	t.Helper()
	pending, err := repo.PendingManagers(context.Background(), reg.EventID)
	require.NoError(t, err)
	found := 0
	for _, m := range pending {
		switch m.ManagerID {
		case reg.Rahim:
			rahim = m
			found++
		case reg.Lim:
			lim = m
			found++
		}
	}
	require.Equal(t, 2, found, "pending managers: %+v", pending)
	return rahim, lim
}

func TestParticipantRepository_endlist(t *testing.T) {
	db := testutil.PrepareDB(t)
	reg := testutil.SeedRegistry(t, db)
	repo := boiledrepos.NewParticipantRepository(db)
	ctx := context.Background()

	total, err := repo.CountEndlistTeams(ctx, reg.EventID)
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	teams, err := repo.EndlistTeams(ctx, reg.EventID, 0, 0)
	require.NoError(t, err)
	require.Len(t, teams, 4)
	var ids []int
	for _, tm := range teams {
		ids = append(ids, tm.TeamID)
	}
	assert.Equal(t, []int{reg.Alpha, reg.Bravo, reg.Charlie, reg.Delta}, ids)

	charlie := teams[2]
	assert.Equal(t, "SCR Scratch", charlie.ContestFullName())
	assert.Equal(t, "Kids", charlie.ContestGroup())
	assert.Equal(t, reg.Tanjung, charlie.Contingent.ID)
	assert.Equal(t, "Johor", charlie.Contingent.StateName())
	assert.Nil(t, charlie.Contingent.ZoneID())
	assert.Equal(t, participant.StatusAccepted, teams[1].Status)

	page, err := repo.EndlistTeams(ctx, reg.EventID, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, reg.Charlie, page[0].TeamID)

	members, err := repo.TeamMembers(ctx, []int{reg.Alpha, reg.Delta})
	require.NoError(t, err)
	assert.Len(t, members[reg.Alpha], 2)
	assert.Len(t, members[reg.Delta], 1)

	contingents, err := repo.EndlistContingents(ctx, reg.EventID)
	require.NoError(t, err)
	require.Len(t, contingents, 2)
	for _, c := range contingents {
		assert.True(t, c.NeedsSync, c.Name)
		assert.Zero(t, c.SyncedTeamCount, c.Name)
		if c.ID == reg.Melawati {
			assert.Equal(t, 2, c.TeamCount)
			assert.Equal(t, 3, c.ContestantCount)
			assert.Equal(t, "Selangor", c.StateName)
		}
	}
}

func TestAttendanceService_SyncChunk_Postgres(t *testing.T) {
	db := testutil.PrepareDB(t)
	reg := testutil.SeedRegistry(t, db)
	svc, _ := testutil.NewAttendanceService(t, db)
	ctx := context.Background()

	count, err := svc.Count(ctx, reg.EventID, 0)
	require.NoError(t, err)
	assert.Equal(t, attendance.CountResult{TotalTeams: 4, ChunkSize: 50, TotalChunks: 1}, count)

	res, err := svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)
	// Delta is on the endlist but Osman is too old for it
	assert.Equal(t, attendance.ChunkMetrics{
		ProcessedTeams: 3, NewContingents: 2, NewTeams: 3, NewContestants: 4, NewManagers: 2, Errors: []string{},
	}, res.Metrics)

	res, err = svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)
	assert.Equal(t, attendance.ChunkMetrics{
		ProcessedTeams: 3, UpdatedContingents: 2, UpdatedTeams: 3, UpdatedContestants: 4, UpdatedManagers: 2, Errors: []string{},
	}, res.Metrics)

	res, err = svc.SyncChunk(ctx, reg.EventID, 50, 50)
	require.NoError(t, err)
	assert.Equal(t, "No teams to process in this chunk", res.Message)

	status, err := svc.SyncStatus(ctx, reg.EventID)
	require.NoError(t, err)
	assert.True(t, status.IsSynced, "%+v", status)
	assert.Equal(t, attendance.EntityCounts{Contingents: 2, Teams: 3, Contestants: 4, Managers: 2}, status.ActualCounts)
	require.NotNil(t, status.LastSyncDate)

	repo := boiledrepos.NewAttendanceRepository(db)
	rahim, lim := managerCodes(t, repo, reg)
	assert.Equal(t, "Teens", rahim.ContestGroup)
	assert.Equal(t, "Kids", lim.ContestGroup)
	assert.Equal(t, "Selangor", rahim.State)
	assert.Equal(t, attendance.StatusNotPresent, rahim.AttendanceStatus)

	contingents, err := boiledrepos.NewParticipantRepository(db).EndlistContingents(ctx, reg.EventID)
	require.NoError(t, err)
	for _, c := range contingents {
		if c.ID == reg.Melawati {
			assert.Equal(t, 2, c.SyncedTeamCount)
			assert.True(t, c.IsSynced)
		}
	}
}

func TestAttendanceService_CheckIn_Postgres(t *testing.T) {
	db := testutil.PrepareDB(t)
	reg := testutil.SeedRegistry(t, db)
	svc, _ := testutil.NewAttendanceService(t, db)
	repo := boiledrepos.NewAttendanceRepository(db)
	ctx := context.Background()

	_, err := svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)
	rahim, lim := managerCodes(t, repo, reg)

	gate, err := svc.CreateEndpoint(ctx, reg.EventID, attendance.NewEndpoint{Kind: attendance.EndpointContingent, Passcode: "8421"})
	require.NoError(t, err)
	agent, err := svc.CreateEndpoint(ctx, reg.EventID, attendance.NewEndpoint{Kind: attendance.EndpointAgent, Passcode: "8421"})
	require.NoError(t, err)

	_, err = svc.ValidatePasscode(ctx, attendance.PasscodeRequest{EventID: reg.EventID, Endpointhash: gate.Endpointhash, Passcode: "8421"})
	assert.Equal(t, attendance.ErrEndpointNotFound, err)
	got, err := svc.ValidatePasscode(ctx, attendance.PasscodeRequest{EventID: reg.EventID, Endpointhash: agent.Endpointhash, Passcode: "8421"})
	require.NoError(t, err)
	assert.Equal(t, agent.ID, got.ID)

	_, err = svc.CheckIn(ctx, attendance.CheckInRequest{EventID: reg.EventID, Endpointhash: agent.Endpointhash, Hashcode: rahim.Hashcode})
	assert.Equal(t, attendance.ErrEndpointNotFound, err)

	res, err := svc.CheckIn(ctx, attendance.CheckInRequest{EventID: reg.EventID, Endpointhash: gate.Endpointhash, Hashcode: rahim.Hashcode})
	require.NoError(t, err)
	assert.Equal(t, attendance.PresenceCounts{Contingents: 1, Teams: 2, Contestants: 3, Managers: 1}, res.Updated)
	assert.Equal(t, reg.Melawati, res.ContingentID)

	found, err := repo.FindManager(ctx, reg.EventID, rahim.Hashcode)
	require.NoError(t, err)
	assert.True(t, found.Present())
	require.NotNil(t, found.AttendanceTime)
	assert.WithinDuration(t, res.CheckInTime, *found.AttendanceTime, time.Millisecond)

	// Tanjung is untouched
	tanjung, err := repo.GetContingentRecord(ctx, reg.EventID, reg.Tanjung)
	require.NoError(t, err)
	assert.False(t, tanjung.Present())

	res, err = svc.AgentCheckIn(ctx, attendance.AgentSession{EventID: reg.EventID, Endpointhash: agent.Endpointhash},
		attendance.AgentCheckInRequest{Code: lim.Hashcode, Method: attendance.MethodQRScan})
	require.NoError(t, err)
	assert.Equal(t, attendance.PresenceCounts{Contingents: 1, Teams: 1, Contestants: 1, Managers: 1}, res.Updated)

	_, err = svc.AgentCheckIn(ctx, attendance.AgentSession{EventID: reg.EventID, Endpointhash: agent.Endpointhash},
		attendance.AgentCheckInRequest{Code: lim.Hashcode, Method: attendance.MethodQRScan})
	assert.Equal(t, attendance.ErrDuplicateScan, err)
	_, err = svc.CheckIn(ctx, attendance.CheckInRequest{EventID: reg.EventID, Endpointhash: gate.Endpointhash, Hashcode: lim.Hashcode})
	assert.Equal(t, attendance.ErrAlreadyCheckedIn, err)

	logs, page, err := svc.Logs(ctx, reg.EventID, core.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, logs, 2)
	byType := map[string]int{}
	for _, l := range logs {
		byType[l.ParticipantType+"/"+l.EndpointHash] = l.ParticipantID
	}
	assert.Equal(t, map[string]int{
		attendance.ParticipantManager + "/" + gate.Endpointhash:  reg.Rahim,
		attendance.ParticipantManager + "/" + agent.Endpointhash: reg.Lim,
	}, byType)
}

func TestAttendanceService_SendManagerCodes_Postgres(t *testing.T) {
	db := testutil.PrepareDB(t)
	reg := testutil.SeedRegistry(t, db)
	svc, mailer := testutil.NewAttendanceService(t, db)
	repo := boiledrepos.NewAttendanceRepository(db)
	ctx := context.Background()

	_, err := svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)
	rahim, _ := managerCodes(t, repo, reg)

	res, err := svc.SendManagerCodes(ctx, reg.EventID)
	require.NoError(t, err)
	// Lim has no email address
	assert.Equal(t, attendance.SendCodesResult{Sent: 1, Failed: 1}, res)
	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "rahim@sekolah.my", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, rahim.Hashcode)

	statuses := map[int]string{}
	rows, err := db.Query(`SELECT manager_id, email_status FROM attendance_manager WHERE event_id = $1`, reg.EventID)
	require.NoError(t, err)
	for rows.Next() {
		var (
			id     int
			status string
		)
		require.NoError(t, rows.Scan(&id, &status))
		statuses[id] = status
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())
	assert.Equal(t, map[int]string{reg.Rahim: attendance.EmailSent, reg.Lim: attendance.EmailFailed}, statuses)

	pending, err := repo.PendingManagers(ctx, reg.EventID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// neither a SENT nor a FAILED manager is emailed again, and a re-sync keeps their status
	_, err = svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)
	res, err = svc.SendManagerCodes(ctx, reg.EventID)
	require.NoError(t, err)
	assert.Equal(t, attendance.SendCodesResult{}, res)
	assert.Len(t, mailer.Sent(), 1)
}

func TestAttendanceService_Cleanup_Postgres(t *testing.T) {
	db := testutil.PrepareDB(t)
	reg := testutil.SeedRegistry(t, db)
	svc, _ := testutil.NewAttendanceService(t, db)
	repo := boiledrepos.NewAttendanceRepository(db)
	ctx := context.Background()

	_, err := svc.SyncChunk(ctx, reg.EventID, 50, 0)
	require.NoError(t, err)

	// Bravo is withdrawn and Abu no longer fits the Teens age range
	_, err = db.Exec(`UPDATE event_contest_team SET status = 'REJECTED' WHERE team_id = $1`, reg.Bravo)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE contestant SET age = 30 WHERE id = $1`, reg.Abu)
	require.NoError(t, err)

	res, err := svc.Cleanup(ctx, reg.EventID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedTeams)
	assert.Equal(t, 1, res.DeletedTeamContestants)
	assert.Equal(t, 1, res.DeletedContestants)
	require.Len(t, res.Details, 2)
	assert.Equal(t, "team", res.Details[0].Type)
	assert.Equal(t, reg.Bravo, res.Details[0].ID)
	assert.Equal(t, attendance.CleanupDetail{
		Type: "contestant", ID: reg.Abu, Name: "Abu", Reason: "contestant is not an eligible member of an approved team",
	}, res.Details[1])

	teams, err := repo.TeamRecords(ctx, reg.EventID)
	require.NoError(t, err)
	var teamIDs []int
	for _, tr := range teams {
		teamIDs = append(teamIDs, tr.TeamID)
	}
	assert.ElementsMatch(t, []int{reg.Alpha, reg.Charlie}, teamIDs)

	contestants, err := repo.ContestantRecords(ctx, reg.EventID)
	require.NoError(t, err)
	var contestantIDs []int
	for _, cr := range contestants {
		contestantIDs = append(contestantIDs, cr.ContestantID)
	}
	assert.ElementsMatch(t, []int{reg.Ali, reg.Mei}, contestantIDs)

	res, err = svc.Cleanup(ctx, reg.EventID)
	require.NoError(t, err)
	assert.Zero(t, res.DeletedTeams+res.DeletedTeamContestants+res.DeletedContestants)
}
