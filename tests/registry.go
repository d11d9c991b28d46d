package testutil

import (
	"database/sql"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
	cachesvc "github.com/syaifulazham/techlympics/services/cache"
	emailsvc "github.com/syaifulazham/techlympics/services/email"
	exportsvc "github.com/syaifulazham/techlympics/services/export"
	logsvc "github.com/syaifulazham/techlympics/services/logger"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	sqlxrepos "github.com/syaifulazham/techlympics/storage/database/sqlx"
)

// Registry holds the ids of the rows inserted by SeedRegistry.
//
// The event has two contingents. Melawati (Selangor) registers Alpha (Ali, Abu) as APPROVED
// and Bravo (Siti) as ACCEPTED, both managed by Rahim, plus Echo (Siti) which was REJECTED.
// Tanjung (Johor) registers Charlie (Mei, a Kids contest) managed by Lim who has no email,
// and Delta (Osman, too old for Teens) as APPROVED.
type Registry struct {
	EventID int

	Melawati, Tanjung int
	Rahim, Lim        int

	Ali, Abu, Siti, Mei, Osman int

	Alpha, Bravo, Charlie, Delta, Echo int
}

func insertID(t *testing.T, db core.DBExecutor, q string, args ...interface{}) int {
	t.Helper()
	var id int
	if err := db.QueryRow(q+" RETURNING id", args...).Scan(&id); err != nil {
		t.Fatalf("seeding %q: %v", q, err)
	}
	return id
}

func exec(t *testing.T, db core.DBExecutor, q string, args ...interface{}) {
	t.Helper()
	if _, err := db.Exec(q, args...); err != nil {
		t.Fatalf("seeding %q: %v", q, err)
	}
}

// SeedRegistry inserts a fresh event with its registrations. The event, and the
// contingents with all they own, are deleted when the test ends.
func SeedRegistry(t *testing.T, db core.DBExecutor) Registry {
	t.Helper()
	var r Registry
	now := time.Now().UTC()

	zone := insertID(t, db, `INSERT INTO zone (name) VALUES ('Tengah')`)
	selangor := insertID(t, db, `INSERT INTO state (name, zone_id) VALUES ('Selangor', $1)`, zone)
	johor := insertID(t, db, `INSERT INTO state (name) VALUES ('Johor')`)
	smkMelawati := insertID(t, db, `INSERT INTO school (name, ppd, level, state_id) VALUES ('SMK Melawati', 'PPD Gombak', 'Menengah', $1)`, selangor)
	skTanjung := insertID(t, db, `INSERT INTO school (name, ppd, level, state_id) VALUES ('SK Tanjung', 'PPD Johor Bahru', 'Rendah', $1)`, johor)

	teens := insertID(t, db, `INSERT INTO target_group (name, school_level, min_age, max_age) VALUES ('Menengah', 'Secondary', 13, 17)`)
	kids := insertID(t, db, `INSERT INTO target_group (name, school_level, min_age, max_age) VALUES ('Rendah', 'Primary', 7, 12)`)

	r.Melawati = insertID(t, db, `INSERT INTO contingent (name, contingent_type, school_id) VALUES ('Kontinjen Melawati', 'SCHOOL', $1)`, smkMelawati)
	r.Tanjung = insertID(t, db, `INSERT INTO contingent (name, contingent_type, school_id) VALUES ('Kontinjen Tanjung', 'SCHOOL', $1)`, skTanjung)

	// ICs are unique per seed so that codes do not collide across events
	suffix := now.Format("150405.000000")
	r.Rahim = insertID(t, db, `INSERT INTO manager (name, ic, email, contingent_id) VALUES ('Cikgu Rahim', $1, 'rahim@sekolah.my', $2)`, "800101-"+suffix, r.Melawati)
	r.Lim = insertID(t, db, `INSERT INTO manager (name, contingent_id) VALUES ('Cikgu Lim', $1)`, r.Tanjung)

	contestant := func(name, ic string, age, contingentID int) int {
		return insertID(t, db, `INSERT INTO contestant (name, ic, age, contingent_id) VALUES ($1, $2, $3, $4)`,
			name, ic+"-"+suffix, age, contingentID)
	}
	r.Ali = contestant("Ali", "100101", 15, r.Melawati)
	r.Abu = contestant("Abu", "100102", 16, r.Melawati)
	r.Siti = contestant("Siti", "100103", 14, r.Melawati)
	r.Mei = contestant("Mei Ling", "150101", 10, r.Tanjung)
	r.Osman = contestant("Osman", "050101", 20, r.Tanjung)

	team := func(name string, contingentID, managerID int, members ...int) int {
		id := insertID(t, db, `INSERT INTO team (name, contingent_id) VALUES ($1, $2)`, name, contingentID)
		for _, m := range members {
			exec(t, db, `INSERT INTO team_member (team_id, contestant_id) VALUES ($1, $2)`, id, m)
		}
		exec(t, db, `INSERT INTO manager_team (manager_id, team_id) VALUES ($1, $2)`, managerID, id)
		return id
	}
	r.Alpha = team("Alpha", r.Melawati, r.Rahim, r.Ali, r.Abu)
	r.Bravo = team("Bravo", r.Melawati, r.Rahim, r.Siti)
	r.Charlie = team("Charlie", r.Tanjung, r.Lim, r.Mei)
	r.Delta = team("Delta", r.Tanjung, r.Lim, r.Osman)
	r.Echo = team("Echo", r.Melawati, r.Rahim, r.Siti)

	r.EventID = insertID(t, db, `INSERT INTO event (name, venue, start_date, end_date) VALUES ('Techlympics Zon Tengah', 'MITEC', $1, $2)`,
		now.Add(-time.Hour), now.Add(24*time.Hour))
	robotik := insertID(t, db, `INSERT INTO contest (name, code, target_group_id) VALUES ('Robotik', 'RBT', $1)`, teens)
	scratch := insertID(t, db, `INSERT INTO contest (name, code, target_group_id) VALUES ('Scratch', 'SCR', $1)`, kids)
	ecRobotik := insertID(t, db, `INSERT INTO event_contest (event_id, contest_id) VALUES ($1, $2)`, r.EventID, robotik)
	ecScratch := insertID(t, db, `INSERT INTO event_contest (event_id, contest_id) VALUES ($1, $2)`, r.EventID, scratch)

	register := func(ecID, teamID int, status string) {
		exec(t, db, `INSERT INTO event_contest_team (event_contest_id, team_id, status) VALUES ($1, $2, $3)`, ecID, teamID, status)
	}
	register(ecRobotik, r.Alpha, "APPROVED")
	register(ecRobotik, r.Bravo, "ACCEPTED")
	register(ecScratch, r.Charlie, "APPROVED")
	register(ecRobotik, r.Delta, "APPROVED")
	register(ecRobotik, r.Echo, "REJECTED")

	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM event WHERE id = $1`, r.EventID)
		_, _ = db.Exec(`DELETE FROM contingent WHERE id IN ($1, $2)`, r.Melawati, r.Tanjung)
	})
	return r
}

// NewAttendanceService builds the attendance service on db, with an in-memory cache
// and a silent console mailer whose sent messages can be inspected.
func NewAttendanceService(t *testing.T, db *sql.DB) (attendance.Service, *emailsvc.ConsoleService) {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), conf)
	core.ParseEmailTemplates(logger)

	mailer := emailsvc.NewConsoleServiceMock(conf, logger)
	store := cachesvc.NewMemoryStore()
	svc := attendance.NewService(attendance.Deps{
		Conf:         conf,
		DB:           db,
		Repo:         boiledrepos.NewAttendanceRepository(db),
		Reports:      sqlxrepos.NewReportRepository(db),
		Events:       event.NewService(boiledrepos.NewEventRepository(db)),
		Participants: participant.NewService(boiledrepos.NewParticipantRepository(db)),
		Cache:        store,
		ScanGuard:    store,
		Exporter:     exportsvc.NewXLSXExporter(time.UTC),
		MailSvc:      mailer,
		Logger:       logger,
	})
	return svc, mailer
}
