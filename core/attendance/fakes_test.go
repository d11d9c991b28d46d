package attendance

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeEvents struct {
	event.Service
	events map[int]event.Event
}

func (f fakeEvents) Get(_ context.Context, id int) (event.Event, error) {
	ev, ok := f.events[id]
	if !ok {
		return event.Event{}, event.ErrNotFound
	}
	return ev, nil
}

type fakeParticipants struct {
	participant.Service
	endlist []participant.EndlistTeam
	pageErr error
}

func (f *fakeParticipants) CountEndlist(context.Context, int) (int, error) {
	return len(f.endlist), nil
}

func (f *fakeParticipants) EndlistPage(_ context.Context, _, limit, offset int) ([]participant.EndlistTeam, error) {
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	if offset >= len(f.endlist) {
		return nil, nil
	}
	end := len(f.endlist)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return f.endlist[offset:end], nil
}

func (f *fakeParticipants) Endlist(ctx context.Context, eventID int) ([]participant.EndlistTeam, error) {
	return f.EndlistPage(ctx, eventID, 0, 0)
}

func (f *fakeParticipants) GetContingent(_ context.Context, id int) (participant.ContingentDetail, error) {
	for _, t := range f.endlist {
		if t.Contingent.ID == id {
			return participant.ContingentDetail{Contingent: t.Contingent}, nil
		}
	}
	return participant.ContingentDetail{}, participant.ErrNotFound
}

// fakeRepo keeps attendance rows in memory, keyed by hashcode.
type fakeRepo struct {
	Repository

	mu          sync.Mutex
	nextID      int
	contingents map[string]ContingentRecord
	teams       map[string]TeamRecord
	contestants map[string]ContestantRecord
	managers    map[string]ManagerRecord
	endpoints   []Endpoint
	logs        []LogEntry
	emailStatus map[int]string

	failContingent int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		contingents: make(map[string]ContingentRecord),
		teams:       make(map[string]TeamRecord),
		contestants: make(map[string]ContestantRecord),
		managers:    make(map[string]ManagerRecord),
		emailStatus: make(map[int]string),
	}
}

func (r *fakeRepo) id() int {
	r.nextID++
	return r.nextID
}

func (r *fakeRepo) UpsertContingent(_ context.Context, rec ContingentRecord, _ ...core.DBExecutor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ContingentID == r.failContingent {
		return false, errors.New("deadlock detected")
	}
	if old, ok := r.contingents[rec.Hashcode]; ok {
		old.State, old.UpdatedAt = rec.State, rec.UpdatedAt
		r.contingents[rec.Hashcode] = old
		return false, nil
	}
	rec.ID = r.id()
	r.contingents[rec.Hashcode] = rec
	return true, nil
}

func (r *fakeRepo) UpsertTeam(_ context.Context, rec TeamRecord, _ ...core.DBExecutor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.teams[rec.Hashcode]; ok {
		return false, nil
	}
	rec.ID = r.id()
	r.teams[rec.Hashcode] = rec
	return true, nil
}

func (r *fakeRepo) UpsertContestant(_ context.Context, rec ContestantRecord, _ ...core.DBExecutor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.contestants[rec.Hashcode]; ok {
		old.ContestGroup = rec.ContestGroup
		r.contestants[rec.Hashcode] = old
		return false, nil
	}
	rec.ID = r.id()
	r.contestants[rec.Hashcode] = rec
	return true, nil
}

func (r *fakeRepo) UpsertManager(_ context.Context, rec ManagerRecord, _ ...core.DBExecutor) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.managers[rec.Hashcode]; ok {
		return false, nil
	}
	rec.ID = r.id()
	r.managers[rec.Hashcode] = rec
	return true, nil
}

func (r *fakeRepo) CreateEndpoint(_ context.Context, ep Endpoint, _ ...core.DBExecutor) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ep.ID = r.id()
	r.endpoints = append(r.endpoints, ep)
	return ep, nil
}

func (r *fakeRepo) GetEndpoint(_ context.Context, eventID int, hash string, _ ...core.DBExecutor) (Endpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.endpoints {
		if ep.EventID == eventID && ep.Endpointhash == hash {
			return ep, nil
		}
	}
	return Endpoint{}, ErrNotFound
}

func (r *fakeRepo) FindManager(_ context.Context, eventID int, hashcode string, _ ...core.DBExecutor) (ManagerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.managers[hashcode]; ok && m.EventID == eventID {
		return m, nil
	}
	return ManagerRecord{}, ErrNotFound
}

func (r *fakeRepo) FindContestant(_ context.Context, eventID int, code string, _ ...core.DBExecutor) (ContestantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contestants {
		if c.EventID == eventID && (c.Hashcode == code || c.IC == code) {
			return c, nil
		}
	}
	return ContestantRecord{}, ErrNotFound
}

func (r *fakeRepo) FindContingent(_ context.Context, eventID int, hashcode string, _ ...core.DBExecutor) (ContingentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.contingents[hashcode]; ok && c.EventID == eventID {
		return c, nil
	}
	return ContingentRecord{}, ErrNotFound
}

func (r *fakeRepo) GetContingentRecord(_ context.Context, eventID, contingentID int, _ ...core.DBExecutor) (ContingentRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contingents {
		if c.EventID == eventID && c.ContingentID == contingentID {
			return c, nil
		}
	}
	return ContingentRecord{}, ErrNotFound
}

func present(rec *Record, at time.Time) {
	rec.AttendanceStatus = StatusPresent
	rec.AttendanceDate, rec.AttendanceTime = &at, &at
}

func (r *fakeRepo) MarkManagerPresent(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, m := range r.managers {
		if m.ID == id {
			present(&m.Record, at)
			r.managers[k] = m
		}
	}
	return nil
}

func (r *fakeRepo) MarkContestantPresent(_ context.Context, id int, at time.Time, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, c := range r.contestants {
		if c.ID == id {
			present(&c.Record, at)
			r.contestants[k] = c
		}
	}
	return nil
}

func (r *fakeRepo) MarkContingentPresent(_ context.Context, eventID, contingentID int, at time.Time, scope PresenceScope, _ ...core.DBExecutor) (PresenceCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var counts PresenceCounts
	for k, c := range r.contingents {
		if c.EventID == eventID && c.ContingentID == contingentID && !c.Present() {
			present(&c.Record, at)
			r.contingents[k] = c
			counts.Contingents++
		}
	}
	for k, t := range r.teams {
		if t.EventID == eventID && t.ContingentID == contingentID && !t.Present() {
			present(&t.Record, at)
			r.teams[k] = t
			counts.Teams++
		}
	}
	for k, c := range r.contestants {
		if c.EventID == eventID && c.ContingentID == contingentID && !c.Present() {
			present(&c.Record, at)
			r.contestants[k] = c
			counts.Contestants++
		}
	}
	if scope.Managers {
		for k, m := range r.managers {
			if m.EventID == eventID && m.ContingentID == contingentID && !m.Present() {
				present(&m.Record, at)
				r.managers[k] = m
				counts.Managers++
			}
		}
	}
	return counts, nil
}

func (r *fakeRepo) InsertLog(_ context.Context, entry LogEntry, _ ...core.DBExecutor) (LogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry.ID = r.id()
	r.logs = append(r.logs, entry)
	return entry, nil
}

func (r *fakeRepo) TeamRecords(_ context.Context, eventID int, _ ...core.DBExecutor) ([]TeamRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []TeamRecord
	for _, t := range r.teams {
		if t.EventID == eventID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *fakeRepo) ContestantRecords(_ context.Context, eventID int, _ ...core.DBExecutor) ([]ContestantRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ContestantRecord
	for _, c := range r.contestants {
		if c.EventID == eventID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeRepo) DeleteTeamRecords(_ context.Context, ids []int, _ ...core.DBExecutor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		for k, t := range r.teams {
			if t.ID == id {
				delete(r.teams, k)
				n++
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) DeleteContestantRecords(_ context.Context, ids []int, _ ...core.DBExecutor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		for k, c := range r.contestants {
			if c.ID == id {
				delete(r.contestants, k)
				n++
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) DeleteTeamContestantRecords(_ context.Context, eventID int, teamIDs []int, _ ...core.DBExecutor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range teamIDs {
		for k, c := range r.contestants {
			if c.EventID == eventID && c.TeamID == id {
				delete(r.contestants, k)
				n++
			}
		}
	}
	return n, nil
}

func (r *fakeRepo) PendingManagers(_ context.Context, eventID int, _ ...core.DBExecutor) ([]ManagerRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ManagerRecord
	for _, m := range r.managers {
		if m.EventID == eventID && m.EmailStatus == EmailPending {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeRepo) SetManagerEmailStatus(_ context.Context, ids []int, status string, _ ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.emailStatus[id] = status
		for k, m := range r.managers {
			if m.ID == id {
				m.EmailStatus = status
				r.managers[k] = m
			}
		}
	}
	return nil
}

// snapshot builds what the report queries would return from the rows in memory.
func (r *fakeRepo) snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var snap Snapshot
	for _, c := range r.contingents {
		snap.Contingents = append(snap.Contingents, Ref{ID: c.ContingentID})
	}
	for _, t := range r.teams {
		snap.Teams = append(snap.Teams, Ref{ID: t.TeamID})
	}
	for _, c := range r.contestants {
		snap.Contestants = append(snap.Contestants, Ref{ID: c.ContestantID, Name: c.Name})
	}
	for _, m := range r.managers {
		snap.Managers = append(snap.Managers, Ref{ID: m.ManagerID, Name: m.Name})
	}
	return snap
}

type fakeReports struct {
	ReportRepository
	repo   *fakeRepo
	counts Stats
	calls  int
}

func (f *fakeReports) Snapshot(context.Context, int) (Snapshot, error) { return f.repo.snapshot(), nil }
func (f *fakeReports) LastSyncDate(context.Context, int) (*time.Time, error) {
	return nil, nil
}

func (f *fakeReports) Counts(context.Context, int, []string) (Stats, error) {
	f.calls++
	return f.counts, nil
}

func (f *fakeReports) StateStats(context.Context, int, []string) ([]StateStats, error) {
	return []StateStats{{StateID: 10, StateName: "Selangor", TotalContestants: 3, PresentContestants: 2}}, nil
}

func (f *fakeReports) DailyAttendance(context.Context, int, []string) ([]DailyCount, error) {
	return nil, nil
}

func (f *fakeReports) HourlyAttendance(context.Context, int, []string) ([]HourlyCount, error) {
	return []HourlyCount{{Hour: 9, Count: 4}}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memGuard) Allow(_ context.Context, key string, _ time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []*core.EmailMessage
	fail   map[string]error // by recipient address
	onSend func(msg *core.EmailMessage)
}

func (m *fakeMailer) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = m.SendMessage(msg)
	}
}

func (m *fakeMailer) SendMessage(msg *core.EmailMessage) error {
	if m.onSend != nil {
		m.onSend(msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(msg.To) > 0 && m.fail[msg.To[0].Address] != nil {
		return m.fail[msg.To[0].Address]
	}
	m.sent = append(m.sent, msg)
	return nil
}

func intPtr(i int) *int { return &i }

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// testEndlist has two contingents: contingent 1 with two eligible teams sharing a manager,
// contingent 2 with one eligible team and one team whose member is too old.
func testEndlist() []participant.EndlistTeam {
	teens := participant.TargetGroup{ID: 2, SchoolLevel: "Secondary", MinAge: intPtr(13), MaxAge: intPtr(17)}
	c1 := participant.Contingent{ID: 1, Name: "SMK Melawati", ContingentType: participant.ContingentSchool,
		School: &participant.Institution{Name: "SMK Melawati", StateID: intPtr(10), StateName: "Selangor", ZoneID: intPtr(2)}}
	c2 := participant.Contingent{ID: 2, Name: "SMK Tanjung", ContingentType: participant.ContingentSchool,
		School: &participant.Institution{Name: "SMK Tanjung", StateID: intPtr(7), StateName: "Pulau Pinang"}}
	rahim := participant.Manager{ID: 100, Name: "Cikgu Rahim", IC: "800101105555", Email: "rahim@sekolah.my", ContingentID: 1}
	lim := participant.Manager{ID: 101, Name: "Cikgu Lim", IC: "", Email: "not-an-email", ContingentID: 2}

	return []participant.EndlistTeam{
		{TeamID: 10, TeamName: "Alpha", Status: participant.StatusApproved, ContestID: 5, ContestCode: "RBT", ContestName: "Robotik", TargetGroup: teens, Contingent: c1,
			Members:  []participant.Contestant{{ID: 1, Name: "Ali", IC: "100101101111", Age: intPtr(15)}, {ID: 2, Name: "Abu", IC: "100101102222", Age: intPtr(16)}},
			Managers: []participant.Manager{rahim}},
		{TeamID: 11, TeamName: "Bravo", Status: participant.StatusAccepted, ContestID: 5, ContestCode: "RBT", ContestName: "Robotik", TargetGroup: teens, Contingent: c1,
			Members:  []participant.Contestant{{ID: 3, Name: "Siti", IC: "100101103333", Age: intPtr(14)}},
			Managers: []participant.Manager{rahim}},
		{TeamID: 20, TeamName: "Charlie", Status: participant.StatusApprovedSpecial, ContestID: 6, ContestCode: "AI", ContestName: "Kecerdasan Buatan", TargetGroup: teens, Contingent: c2,
			Members:  []participant.Contestant{{ID: 4, Name: "Mei Ling", Age: intPtr(19)}},
			Managers: []participant.Manager{lim}},
		{TeamID: 21, TeamName: "Delta", Status: participant.StatusApproved, ContestID: 6, ContestCode: "AI", ContestName: "Kecerdasan Buatan", TargetGroup: teens, Contingent: c2,
			Members:  []participant.Contestant{{ID: 5, Name: "Ravi", IC: "050101105555", Age: intPtr(21)}},
			Managers: []participant.Manager{lim}},
	}
}

type testDeps struct {
	svc          *service
	repo         *fakeRepo
	reports      *fakeReports
	participants *fakeParticipants
	cache        *memCache
	mailer       *fakeMailer
}

func newTestService() testDeps {
	conf := core.NewTestConfig()
	repo := newFakeRepo()
	reports := &fakeReports{repo: repo}
	parts := &fakeParticipants{endlist: testEndlist()}
	cache := &memCache{data: make(map[string][]byte)}
	mailer := &fakeMailer{}
	events := fakeEvents{events: map[int]event.Event{
		1: {ID: 1, Name: "Techlympics 2026", StartDate: testNow.Add(time.Hour), EndDate: testNow.Add(48 * time.Hour)},
		2: {ID: 2, Name: "Techlympics 2025", StartDate: testNow.AddDate(-1, 0, 0), EndDate: testNow.AddDate(-1, 0, 2)},
	}}

	svc := NewService(Deps{
		Conf:         conf,
		Repo:         repo,
		Reports:      reports,
		Events:       events,
		Participants: parts,
		Cache:        cache,
		ScanGuard:    &memGuard{seen: make(map[string]bool)},
		MailSvc:      mailer,
		Logger:       nopLogger{},
	})
	svc.runInTx = func(_ context.Context, fn func(tx core.DBExecutor) error) error { return fn(nil) }
	svc.nowFunc = func() time.Time { return testNow }
	return testDeps{svc: svc, repo: repo, reports: reports, participants: parts, cache: cache, mailer: mailer}
}

func newValidator() *validator.Validate {
	return validator.New()
}
