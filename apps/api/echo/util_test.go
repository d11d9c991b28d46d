package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	. "github.com/syaifulazham/techlympics/apps/api/echo"
	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/certificate"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
	"github.com/syaifulazham/techlympics/core/user"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

// testDeps are the fakes a test server is built with.
type testDeps struct {
	users        *fakeUsers
	events       *fakeEvents
	participants *fakeParticipants
	attendance   *fakeAttendance
	jobs         *fakeJobs
	certificates *fakeCertificates
}

func setup(t *testing.T) (*Server, *core.Config, *testDeps) {
	t.Helper()

	conf := core.NewTestConfig()
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	deps := &testDeps{
		users:        &fakeUsers{users: map[string]user.User{}},
		events:       &fakeEvents{},
		participants: &fakeParticipants{},
		attendance:   &fakeAttendance{},
		jobs:         &fakeJobs{},
		certificates: &fakeCertificates{},
	}
	server := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		Validate:       validate,
		Translator:     translator,
		UserSvc:        deps.users,
		EventSvc:       deps.events,
		ParticipantSvc: deps.participants,
		AttendanceSvc:  deps.attendance,
		SyncJobs:       deps.jobs,
		CertificateSvc: deps.certificates,
		DisableReqLogs: true,
	})
	return server, conf, deps
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	token, err := GenerateToken(conf, GetUserClaims(conf, usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func staffUser(id string, roles ...string) user.User {
	return user.User{ID: id, Username: id, Email: id + "@test.my", IsActive: true, Roles: roles}
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func runHTTPTests(t *testing.T, server http.Handler, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	if rec.Code != wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// Fakes

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeUsers struct {
	user.Service
	users map[string]user.User
}

func (f *fakeUsers) add(usr user.User) {
	f.users[usr.ID] = usr
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (user.User, error) {
	if usr, ok := f.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) GetByUsernameOrEmail(_ context.Context, uname string) (user.User, error) {
	for _, usr := range f.users {
		if usr.Username == uname || usr.Email == uname {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (f *fakeUsers) SetLastLogin(_ context.Context, usr user.User) (user.User, error) {
	return usr, nil
}

type fakeEvents struct {
	event.Service
	events []event.Event
}

func (f *fakeEvents) Get(_ context.Context, id int) (event.Event, error) {
	for _, ev := range f.events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return event.Event{}, event.ErrNotFound
}

func (f *fakeEvents) List(context.Context, *event.QueryFilter, []core.DBOrdering) ([]event.Event, error) {
	return f.events, nil
}

type fakeParticipants struct {
	participant.Service
}

type fakeAttendance struct {
	attendance.Service

	err          error
	count        attendance.CountResult
	chunk        attendance.ChunkResult
	result       attendance.CheckInResult
	endpoint     attendance.Endpoint
	export       []byte
	gotGroups    []string
	gotSession   attendance.AgentSession
	gotRecord    attendance.RecordRequest
	gotChunkSize int
	gotOffset    int
}

func (f *fakeAttendance) Count(_ context.Context, _ int, chunkSize int) (attendance.CountResult, error) {
	f.gotChunkSize = chunkSize
	return f.count, f.err
}

func (f *fakeAttendance) SyncChunk(_ context.Context, _ int, chunkSize, offset int) (attendance.ChunkResult, error) {
	f.gotChunkSize, f.gotOffset = chunkSize, offset
	return f.chunk, f.err
}

func (f *fakeAttendance) Statistics(_ context.Context, _ int, groups []string) (attendance.Statistics, error) {
	f.gotGroups = groups
	return attendance.Statistics{}, f.err
}

func (f *fakeAttendance) Export(_ context.Context, _ int, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write(f.export)
	return err
}

func (f *fakeAttendance) VerifyEndpoint(_ context.Context, eventID int, endpointhash, kind string) (attendance.Endpoint, error) {
	if f.endpoint.EventID == eventID && f.endpoint.Endpointhash == endpointhash && (kind == "" || f.endpoint.Kind == kind) {
		return f.endpoint, nil
	}
	return attendance.Endpoint{}, attendance.ErrEndpointNotFound
}

func (f *fakeAttendance) ValidatePasscode(ctx context.Context, req attendance.PasscodeRequest) (attendance.Endpoint, error) {
	ep, err := f.VerifyEndpoint(ctx, req.EventID, req.Endpointhash, attendance.EndpointAgent)
	if err != nil {
		return ep, err
	}
	if req.Passcode != "1234" {
		return attendance.Endpoint{}, attendance.ErrInvalidPasscode
	}
	return ep, nil
}

func (f *fakeAttendance) CheckIn(context.Context, attendance.CheckInRequest) (attendance.CheckInResult, error) {
	return f.result, f.err
}

func (f *fakeAttendance) AgentCheckIn(_ context.Context, session attendance.AgentSession, _ attendance.AgentCheckInRequest) (attendance.CheckInResult, error) {
	f.gotSession = session
	return f.result, f.err
}

func (f *fakeAttendance) Record(_ context.Context, _ int, req attendance.RecordRequest) (attendance.CheckInResult, error) {
	f.gotRecord = req
	return f.result, f.err
}

type fakeJobs struct {
	status attendance.JobStatus
	err    error
	calls  []string
}

func (f *fakeJobs) record(call string) (attendance.JobStatus, error) {
	f.calls = append(f.calls, call)
	return f.status, f.err
}

func (f *fakeJobs) Start(int, int) (attendance.JobStatus, error) { return f.record("start") }
func (f *fakeJobs) Status(int) (attendance.JobStatus, error)     { return f.record("status") }
func (f *fakeJobs) Pause(int) (attendance.JobStatus, error)      { return f.record("pause") }
func (f *fakeJobs) Resume(int) (attendance.JobStatus, error)     { return f.record("resume") }
func (f *fakeJobs) Stop(int) (attendance.JobStatus, error)       { return f.record("stop") }

type fakeCertificates struct {
	certificate.Service
	certs map[string]certificate.Certificate
}

func (f *fakeCertificates) GetBySerial(_ context.Context, serial string) (certificate.Certificate, error) {
	if cert, ok := f.certs[serial]; ok {
		return cert, nil
	}
	return certificate.Certificate{}, certificate.ErrNotFound
}
