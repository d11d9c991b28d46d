package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/user"
)

func Test_attendanceApi_syncChunked(t *testing.T) {
	server, conf, deps := setup(t)
	deps.attendance.count = attendance.CountResult{TotalTeams: 120, ChunkSize: 50, TotalChunks: 3}
	deps.attendance.chunk = attendance.ChunkResult{Message: "Chunk processed", Metrics: attendance.ChunkMetrics{ProcessedTeams: 50, Errors: []string{}}}

	operator := getToken(t, conf, staffUser("operator", user.RoleOperator))
	path := "/api/organizer/events/7/attendance/sync-chunked"

	runHTTPTests(t, server, []httpTest{
		{
			name: "count", method: http.MethodPost, path: path, token: operator,
			body: []byte(`{"action":"count","chunkSize":50}`), wantData: marshalObj(t, deps.attendance.count),
		},
		{
			name: "chunk", method: http.MethodPost, path: path, token: operator,
			body: []byte(`{"action":"chunk","chunkSize":50,"offset":100}`), wantData: marshalObj(t, deps.attendance.chunk),
		},
		{
			name: "invalid action", method: http.MethodPost, path: path, token: operator, body: []byte(`{"action":"sync"}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: `Invalid action. Use "count" or "chunk".`}),
		},
		{
			name: "missing action", method: http.MethodPost, path: path, token: operator, body: []byte(`{}`),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, httpErr{Error: `Invalid action. Use "count" or "chunk".`}),
		},
	})
	assert.Equal(t, 50, deps.attendance.gotChunkSize)
	assert.Equal(t, 100, deps.attendance.gotOffset)
}

func Test_attendanceApi_syncJobs(t *testing.T) {
	server, conf, deps := setup(t)
	deps.jobs.status = attendance.JobStatus{ID: "job-1", EventID: 7, State: attendance.JobRunning, Metrics: attendance.ChunkMetrics{Errors: []string{}}}

	operator := getToken(t, conf, staffUser("operator", user.RoleOperator))
	viewer := getToken(t, conf, staffUser("viewer", user.RoleViewer))
	base := "/api/organizer/events/7/attendance/sync-jobs"

	runHTTPTests(t, server, []httpTest{
		{name: "start", method: http.MethodPost, path: base, token: operator, body: []byte(`{"chunkSize":25}`), wantCode: http.StatusAccepted},
		{name: "viewer reads current", path: base + "/current", token: viewer, wantData: marshalObj(t, deps.jobs.status)},
		{name: "pause", method: http.MethodPost, path: base + "/current/pause", token: operator},
		{name: "resume", method: http.MethodPost, path: base + "/current/resume", token: operator},
		{name: "stop", method: http.MethodPost, path: base + "/current/stop", token: operator},
		{name: "viewer cannot stop", method: http.MethodPost, path: base + "/current/stop", token: viewer, wantCode: http.StatusForbidden},
		{name: "unknown action", method: http.MethodPost, path: base + "/current/restart", token: operator, wantCode: http.StatusBadRequest},
	})
	assert.Equal(t, []string{"start", "status", "pause", "resume", "stop"}, deps.jobs.calls)

	deps.jobs.err = errors.Wrap(attendance.ErrJobActive, "starting")
	runHTTPTests(t, server, []httpTest{
		{
			name: "already active", method: http.MethodPost, path: base, token: operator, body: []byte(`{}`),
			wantCode: http.StatusConflict, wantData: marshalObj(t, httpErr{Error: attendance.ErrJobActive.Error()}),
		},
	})

	deps.jobs.err = attendance.ErrJobNotFound
	runHTTPTests(t, server, []httpTest{
		{name: "no job", path: base + "/current", token: viewer, wantCode: http.StatusNotFound},
	})
}

func Test_attendanceApi_statistics(t *testing.T) {
	server, conf, deps := setup(t)
	viewer := getToken(t, conf, staffUser("viewer", user.RoleViewer))

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "no filter", query: "", want: []string{}},
		{name: "kids and youth", query: "?kids=true&youth=1", want: []string{"Kids", "Youth"}},
		{name: "false flags", query: "?teens=false", want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/api/organizer/events/7/attendance/statistics"+tt.query, viewer)
			server.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, deps.attendance.gotGroups)
		})
	}
}

func Test_attendanceApi_downloadExcel(t *testing.T) {
	server, conf, deps := setup(t)
	deps.attendance.export = []byte("PK-xlsx-bytes")
	viewer := getToken(t, conf, staffUser("viewer", user.RoleViewer))

	req, rec := newAuthRequest(http.MethodGet, "/api/organizer/events/7/attendance/download-excel", viewer)
	server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="attendance-event-7.xlsx"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "PK-xlsx-bytes", rec.Body.String())

	t.Run("unknown event", func(t *testing.T) {
		deps.attendance.err = event.ErrNotFound
		req, rec := newAuthRequest(http.MethodGet, "/api/organizer/events/7/attendance/download-excel", viewer)
		server.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		assert.Empty(t, rec.Header().Get("Content-Disposition"))
	})
}

func Test_attendanceApi_record(t *testing.T) {
	server, conf, deps := setup(t)
	deps.attendance.endpoint = attendance.Endpoint{ID: 1, EventID: 7, Endpointhash: "abc123", Kind: attendance.EndpointContingent}
	deps.attendance.result = attendance.CheckInResult{Message: "Contingent attendance recorded", ContingentID: 3}

	operator := getToken(t, conf, staffUser("operator", user.RoleOperator))
	viewer := getToken(t, conf, staffUser("viewer", user.RoleViewer))
	path := "/api/organizer/events/7/attendance/record"

	runHTTPTests(t, server, []httpTest{
		{
			name: "operator", method: http.MethodPost, path: path, token: operator,
			body: []byte(`{"method":"qrcode","hashcode":"h-1"}`), wantData: marshalObj(t, deps.attendance.result),
		},
		{
			name: "endpointhash", method: http.MethodPost, path: path,
			body: []byte(`{"method":"qrcode","hashcode":"h-1","endpointhash":"abc123"}`), wantData: marshalObj(t, deps.attendance.result),
		},
		{
			name: "unknown endpointhash", method: http.MethodPost, path: path,
			body: []byte(`{"method":"qrcode","hashcode":"h-1","endpointhash":"zzz"}`), wantCode: http.StatusUnauthorized,
		},
		{name: "anonymous", method: http.MethodPost, path: path, body: []byte(`{"method":"qrcode","hashcode":"h-1"}`), wantCode: http.StatusUnauthorized},
		{
			name: "viewer", method: http.MethodPost, path: path, token: viewer,
			body: []byte(`{"method":"qrcode","hashcode":"h-1"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "manual without date", method: http.MethodPost, path: path, token: operator,
			body: []byte(`{"method":"manual","contingentId":3}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown method", method: http.MethodPost, path: path, token: operator,
			body: []byte(`{"method":"sms"}`), wantCode: http.StatusBadRequest,
		},
	})
	assert.Equal(t, attendance.RecordQRCode, deps.attendance.gotRecord.Method)
	assert.Equal(t, "h-1", deps.attendance.gotRecord.Hashcode)
}
