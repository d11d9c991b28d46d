package echoapi_test

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/syaifulazham/techlympics/apps/api/echo"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/user"
)

func Test_checkInApi_checkIn(t *testing.T) {
	server, _, deps := setup(t)
	body := []byte(`{"eventId":7,"endpointhash":"abc123","hashcode":"h-1"}`)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "duplicate scan", err: attendance.ErrDuplicateScan, wantCode: http.StatusTooManyRequests, wantErr: "Duplicate scan ignored"},
		{name: "unknown code", err: attendance.ErrCodeNotFound, wantCode: http.StatusNotFound, wantErr: attendance.ErrCodeNotFound.Error()},
		{name: "already checked in", err: attendance.ErrAlreadyCheckedIn, wantCode: http.StatusBadRequest, wantErr: "Already checked in"},
		{name: "outside the window", err: attendance.ErrNotAvailable, wantCode: http.StatusBadRequest, wantErr: "Attendance not available"},
		{name: "contestant code", err: attendance.ErrContestantCode, wantCode: http.StatusBadRequest, wantErr: attendance.ErrContestantCode.Error()},
		{name: "unknown endpoint", err: errors.Wrap(attendance.ErrEndpointNotFound, "verifying"), wantCode: http.StatusNotFound, wantErr: attendance.ErrEndpointNotFound.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps.attendance.err = tt.err
			req, rec := newAuthRequest(http.MethodPost, "/api/attendance/check-in", "", body)
			server.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: marshalObj(t, httpErr{Error: tt.wantErr})}, rec)
		})
	}

	t.Run("success", func(t *testing.T) {
		deps.attendance.err = nil
		deps.attendance.result = attendance.CheckInResult{
			Message:         "Contingent checked in",
			ParticipantType: attendance.ParticipantManager,
			Updated:         attendance.PresenceCounts{Contingents: 1, Teams: 2, Contestants: 6, Managers: 1},
		}
		req, rec := newAuthRequest(http.MethodPost, "/api/attendance/check-in", "", body)
		server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalObj(t, deps.attendance.result)}, rec)
	})

	t.Run("missing hashcode", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/attendance/check-in", "", []byte(`{"eventId":7,"endpointhash":"abc123"}`))
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_checkInApi_agentSession(t *testing.T) {
	server, conf, deps := setup(t)
	deps.attendance.endpoint = attendance.Endpoint{ID: 1, EventID: 7, Endpointhash: "abc123", Kind: attendance.EndpointAgent}
	deps.attendance.result = attendance.CheckInResult{Message: "Contestant checked in", ParticipantType: attendance.ParticipantContestant}

	runHTTPTests(t, server, []httpTest{
		{
			name: "wrong passcode", method: http.MethodPost, path: "/api/attendance/agent/validate-passcode",
			body:     []byte(`{"eventId":7,"endpointhash":"abc123","passcode":"0000"}`),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: attendance.ErrInvalidPasscode.Error()}),
		},
		{
			name: "unknown endpoint", method: http.MethodPost, path: "/api/attendance/agent/validate-passcode",
			body: []byte(`{"eventId":8,"endpointhash":"abc123","passcode":"1234"}`), wantCode: http.StatusNotFound,
		},
		{
			name: "missing passcode", method: http.MethodPost, path: "/api/attendance/agent/validate-passcode",
			body: []byte(`{"eventId":7,"endpointhash":"abc123"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "check-in without session", method: http.MethodPost, path: "/api/attendance/agent/check-in",
			body: []byte(`{"code":"h-1"}`), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken),
		},
		{
			name: "user token is not a session", method: http.MethodPost, path: "/api/attendance/agent/check-in",
			token: getToken(t, conf, staffUser("operator", user.RoleOperator)), body: []byte(`{"code":"h-1"}`),
			wantCode: http.StatusUnauthorized, wantData: marshalObj(t, httpErr{Error: "invalid or expired agent session"}),
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/api/attendance/agent/validate-passcode", "",
		[]byte(`{"eventId":7,"endpointhash":"abc123","passcode":"1234"}`))
	server.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session AgentSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session))
	require.NotEmpty(t, session.Token)
	assert.Equal(t, "abc123", session.Endpoint.Endpointhash)
	assert.True(t, session.ExpiresAt.After(session.Endpoint.CreatedAt))

	req, rec = newAuthRequest(http.MethodPost, "/api/attendance/agent/check-in", session.Token, []byte(`{"code":"900101-14-5678"}`))
	server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marshalObj(t, deps.attendance.result)}, rec)
	assert.Equal(t, attendance.AgentSession{EventID: 7, Endpointhash: "abc123"}, deps.attendance.gotSession)

	t.Run("session is not a user token", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/organizer/events", session.Token)
		server.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_checkInApi_endpointKind(t *testing.T) {
	server, _, deps := setup(t)
	deps.attendance.endpoint = attendance.Endpoint{ID: 2, EventID: 7, Endpointhash: "gate01", Kind: attendance.EndpointContingent}

	runHTTPTests(t, server, []httpTest{
		{
			name: "contingent gate opens no agent session", method: http.MethodPost, path: "/api/attendance/agent/validate-passcode",
			body: []byte(`{"eventId":7,"endpointhash":"gate01","passcode":"1234"}`), wantCode: http.StatusNotFound,
		},
		{name: "verify any kind", path: "/api/attendance/events/7/endpoints/gate01", wantData: marshalObj(t, EndpointVerification{Valid: true, Endpoint: deps.attendance.endpoint})},
		{name: "verify as contingent", path: "/api/attendance/events/7/endpoints/gate01?kind=contingent", wantData: marshalObj(t, EndpointVerification{Valid: true, Endpoint: deps.attendance.endpoint})},
		{name: "verify as agent", path: "/api/attendance/events/7/endpoints/gate01?kind=agent", wantCode: http.StatusNotFound},
	})
}
