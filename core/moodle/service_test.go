package moodle

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syaifulazham/techlympics/core/participant"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type fakeParticipants struct {
	participant.Service
	teams map[int]participant.Team
}

func (f fakeParticipants) GetTeam(_ context.Context, id int) (participant.Team, error) {
	t, ok := f.teams[id]
	if !ok {
		return participant.Team{}, participant.ErrNotFound
	}
	return t, nil
}

type fakeClient struct {
	users     map[string]User
	failEmail string
	err       error
	created   []NewUser
}

func (c *fakeClient) CheckUserExists(_ context.Context, email string) (User, error) {
	if c.err != nil {
		return User{}, c.err
	}
	usr, ok := c.users[email]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return usr, nil
}

func (c *fakeClient) CreateUser(_ context.Context, nu NewUser) (User, error) {
	if nu.Email == c.failEmail {
		return User{}, &APIError{Code: "invalidparameter", Message: "Invalid parameter value detected"}
	}
	c.created = append(c.created, nu)
	return User{ID: 100 + len(c.created), Username: nu.Username, Email: nu.Email}, nil
}

func (c *fakeClient) GetUserPreferences(context.Context, int) (map[string]string, error) {
	return nil, nil
}

func (c *fakeClient) SetUserPreferences(context.Context, int, map[string]string) error {
	return nil
}

func (c *fakeClient) DeleteUser(context.Context, int) error {
	return nil
}

var testTeam = participant.Team{
	ID:   7,
	Name: "Robo Kancil",
	Members: []participant.Contestant{
		{ID: 1, Name: "Aina", Email: " Aina@Example.com "},
		{ID: 2, Name: "Badrul", Email: "badrul@example.com"},
		{ID: 3, Name: "Chong"},
		{ID: 4, Name: "Devi", Email: "devi@example.com"},
	},
}

func newTestService(client Client) *service {
	svc := NewService(client, fakeParticipants{teams: map[int]participant.Team{7: testTeam}}, nopLogger{})
	svc.nowFunc = func() time.Time { return time.Unix(1700000012, 345000000) }
	return svc
}

func TestUsername(t *testing.T) {
	now := time.Unix(1700000012, 345000000)
	assert.Equal(t, "aina2345", Username("Aina@Example.com", now))
	assert.Equal(t, "nomail2345", Username("nomail", now))
	assert.Equal(t, "x0007", Username("x@y.z", time.Unix(0, 7*int64(time.Millisecond))))
}

func TestGeneratePassword(t *testing.T) {
	pwd, err := GeneratePassword(4)
	require.NoError(t, err)
	assert.Len(t, pwd, 8)

	pwd, err = GeneratePassword(16)
	require.NoError(t, err)
	assert.Len(t, pwd, 16)
	assert.Regexp(t, regexp.MustCompile(`[0-9]`), pwd)
	assert.Regexp(t, regexp.MustCompile(`[a-z]`), pwd)
	assert.Regexp(t, regexp.MustCompile(`[A-Z]`), pwd)
}

func TestNewUserFill(t *testing.T) {
	nu := NewUser{Email: " Team@Sekolah.edu.my"}
	require.NoError(t, nu.Fill(time.Unix(0, 1234*int64(time.Millisecond))))
	assert.Equal(t, "team@sekolah.edu.my", nu.Email)
	assert.Equal(t, "team1234", nu.Username)
	assert.Equal(t, "team1234", nu.FirstName)
	assert.Equal(t, "User", nu.LastName)
	assert.Len(t, nu.Password, 16)
}

func TestEnsureTeamAccounts(t *testing.T) {
	client := &fakeClient{
		users:     map[string]User{"aina@example.com": {ID: 55, Username: "aina"}},
		failEmail: "devi@example.com",
	}
	svc := newTestService(client)

	res, err := svc.EnsureTeamAccounts(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, res.TeamID)
	assert.Equal(t, "Robo Kancil", res.TeamName)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Existing)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Results, 4)

	assert.Equal(t, AccountResult{ContestantID: 1, Name: "Aina", Email: "aina@example.com", Status: StatusExists, MoodleUserID: 55, Username: "aina"}, res.Results[0])

	created := res.Results[1]
	assert.Equal(t, StatusCreated, created.Status)
	assert.Equal(t, 101, created.MoodleUserID)
	assert.Equal(t, "badrul2345", created.Username)
	assert.NotEmpty(t, created.Password)
	require.Len(t, client.created, 1)
	assert.Equal(t, "Badrul", client.created[0].FirstName)
	assert.Equal(t, "2", client.created[0].LastName)

	assert.Equal(t, StatusSkipped, res.Results[2].Status)
	assert.Equal(t, StatusError, res.Results[3].Status)
	assert.True(t, strings.Contains(res.Results[3].Error, "Invalid parameter"))
}

func TestEnsureTeamAccountsErrors(t *testing.T) {
	svc := newTestService(&fakeClient{})
	_, err := svc.EnsureTeamAccounts(context.Background(), 99)
	assert.Equal(t, participant.ErrNotFound, errors.Cause(err))

	svc = newTestService(&fakeClient{err: ErrNotConfigured})
	_, err = svc.EnsureTeamAccounts(context.Background(), 7)
	assert.Equal(t, ErrNotConfigured, errors.Cause(err))
}

func TestAPIError(t *testing.T) {
	assert.Equal(t, "moodle: Invalid token (invalidtoken)", (&APIError{Code: "invalidtoken", Message: "Invalid token"}).Error())
	assert.Equal(t, "moodle: boom", (&APIError{Message: "boom"}).Error())
}
