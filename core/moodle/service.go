package moodle

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/participant"
)

var (
	// errors
	ErrNotConfigured = errors.New("moodle is not configured")
	ErrUserNotFound  = errors.New("moodle user not found")
)

// APIError is an exception or error payload returned by the Moodle web service.
type APIError struct {
	Code    string `json:"errorcode"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "moodle: " + e.Message
	}
	return fmt.Sprintf("moodle: %s (%s)", e.Message, e.Code)
}

type (
	// Client talks to the Moodle web service.
	Client interface {
		// CheckUserExists looks a user up by email. It returns ErrUserNotFound when no account matches.
		CheckUserExists(ctx context.Context, email string) (User, error)
		CreateUser(ctx context.Context, nu NewUser) (User, error)
		GetUserPreferences(ctx context.Context, userID int) (map[string]string, error)
		SetUserPreferences(ctx context.Context, userID int, prefs map[string]string) error
		DeleteUser(ctx context.Context, userID int) error
	}

	Service interface {
		// EnsureTeamAccounts makes sure every team member with an email owns a Moodle account.
		EnsureTeamAccounts(ctx context.Context, teamID int) (TeamAccounts, error)
	}

	service struct {
		client       Client
		participants participant.Service
		logger       core.Logger
		nowFunc      func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(client Client, participants participant.Service, logger core.Logger) *service {
	return &service{
		client:       client,
		participants: participants,
		logger:       logger,
		nowFunc:      time.Now,
	}
}

func (svc *service) EnsureTeamAccounts(ctx context.Context, teamID int) (TeamAccounts, error) {
	team, err := svc.participants.GetTeam(ctx, teamID)
	if err != nil {
		return TeamAccounts{}, err
	}

	res := TeamAccounts{TeamID: team.ID, TeamName: team.Name, Results: []AccountResult{}}
	for _, m := range team.Members {
		r, err := svc.ensureAccount(ctx, m)
		if errors.Cause(err) == ErrNotConfigured {
			return TeamAccounts{}, err
		}
		res.add(r)
	}
	return res, nil
}

func (svc *service) ensureAccount(ctx context.Context, m participant.Contestant) (AccountResult, error) {
	r := AccountResult{ContestantID: m.ID, Name: m.Name, Email: NormalizeEmail(m.Email)}
	if r.Email == "" {
		r.Status = StatusSkipped
		r.Error = "no email"
		return r, nil
	}

	usr, err := svc.client.CheckUserExists(ctx, r.Email)
	switch {
	case err == nil:
		r.Status = StatusExists
		r.MoodleUserID = usr.ID
		r.Username = usr.Username
		return r, nil
	case errors.Cause(err) != ErrUserNotFound:
		return svc.failed(r, err)
	}

	nu := NewUser{FirstName: m.Name, LastName: fmt.Sprint(m.ID), Email: r.Email}
	if err = nu.Fill(svc.nowFunc()); err != nil {
		return svc.failed(r, err)
	}
	usr, err = svc.client.CreateUser(ctx, nu)
	if err != nil {
		return svc.failed(r, err)
	}
	r.Status = StatusCreated
	r.MoodleUserID = usr.ID
	r.Username = nu.Username
	r.Password = nu.Password
	return r, nil
}

func (svc *service) failed(r AccountResult, err error) (AccountResult, error) {
	if errors.Cause(err) != ErrNotConfigured {
		svc.logger.Warn("moodle account failed", err, map[string]interface{}{"contestantId": r.ContestantID})
	}
	r.Status = StatusError
	r.Error = errors.Cause(err).Error()
	return r, err
}
