package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
)

func newEndpointhash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (svc *service) CreateEndpoint(ctx context.Context, eventID int, ne NewEndpoint) (Endpoint, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return Endpoint{}, err
	}
	ep := Endpoint{
		EventID:      eventID,
		Endpointhash: newEndpointhash(),
		Kind:         ne.Kind,
		CreatedAt:    svc.now(),
	}
	if err := ep.SetPasscode(ne.Passcode); err != nil {
		return Endpoint{}, errors.Wrap(err, "hashing passcode")
	}
	return svc.repo.CreateEndpoint(ctx, ep)
}

func (svc *service) ListEndpoints(ctx context.Context, eventID int) ([]Endpoint, error) {
	return svc.repo.ListEndpoints(ctx, eventID)
}

func (svc *service) DeleteEndpoint(ctx context.Context, eventID, id int) error {
	return svc.repo.DeleteEndpoint(ctx, eventID, id)
}

// VerifyEndpoint returns the endpoint of the event, or ErrEndpointNotFound.
// Endpoints of another kind than a non-empty kind are not found.
func (svc *service) VerifyEndpoint(ctx context.Context, eventID int, endpointhash, kind string) (Endpoint, error) {
	ep, err := svc.repo.GetEndpoint(ctx, eventID, endpointhash)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Endpoint{}, ErrEndpointNotFound
		}
		return Endpoint{}, err
	}
	if kind != "" && ep.Kind != kind {
		return Endpoint{}, ErrEndpointNotFound
	}
	return ep, nil
}

// ValidatePasscode checks the passcode of an endpoint before an agent session is opened on it.
func (svc *service) ValidatePasscode(ctx context.Context, req PasscodeRequest) (Endpoint, error) {
	ep, err := svc.VerifyEndpoint(ctx, req.EventID, core.CleanString(req.Endpointhash), EndpointAgent)
	if err != nil {
		return Endpoint{}, err
	}
	if !ep.CheckPasscode(req.Passcode) {
		return Endpoint{}, ErrInvalidPasscode
	}
	return ep, nil
}

// checkWindow fails with ErrNotAvailable outside the event's check-in window.
func (svc *service) checkWindow(ctx context.Context, eventID int, at time.Time) error {
	ev, err := svc.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if !ev.CheckInOpen(at, svc.conf.CheckInLeadTime) {
		return ErrNotAvailable
	}
	return nil
}

// guardScan rejects a code scanned again on the same endpoint within the cooldown.
// Guard failures let the scan through.
func (svc *service) guardScan(ctx context.Context, endpointhash, code string) error {
	if svc.scanGuard == nil || svc.conf.ScanCooldown <= 0 {
		return nil
	}
	key := fmt.Sprintf("attendance:scan:%s:%s", endpointhash, code)
	ok, err := svc.scanGuard.Allow(ctx, key, svc.conf.ScanCooldown)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("checking duplicate scan %s: %v", key, err), err)
		return nil
	}
	if !ok {
		return ErrDuplicateScan
	}
	return nil
}

// CheckIn checks in a whole contingent from one of its managers' codes.
func (svc *service) CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	if err := svc.guardScan(ctx, req.Endpointhash, req.Hashcode); err != nil {
		return CheckInResult{}, err
	}
	if _, err := svc.VerifyEndpoint(ctx, req.EventID, req.Endpointhash, EndpointContingent); err != nil {
		return CheckInResult{}, err
	}
	now := svc.now()
	if err := svc.checkWindow(ctx, req.EventID, now); err != nil {
		return CheckInResult{}, err
	}

	mgr, err := svc.repo.FindManager(ctx, req.EventID, req.Hashcode)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			return CheckInResult{}, errors.Wrap(err, "finding manager")
		}
		if _, err = svc.repo.FindContestant(ctx, req.EventID, req.Hashcode); err == nil {
			return CheckInResult{}, ErrContestantCode
		} else if errors.Cause(err) != ErrNotFound {
			return CheckInResult{}, errors.Wrap(err, "finding contestant")
		}
		return CheckInResult{}, ErrCodeNotFound
	}
	if mgr.Present() {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}

	res := CheckInResult{
		Message:         "Contingent checked in",
		ParticipantType: ParticipantManager,
		ParticipantName: mgr.Name,
		ContingentID:    mgr.ContingentID,
		CheckInTime:     now,
	}
	err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		res.Updated, err = svc.repo.MarkContingentPresent(ctx, req.EventID, mgr.ContingentID, now, PresenceScope{Managers: true}, tx)
		if err != nil {
			return errors.Wrap(err, "marking contingent present")
		}
		_, err = svc.repo.InsertLog(ctx, LogEntry{
			EventID:         req.EventID,
			ParticipantType: ParticipantManager,
			ParticipantID:   mgr.ManagerID,
			CheckInTime:     now,
			Method:          MethodQRScan,
			EndpointHash:    req.Endpointhash,
			CreatedAt:       now,
		}, tx)
		return errors.Wrap(err, "logging check-in")
	})
	if err != nil {
		return CheckInResult{}, err
	}

	svc.invalidateStats(ctx, req.EventID)
	return res, nil
}

// AgentCheckIn checks in the manager or contestant a code belongs to.
// A manager brings in the contestants of the contingent not yet present.
func (svc *service) AgentCheckIn(ctx context.Context, session AgentSession, req AgentCheckInRequest) (CheckInResult, error) {
	if err := svc.guardScan(ctx, session.Endpointhash, req.Code); err != nil {
		return CheckInResult{}, err
	}
	if _, err := svc.VerifyEndpoint(ctx, session.EventID, session.Endpointhash, EndpointAgent); err != nil {
		return CheckInResult{}, err
	}
	now := svc.now()
	if err := svc.checkWindow(ctx, session.EventID, now); err != nil {
		return CheckInResult{}, err
	}

	logEntry := LogEntry{
		EventID:      session.EventID,
		CheckInTime:  now,
		Method:       req.Method,
		EndpointHash: session.Endpointhash,
		CreatedAt:    now,
	}

	mgr, err := svc.repo.FindManager(ctx, session.EventID, req.Code)
	switch {
	case err == nil:
		if mgr.Present() {
			return CheckInResult{}, ErrAlreadyCheckedIn
		}
		res := CheckInResult{
			Message:         "Manager checked in",
			ParticipantType: ParticipantManager,
			ParticipantName: mgr.Name,
			ContingentID:    mgr.ContingentID,
			CheckInTime:     now,
		}
		logEntry.ParticipantType, logEntry.ParticipantID = ParticipantManager, mgr.ManagerID
		err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
			if err := svc.repo.MarkManagerPresent(ctx, mgr.ID, now, tx); err != nil {
				return errors.Wrap(err, "marking manager present")
			}
			counts, err := svc.repo.MarkContingentPresent(ctx, session.EventID, mgr.ContingentID, now, PresenceScope{}, tx)
			if err != nil {
				return errors.Wrap(err, "marking contestants present")
			}
			res.Updated = counts
			res.Updated.Managers++
			_, err = svc.repo.InsertLog(ctx, logEntry, tx)
			return errors.Wrap(err, "logging check-in")
		})
		if err != nil {
			return CheckInResult{}, err
		}
		svc.invalidateStats(ctx, session.EventID)
		return res, nil

	case errors.Cause(err) != ErrNotFound:
		return CheckInResult{}, errors.Wrap(err, "finding manager")
	}

	contestant, err := svc.repo.FindContestant(ctx, session.EventID, svc.contestantCode(req.Code))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return CheckInResult{}, ErrCodeNotFound
		}
		return CheckInResult{}, errors.Wrap(err, "finding contestant")
	}
	if contestant.Present() {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}

	logEntry.ParticipantType, logEntry.ParticipantID = ParticipantContestant, contestant.ContestantID
	err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
		if err := svc.repo.MarkContestantPresent(ctx, contestant.ID, now, tx); err != nil {
			return errors.Wrap(err, "marking contestant present")
		}
		_, err := svc.repo.InsertLog(ctx, logEntry, tx)
		return errors.Wrap(err, "logging check-in")
	})
	if err != nil {
		return CheckInResult{}, err
	}

	svc.invalidateStats(ctx, session.EventID)
	return CheckInResult{
		Message:         "Contestant checked in",
		ParticipantType: ParticipantContestant,
		ParticipantName: contestant.Name,
		ContingentID:    contestant.ContingentID,
		CheckInTime:     now,
		Updated:         PresenceCounts{Contestants: 1},
	}, nil
}

// contestantCode normalizes IC numbers typed by agents; hashcodes are left as they are.
func (svc *service) contestantCode(code string) string {
	if core.IsIC(code) {
		return core.NormalizeIC(code)
	}
	return code
}

// Record lets organizers check in a contingent, by its contingent code or manually at a given date and time.
func (svc *service) Record(ctx context.Context, eventID int, req RecordRequest) (CheckInResult, error) {
	if _, err := svc.events.Get(ctx, eventID); err != nil {
		return CheckInResult{}, err
	}

	var (
		rec ContingentRecord
		err error
		at  = svc.now()
	)
	switch req.Method {
	case RecordQRCode:
		rec, err = svc.repo.FindContingent(ctx, eventID, req.Hashcode)
	default:
		rec, err = svc.repo.GetContingentRecord(ctx, eventID, req.ContingentID)
		at = req.at.UTC()
	}
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return CheckInResult{}, ErrCodeNotFound
		}
		return CheckInResult{}, errors.Wrap(err, "finding contingent")
	}
	if rec.Present() {
		return CheckInResult{}, ErrAlreadyCheckedIn
	}

	res := CheckInResult{
		Message:      "Contingent attendance recorded",
		ContingentID: rec.ContingentID,
		CheckInTime:  at,
	}
	err = svc.runInTx(ctx, func(tx core.DBExecutor) error {
		var err error
		res.Updated, err = svc.repo.MarkContingentPresent(ctx, eventID, rec.ContingentID, at, PresenceScope{}, tx)
		return errors.Wrap(err, "marking contingent present")
	})
	if err != nil {
		return CheckInResult{}, err
	}

	svc.invalidateStats(ctx, eventID)
	return res, nil
}

func (svc *service) Logs(ctx context.Context, eventID int, page core.Pagination) ([]LogEntry, core.Page, error) {
	page.Clean()
	entries, total, err := svc.repo.QueryLogs(ctx, eventID, page)
	if err != nil {
		return nil, core.Page{}, err
	}
	return entries, core.NewPage(page, total), nil
}
