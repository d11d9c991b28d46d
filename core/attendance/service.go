package attendance

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
)

var (
	// errors
	ErrNotFound         = errors.New("attendance record not found")
	ErrEndpointNotFound = errors.New("attendance endpoint not found")
	ErrInvalidPasscode  = errors.New("invalid passcode")
	ErrCodeNotFound     = errors.New("participant code not found")
	ErrDuplicateScan    = errors.New("Duplicate scan ignored")
	ErrCacheMiss        = errors.New("cache miss")

	ErrNotAvailable     = core.NewValidationError(errors.New("Attendance not available"))
	ErrAlreadyCheckedIn = core.NewValidationError(errors.New("Already checked in"))
	ErrContestantCode   = core.NewValidationError(errors.New("This is a contestant code; only manager codes can check in a contingent"))
)

type (
	// Repository persists attendance rows. Upserts report whether the row was created.
	Repository interface {
		UpsertContingent(ctx context.Context, rec ContingentRecord, exec ...core.DBExecutor) (bool, error)
		UpsertTeam(ctx context.Context, rec TeamRecord, exec ...core.DBExecutor) (bool, error)
		UpsertContestant(ctx context.Context, rec ContestantRecord, exec ...core.DBExecutor) (bool, error)
		UpsertManager(ctx context.Context, rec ManagerRecord, exec ...core.DBExecutor) (bool, error)

		CreateEndpoint(ctx context.Context, ep Endpoint, exec ...core.DBExecutor) (Endpoint, error)
		GetEndpoint(ctx context.Context, eventID int, endpointhash string, exec ...core.DBExecutor) (Endpoint, error)
		ListEndpoints(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]Endpoint, error)
		DeleteEndpoint(ctx context.Context, eventID, id int, exec ...core.DBExecutor) error

		FindManager(ctx context.Context, eventID int, hashcode string, exec ...core.DBExecutor) (ManagerRecord, error)
		// FindContestant matches code against the contestant hashcode or IC number.
		FindContestant(ctx context.Context, eventID int, code string, exec ...core.DBExecutor) (ContestantRecord, error)
		FindContingent(ctx context.Context, eventID int, hashcode string, exec ...core.DBExecutor) (ContingentRecord, error)
		GetContingentRecord(ctx context.Context, eventID, contingentID int, exec ...core.DBExecutor) (ContingentRecord, error)

		MarkManagerPresent(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error
		MarkContestantPresent(ctx context.Context, id int, at time.Time, exec ...core.DBExecutor) error
		// MarkContingentPresent marks the contingent's rows not yet present as present.
		MarkContingentPresent(ctx context.Context, eventID, contingentID int, at time.Time, scope PresenceScope, exec ...core.DBExecutor) (PresenceCounts, error)

		InsertLog(ctx context.Context, entry LogEntry, exec ...core.DBExecutor) (LogEntry, error)
		QueryLogs(ctx context.Context, eventID int, page core.Pagination, exec ...core.DBExecutor) ([]LogEntry, int, error)

		TeamRecords(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]TeamRecord, error)
		ContestantRecords(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]ContestantRecord, error)
		DeleteTeamRecords(ctx context.Context, ids []int, exec ...core.DBExecutor) (int, error)
		DeleteContestantRecords(ctx context.Context, ids []int, exec ...core.DBExecutor) (int, error)
		// DeleteTeamContestantRecords deletes the contestant rows of the event's teams.
		DeleteTeamContestantRecords(ctx context.Context, eventID int, teamIDs []int, exec ...core.DBExecutor) (int, error)

		PendingManagers(ctx context.Context, eventID int, exec ...core.DBExecutor) ([]ManagerRecord, error)
		SetManagerEmailStatus(ctx context.Context, ids []int, status string, exec ...core.DBExecutor) error
	}

	// ReportRepository runs the read-only aggregate queries.
	ReportRepository interface {
		Counts(ctx context.Context, eventID int, groups []string) (Stats, error)
		StateStats(ctx context.Context, eventID int, groups []string) ([]StateStats, error)
		DailyAttendance(ctx context.Context, eventID int, groups []string) ([]DailyCount, error)
		HourlyAttendance(ctx context.Context, eventID int, groups []string) ([]HourlyCount, error)
		Snapshot(ctx context.Context, eventID int) (Snapshot, error)
		LastSyncDate(ctx context.Context, eventID int) (*time.Time, error)
		ExportRows(ctx context.Context, eventID int) (ExportData, error)
	}

	Cache interface {
		// Get returns ErrCacheMiss when key is absent.
		Get(ctx context.Context, key string) ([]byte, error)
		Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
		DeletePrefix(ctx context.Context, prefix string) error
	}

	ScanGuard interface {
		// Allow reports whether key was not seen within window, and records it.
		Allow(ctx context.Context, key string, window time.Duration) (bool, error)
	}

	Exporter interface {
		Export(w io.Writer, data ExportData) error
	}

	Service interface {
		Count(ctx context.Context, eventID, chunkSize int) (CountResult, error)
		SyncChunk(ctx context.Context, eventID, chunkSize, offset int) (ChunkResult, error)
		SyncStatus(ctx context.Context, eventID int) (SyncStatus, error)
		Cleanup(ctx context.Context, eventID int) (CleanupResult, error)
		Statistics(ctx context.Context, eventID int, groups []string) (Statistics, error)
		Export(ctx context.Context, eventID int, w io.Writer) error

		CreateEndpoint(ctx context.Context, eventID int, ne NewEndpoint) (Endpoint, error)
		ListEndpoints(ctx context.Context, eventID int) ([]Endpoint, error)
		DeleteEndpoint(ctx context.Context, eventID, id int) error
		// VerifyEndpoint returns the endpoint of the event; a non-empty kind must match too.
		VerifyEndpoint(ctx context.Context, eventID int, endpointhash, kind string) (Endpoint, error)
		ValidatePasscode(ctx context.Context, req PasscodeRequest) (Endpoint, error)

		CheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error)
		AgentCheckIn(ctx context.Context, session AgentSession, req AgentCheckInRequest) (CheckInResult, error)
		Record(ctx context.Context, eventID int, req RecordRequest) (CheckInResult, error)
		Logs(ctx context.Context, eventID int, page core.Pagination) ([]LogEntry, core.Page, error)
		SendManagerCodes(ctx context.Context, eventID int) (SendCodesResult, error)
	}

	// Deps groups what the attendance service is built from.
	Deps struct {
		Conf         *core.Config
		DB           core.DB
		Repo         Repository
		Reports      ReportRepository
		Events       event.Service
		Participants participant.Service
		Cache        Cache
		ScanGuard    ScanGuard
		Exporter     Exporter
		MailSvc      core.EmailService
		Logger       core.Logger
	}

	service struct {
		conf         core.AttendanceConfig
		frontendURL  string
		repo         Repository
		reports      ReportRepository
		events       event.Service
		participants participant.Service
		cache        Cache
		scanGuard    ScanGuard
		exporter     Exporter
		mailSvc      core.EmailService
		logger       core.Logger

		runInTx func(ctx context.Context, fn func(tx core.DBExecutor) error) error
		nowFunc func() time.Time
	}
)

// PresenceScope selects which rows of a contingent MarkContingentPresent touches.
type PresenceScope struct {
	Managers bool
}

var _ Service = (*service)(nil)

func NewService(deps Deps) *service {
	db := deps.DB
	return &service{
		conf:         deps.Conf.Attendance,
		frontendURL:  deps.Conf.FrontendBaseURL,
		repo:         deps.Repo,
		reports:      deps.Reports,
		events:       deps.Events,
		participants: deps.Participants,
		cache:        deps.Cache,
		scanGuard:    deps.ScanGuard,
		exporter:     deps.Exporter,
		mailSvc:      deps.MailSvc,
		logger:       deps.Logger,
		runInTx: func(ctx context.Context, fn func(tx core.DBExecutor) error) error {
			return core.RunInTx(ctx, db, fn)
		},
		nowFunc: time.Now,
	}
}

func (svc *service) now() time.Time { return svc.nowFunc().UTC() }

func (svc *service) Export(ctx context.Context, eventID int, w io.Writer) error {
	ev, err := svc.events.Get(ctx, eventID)
	if err != nil {
		return err
	}
	data, err := svc.reports.ExportRows(ctx, eventID)
	if err != nil {
		return errors.Wrap(err, "loading export rows")
	}
	data.EventName = ev.Name
	return errors.Wrap(svc.exporter.Export(w, data), "writing export")
}
