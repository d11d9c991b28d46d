package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/syaifulazham/techlympics/apps/api/echo"
	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/certificate"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/moodle"
	"github.com/syaifulazham/techlympics/core/participant"
	"github.com/syaifulazham/techlympics/core/user"
	cachesvc "github.com/syaifulazham/techlympics/services/cache"
	emailsvc "github.com/syaifulazham/techlympics/services/email"
	exportsvc "github.com/syaifulazham/techlympics/services/export"
	logsvc "github.com/syaifulazham/techlympics/services/logger"
	moodlesvc "github.com/syaifulazham/techlympics/services/moodle"
	"github.com/syaifulazham/techlympics/storage/database"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	sqlxrepos "github.com/syaifulazham/techlympics/storage/database/sqlx"
)

// ReportTimezone is the zone attendance reports and exports are rendered in.
const ReportTimezone = "Asia/Kuala_Lumpur"

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// cacheStore backs both the statistics cache and the duplicate scan guard.
type cacheStore interface {
	attendance.Cache
	attendance.ScanGuard
}

type attendanceParams struct {
	dig.In

	Conf         *core.Config
	DB           core.DB
	Repo         attendance.Repository
	Reports      attendance.ReportRepository
	Events       event.Service
	Participants participant.Service
	Store        cacheStore
	Exporter     attendance.Exporter
	MailSvc      core.EmailService
	Logger       core.Logger
}

type serverParams struct {
	dig.In

	Conf           *core.Config
	Logger         core.Logger
	Validate       *validator.Validate
	Translator     ut.Translator
	UserSvc        user.Service
	EventSvc       event.Service
	ParticipantSvc participant.Service
	AttendanceSvc  attendance.Service
	Jobs           *attendance.JobRunner
	CertificateSvc certificate.Service
	MoodleSvc      moodle.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.DB) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newExecutor(db *sql.DB) core.DBExecutor {
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, os.Stdout, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newCacheStore uses redis when configured. The in-memory store only suits a single API instance.
func newCacheStore(conf *core.Config, logger core.Logger) cacheStore {
	if !conf.Redis.Enabled() {
		logger.Warn("redis not configured: using in-memory cache")
		return cachesvc.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rdb, err := cachesvc.NewRedisClient(ctx, conf.Redis)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to redis: %v; using in-memory cache", err), err)
		return cachesvc.NewMemoryStore()
	}
	return cachesvc.NewRedisStore(rdb)
}

func newExporter(logger core.Logger) attendance.Exporter {
	loc, err := time.LoadLocation(ReportTimezone)
	if err != nil {
		logger.Warn(fmt.Sprintf("loading %s: %v; exporting in UTC", ReportTimezone, err))
		loc = time.UTC
	}
	return exportsvc.NewXLSXExporter(loc)
}

func newMoodleClient(conf *core.Config, logger core.Logger) moodle.Client {
	return moodlesvc.NewClient(conf.Moodle, logger)
}

func newMoodleService(client moodle.Client, participants participant.Service, logger core.Logger) moodle.Service {
	return moodle.NewService(client, participants, logger)
}

func newAttendanceService(p attendanceParams) attendance.Service {
	return attendance.NewService(attendance.Deps{
		Conf:         p.Conf,
		DB:           p.DB,
		Repo:         p.Repo,
		Reports:      p.Reports,
		Events:       p.Events,
		Participants: p.Participants,
		Cache:        p.Store,
		ScanGuard:    p.Store,
		Exporter:     p.Exporter,
		MailSvc:      p.MailSvc,
		Logger:       p.Logger,
	})
}

func newJobRunner(svc attendance.Service, conf *core.Config, logger core.Logger) *attendance.JobRunner {
	return attendance.NewJobRunner(svc, conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:           p.Conf,
		Logger:         p.Logger,
		Validate:       p.Validate,
		Translator:     p.Translator,
		UserSvc:        p.UserSvc,
		EventSvc:       p.EventSvc,
		ParticipantSvc: p.ParticipantSvc,
		AttendanceSvc:  p.AttendanceSvc,
		SyncJobs:       p.Jobs,
		CertificateSvc: p.CertificateSvc,
		MoodleSvc:      p.MoodleSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newExecutor))
	must(c.Provide(newEmailService))
	must(c.Provide(newCacheStore))
	must(c.Provide(newExporter))
	must(c.Provide(newMoodleClient))

	// repositories
	must(c.Provide(boiledrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(boiledrepos.NewEventRepository, dig.As(new(event.Repository))))
	must(c.Provide(boiledrepos.NewParticipantRepository, dig.As(new(participant.Repository))))
	must(c.Provide(boiledrepos.NewAttendanceRepository, dig.As(new(attendance.Repository))))
	must(c.Provide(boiledrepos.NewCertificateRepository, dig.As(new(certificate.Repository))))
	must(c.Provide(sqlxrepos.NewReportRepository, dig.As(new(attendance.ReportRepository))))

	// services
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService, dig.As(new(user.Service))))
	must(c.Provide(event.NewService, dig.As(new(event.Service))))
	must(c.Provide(participant.NewService, dig.As(new(participant.Service))))
	must(c.Provide(certificate.NewService, dig.As(new(certificate.Service))))
	must(c.Provide(newMoodleService))
	must(c.Provide(newAttendanceService))
	must(c.Provide(newJobRunner))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
