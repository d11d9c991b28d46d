package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/certificate"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/moodle"
	"github.com/syaifulazham/techlympics/core/participant"
	"github.com/syaifulazham/techlympics/core/user"
)

type (
	// SyncJobs drives the background attendance sync jobs.
	SyncJobs interface {
		Start(eventID, chunkSize int) (attendance.JobStatus, error)
		Status(eventID int) (attendance.JobStatus, error)
		Pause(eventID int) (attendance.JobStatus, error)
		Resume(eventID int) (attendance.JobStatus, error)
		Stop(eventID int) (attendance.JobStatus, error)
	}

	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		UserSvc        user.Service
		EventSvc       event.Service
		ParticipantSvc participant.Service
		AttendanceSvc  attendance.Service
		SyncJobs       SyncJobs
		CertificateSvc certificate.Service
		MoodleSvc      moodle.Service
		// DisableReqLogs turns the request logger off (tests).
		DisableReqLogs bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		auth:     newAuthenticator(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	api := s.app.Group("/api")
	jwt := s.auth.userMiddleware()

	registerUserAPI(api, jwt, s.auth, s.deps.UserSvc, s.deps.Validate)
	registerEventAPI(api, jwt, s.deps.EventSvc, s.deps.ParticipantSvc)
	registerParticipantAPI(api, jwt, s.deps.ParticipantSvc, s.deps.MoodleSvc, s.deps.Validate)
	registerAttendanceAPI(api, jwt, s.auth, attendanceDeps{
		svc:      s.deps.AttendanceSvc,
		jobs:     s.deps.SyncJobs,
		validate: s.deps.Validate,
	})
	registerCheckInAPI(api, s.auth, s.deps.AttendanceSvc, s.deps.Validate)
	registerCertificateAPI(api, jwt, s.deps.CertificateSvc, s.deps.Validate)
}

// Start listens on the configured address. Listener errors are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address()); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // a shutdown is already pending
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to Techlympics API!")
}
