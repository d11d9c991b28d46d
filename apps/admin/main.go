package main

import (
	"log"
	"os"

	"github.com/syaifulazham/techlympics/core"
	"github.com/syaifulazham/techlympics/core/attendance"
	"github.com/syaifulazham/techlympics/core/event"
	"github.com/syaifulazham/techlympics/core/participant"
	cachesvc "github.com/syaifulazham/techlympics/services/cache"
	emailsvc "github.com/syaifulazham/techlympics/services/email"
	logsvc "github.com/syaifulazham/techlympics/services/logger"
	"github.com/syaifulazham/techlympics/storage/database"
	boiledrepos "github.com/syaifulazham/techlympics/storage/database/sqlboiler"
	sqlxrepos "github.com/syaifulazham/techlympics/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	rollbarLogger := logsvc.NewRollbarLogger(stdLogger, conf)
	rollbarLogger.Enable(!conf.Debug)
	defer rollbarLogger.Close(conf.Server.ShutdownTimeout)
	logger = rollbarLogger

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())

	participants := participant.NewService(boiledrepos.NewParticipantRepository(db))
	attendanceSvc := attendance.NewService(attendance.Deps{
		Conf:         conf,
		DB:           db,
		Repo:         boiledrepos.NewAttendanceRepository(db),
		Reports:      sqlxrepos.NewReportRepository(db),
		Events:       event.NewService(boiledrepos.NewEventRepository(db)),
		Participants: participants,
		Cache:        cachesvc.NewMemoryStore(),
		ScanGuard:    cachesvc.NewMemoryStore(),
		MailSvc:      emailsvc.NewConsoleService(conf, nil, logger),
		Logger:       logger,
	})

	// start CLI
	cli := commandLine{
		db:      db,
		usrRepo: boiledrepos.NewUserRepository(db),
		jobs:    attendance.NewJobRunner(attendanceSvc, conf, logger),
		out:     os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+err.Error(), err)
		}
		rollbarLogger.Close(conf.Server.ShutdownTimeout)
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
