package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"exceptiontracker/src/database"
	"exceptiontracker/src/server"
)

var APP_NAME = os.Getenv("APP_NAME")

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to read-only database")
	}

	app := server.NewApp()
	if err := app.Scheduler.StartWithContext(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start SLA sweeper")
	}

	server.StartServer(server.GetConfig(), server.NewRouter(app.Workflow, app.Queries), func(ctx context.Context) {
		if err := app.Scheduler.StopWithContext(ctx); err != nil {
			logger.WithError(err).Warn("SLA sweeper did not stop cleanly")
		}
		if err := app.Workflow.Drain(ctx); err != nil {
			logger.WithError(err).Warn("Escalation notifications still in flight")
		}
	})
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
		//nolint
		time.Sleep(time.Second * 5)
	}
}
