package server

import (
	"exceptiontracker/src/database"
	"exceptiontracker/src/notify"
	"exceptiontracker/src/query"
	"exceptiontracker/src/repository"
	"exceptiontracker/src/sla"
	"exceptiontracker/src/workflow"
)

// App holds the services built on top of the shared database connections.
type App struct {
	Workflow  *workflow.Service
	Queries   *query.Engine
	Sweeper   *sla.Sweeper
	Scheduler *sla.Scheduler
}

// NewApp wires the production repositories. database.InitMainDB and
// database.InitReadOnlyDB must have run first.
func NewApp() *App {
	exceptions := repository.NewExceptionRepository()
	logs := repository.NewExceptionLogRepository()

	opts := []workflow.Option{}
	if n := notify.NewWebhookNotifier(notify.GetConfig()); n.Enabled() {
		opts = append(opts, workflow.WithNotifier(n))
	}
	svc := workflow.NewService(exceptions, logs,
		repository.NewSLARuleRepository(),
		repository.NewNumberRepository(),
		opts...,
	)

	reader := database.ReadOnlyDB
	if reader == nil {
		reader = database.MainDB
	}
	engine := query.NewEngine(exceptions.WithDB(reader), logs.WithDB(reader))

	sweeper := sla.NewSweeper(exceptions, nil)
	return &App{
		Workflow:  svc,
		Queries:   engine,
		Sweeper:   sweeper,
		Scheduler: sla.NewScheduler(sla.GetConfig(), sweeper),
	}
}
