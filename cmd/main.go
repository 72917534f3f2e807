package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"exceptiontracker/src/database"
	"exceptiontracker/src/database/migrations"
	"exceptiontracker/src/server"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "exceptions"
	app.Usage = "Exception tracker command line interface"
	app.Version = Version

	app.Commands = []cli.Command{
		serveCMD,
		sweepCMD,
		sweeperCMD,
		seedSLACMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serveCMD = cli.Command{
		Name:        "serve",
		Usage:       "run the HTTP API",
		Action:      serveAction,
		Flags:       []cli.Flag{},
		Description: `Run the exception API together with the scheduled SLA sweeper`,
	}
	sweepCMD = cli.Command{
		Name:        "sweep",
		Usage:       "flag SLA breaches once",
		Action:      sweepAction,
		Flags:       []cli.Flag{},
		Description: `Run a single SLA breach sweep and exit`,
	}
	sweeperCMD = cli.Command{
		Name:        "sweeper",
		Usage:       "run the SLA sweeper on its schedule",
		Action:      sweeperAction,
		Flags:       []cli.Flag{},
		Description: `Run the SLA breach sweeper on SLA_SWEEP_SCHEDULE until interrupted`,
	}
	seedSLACMD = cli.Command{
		Name:        "seed-sla",
		Usage:       "install the default SLA rules",
		Action:      seedSLAAction,
		Flags:       []cli.Flag{},
		Description: `Create the default SLA rule for every severity that has none`,
	}
)

func initDB() error {
	if err := database.InitMainDB(); err != nil {
		return err
	}
	return database.InitReadOnlyDB()
}

func serveAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "serve")
	log.Info("Starting API CMD")

	if err := initDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}
	app := server.NewApp()
	if err := app.Scheduler.StartWithContext(context.Background()); err != nil {
		log.WithError(err).Error("Starting SLA sweeper")
		return err
	}
	server.StartServer(server.GetConfig(), server.NewRouter(app.Workflow, app.Queries), func(ctx context.Context) {
		if err := app.Scheduler.StopWithContext(ctx); err != nil {
			log.WithError(err).Warn("SLA sweeper did not stop cleanly")
		}
		if err := app.Workflow.Drain(ctx); err != nil {
			log.WithError(err).Warn("Escalation notifications still in flight")
		}
	})
	return nil
}

func sweepAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "sweep")

	if err := initDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}
	ids, err := server.NewApp().Sweeper.CheckSLABreach(context.Background())
	if err != nil {
		log.WithError(err).Error("SLA sweep failed")
		return err
	}
	log.WithField("flagged_ids", ids).Info("SLA sweep done")
	return nil
}

func sweeperAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "sweeper")

	if err := initDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}
	scheduler := server.NewApp().Scheduler
	if err := scheduler.StartWithContext(context.Background()); err != nil {
		log.WithError(err).Error("Starting SLA sweeper")
		return err
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), server.GetConfig().ShutdownTimeout)
	defer cancel()
	return scheduler.StopWithContext(ctx)
}

func seedSLAAction(_ *cli.Context) error {
	log := logrus.WithField("cmd", "seed-sla")

	if err := database.InitMainDB(); err != nil {
		log.WithError(err).Error("Failed to connect to database")
		return err
	}
	if err := migrations.SeedDefaultSLARules(database.MainDB); err != nil {
		log.WithError(err).Error("Seeding SLA rules")
		return err
	}
	log.Info("Default SLA rules installed")
	return nil
}
