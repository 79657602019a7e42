// Command worker refreshes the roster snapshots on a cron schedule.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/roster"
	emailsvc "github.com/trezcool/campus/services/email"
	logsvc "github.com/trezcool/campus/services/logger"
	"github.com/trezcool/campus/services/rosterjob"
	"github.com/trezcool/campus/storage/database"
	sqlxrepos "github.com/trezcool/campus/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("worker"), conf)
	defer logger.Sync()

	core.ParseEmailTemplates(conf, logger)

	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	rosterSvc := roster.NewService(database.NewTransactor(db, conf, logger), sqlxrepos.NewRosterRepository(db), logger)
	job := rosterjob.New(rosterSvc, emailsvc.NewService(conf, logger), logger, conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err = job.Schedule(c, conf.Roster.CronSpec, conf.Roster.RunTimeout); err != nil {
		logger.Fatal("scheduling roster refresh", err)
	}
	c.Start()
	logger.Info("worker started", map[string]interface{}{"schedule": conf.Roster.CronSpec})

	<-ctx.Done()
	logger.Info("worker stopping")
	<-c.Stop().Done() // wait for a running refresh
}
