package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/roster"
	catalogsvc "github.com/trezcool/campus/services/catalog"
	logsvc "github.com/trezcool/campus/services/logger"
	"github.com/trezcool/campus/storage/database"
	sqlxrepos "github.com/trezcool/campus/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatal(err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)
	defer logger.Sync()

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer db.Close()

	catalog := sqlxrepos.NewCatalog(db)
	if conf.Catalog.URL != "" {
		catalog = catalogsvc.NewClient(conf)
	}
	tx := database.NewTransactor(db, conf, logger)

	// start CLI
	cli := commandLine{
		db:        db.DB,
		rosterSvc: roster.NewService(tx, sqlxrepos.NewRosterRepository(db), logger),
		cohortSvc: cohort.NewService(tx, sqlxrepos.NewCohortRepository(db), catalog, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		stop()
		db.Close()
		logger.Sync()
		os.Exit(1)
	}
}
