// Package dig_container wires the API dependencies with go.uber.org/dig.
package dig_container

import (
	"context"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/campus/apps/api/echo"
	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/roster"
	"github.com/trezcool/campus/core/submission"
	"github.com/trezcool/campus/core/user"
	catalogsvc "github.com/trezcool/campus/services/catalog"
	emailsvc "github.com/trezcool/campus/services/email"
	"github.com/trezcool/campus/services/filestore"
	logsvc "github.com/trezcool/campus/services/logger"
	"github.com/trezcool/campus/services/ratelimit"
	"github.com/trezcool/campus/storage/database"
	sqlxrepos "github.com/trezcool/campus/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// LimiterCloser releases the rate limiter's backing store.
type LimiterCloser func() error

type serverParams struct {
	dig.In

	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	CohortSvc     *cohort.Service
	SubmissionSvc *submission.Service
	RosterSvc     *roster.Service
	Limiter       ratelimit.Limiter
	Shutdown      chan os.Signal
}

func newZap(conf *core.Config) *zap.Logger {
	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("setting up logger: %v", err)
	}
	return zl
}

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	return db
}

func newTransactor(db *sqlx.DB, conf *core.Config, loggerParam DBLoggerParam) core.Transactor {
	return database.NewTransactor(db, conf, loggerParam.Logger)
}

// newCatalog reads the catalog over HTTP when a catalog URL is configured, from the shared database otherwise.
func newCatalog(conf *core.Config, db *sqlx.DB) course.Catalog {
	if conf.Catalog.URL != "" {
		return catalogsvc.NewClient(conf)
	}
	return sqlxrepos.NewCatalog(db)
}

func newFileStore(conf *core.Config, logger core.Logger) submission.FileStore {
	files, err := filestore.NewLocalStore(conf)
	if err != nil {
		logger.Fatal("setting up file store", err)
	}
	return files
}

func newLimiter(conf *core.Config) (ratelimit.Limiter, LimiterCloser) {
	limiter, closeFn := ratelimit.New(context.Background(), conf)
	return limiter, closeFn
}

func newSubmissionService(
	db core.Transactor,
	repo submission.Repository,
	files submission.FileStore,
	catalog course.Catalog,
	usrRepo user.Repository,
	mailSvc core.EmailService,
	logger core.Logger,
) *submission.Service {
	return submission.NewService(submission.Deps{
		DB:       db,
		Repo:     repo,
		Files:    files,
		Catalog:  catalog,
		UserRepo: usrRepo,
		MailSvc:  mailSvc,
		Logger:   logger,
	})
}

func newShutdownChan() chan os.Signal {
	return make(chan os.Signal, 1)
}

func newServer(p serverParams) echoapi.Server {
	return echoapi.NewServer(p.Shutdown, echoapi.Deps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		CohortSvc:     p.CohortSvc,
		SubmissionSvc: p.SubmissionSvc,
		RosterSvc:     p.RosterSvc,
		Limiter:       p.Limiter,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZap))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newTransactor))
	must(c.Provide(newCatalog))
	must(c.Provide(newFileStore))
	must(c.Provide(newLimiter))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(sqlxrepos.NewUserRepository))
	must(c.Provide(sqlxrepos.NewCohortRepository))
	must(c.Provide(sqlxrepos.NewSubmissionRepository))
	must(c.Provide(sqlxrepos.NewRosterRepository))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(cohort.NewService))
	must(c.Provide(newSubmissionService))
	must(c.Provide(roster.NewService))
	must(c.Provide(newShutdownChan))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
