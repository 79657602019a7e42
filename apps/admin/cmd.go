package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/trezcool/campus/core/cohort"
)

var errHelp = errors.New("help provided")

type (
	rosterRefresher interface {
		Refresh(ctx context.Context, cohortID *string) error
	}

	cohortUpdater interface {
		UpdateStatus(ctx context.Context, cohortID string, next cohort.Status) (cohort.Cohort, error)
	}

	commandLine struct {
		db        *sql.DB
		rosterSvc rosterRefresher
		cohortSvc cohortUpdater
		out       io.Writer
	}
)

func (cli *commandLine) printf(format string, args ...interface{}) {
	out := cli.out
	if out == nil {
		out = os.Stdout
	}
	_, _ = fmt.Fprintf(out, format, args...)
}

func (cli *commandLine) printUsage() {
	cli.printf("Usage:\n")
	cli.printf("  migrate COMMAND [ARGS] - run a goose migration command (up, down, status, version, ...)\n")
	cli.printf("  refreshroster [-cohort ID] - rebuild the roster of one cohort, or of all of them\n")
	cli.printf("  cohortstatus -cohort ID -status STATUS - move a cohort forward in its lifecycle\n")
}

func (cli *commandLine) run(ctx context.Context, args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	refreshCmd := flag.NewFlagSet("refreshroster", flag.ContinueOnError)
	refreshCohort := refreshCmd.String("cohort", "", "The cohort ID. All cohorts are refreshed when omitted.")

	statusCmd := flag.NewFlagSet("cohortstatus", flag.ContinueOnError)
	statusCohort := statusCmd.String("cohort", "", "The cohort ID.")
	statusValue := statusCmd.String("status", "", "The new status: upcoming, active, completed or archived.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "refreshroster":
		if err := refreshCmd.Parse(args[2:]); err != nil {
			return err
		}
		var cohortID *string
		if *refreshCohort != "" {
			cohortID = refreshCohort
		}
		return cli.refreshRoster(ctx, cohortID)
	case "cohortstatus":
		if err := statusCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *statusCohort == "" || *statusValue == "" {
			statusCmd.Usage()
			return errHelp
		}
		return cli.updateCohortStatus(ctx, *statusCohort, cohort.Status(*statusValue))
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) refreshRoster(ctx context.Context, cohortID *string) error {
	if err := cli.rosterSvc.Refresh(ctx, cohortID); err != nil {
		return err
	}
	if cohortID != nil {
		cli.printf("roster of cohort %s refreshed\n", *cohortID)
	} else {
		cli.printf("all rosters refreshed\n")
	}
	return nil
}

func (cli *commandLine) updateCohortStatus(ctx context.Context, cohortID string, next cohort.Status) error {
	cht, err := cli.cohortSvc.UpdateStatus(ctx, cohortID, next)
	if err != nil {
		return err
	}
	cli.printf("cohort %s is now %s\n", cht.ID, cht.Status)
	return nil
}
