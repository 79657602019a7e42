package roster

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

type (
	Repository interface {
		ListCohortIDs(ctx context.Context, exec ...core.DBExecutor) ([]string, error)
		CohortExists(ctx context.Context, cohortID string, exec ...core.DBExecutor) (bool, error)
		// LockRoster serializes rebuilds of the same cohort until the transaction ends.
		// It never locks enrollment, cohort or submission rows.
		LockRoster(ctx context.Context, cohortID string, exec ...core.DBExecutor) error
		// RebuildRoster replaces the snapshot rows of the cohort with freshly aggregated ones and returns their number.
		RebuildRoster(ctx context.Context, cohortID string, exec ...core.DBExecutor) (int, error)
		SaveRefresh(ctx context.Context, r Refresh, exec ...core.DBExecutor) error
		GetRefresh(ctx context.Context, cohortID string, exec ...core.DBExecutor) (Refresh, error)
		// QueryRoster reads the snapshot rows, each stamped with the time of the rebuild that produced it.
		QueryRoster(ctx context.Context, cohortID string, filter Filter, exec ...core.DBExecutor) ([]Row, error)
	}

	Service struct {
		db     core.Transactor
		repo   Repository
		logger core.Logger
	}
)

func NewService(db core.Transactor, repo Repository, logger core.Logger) *Service {
	return &Service{db: db, repo: repo, logger: logger}
}

// RefreshError lists the cohorts whose rebuild failed during a full refresh.
type RefreshError struct {
	Errors map[string]error // {cohortID: error}
}

func (e *RefreshError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for id, err := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %v", id, err))
	}
	return "refreshing roster: " + strings.Join(parts, "; ")
}

// CohortIDs returns the IDs of the cohorts that failed.
func (e *RefreshError) CohortIDs() []string {
	ids := make([]string, 0, len(e.Errors))
	for id := range e.Errors {
		ids = append(ids, id)
	}
	return ids
}

func (svc *Service) refreshCohort(ctx context.Context, cohortID string) error {
	return svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		if err := svc.repo.LockRoster(ctx, cohortID, exec); err != nil {
			return errors.Wrap(err, "locking roster")
		}
		n, err := svc.repo.RebuildRoster(ctx, cohortID, exec)
		if err != nil {
			return errors.Wrap(err, "rebuilding roster")
		}
		err = svc.repo.SaveRefresh(ctx, Refresh{CohortID: cohortID, RefreshedAt: core.NowFunc(), RowCount: n}, exec)
		return errors.Wrap(err, "saving refresh")
	})
}

// Refresh rebuilds the roster snapshot of one cohort, or of every cohort when cohortID is nil.
// Each cohort is rebuilt in its own transaction; a full refresh keeps going past failures and reports
// them all in a *RefreshError.
func (svc *Service) Refresh(ctx context.Context, cohortID *string) error {
	if cohortID != nil {
		exists, err := svc.repo.CohortExists(ctx, *cohortID)
		if err != nil {
			return errors.Wrap(err, "checking cohort")
		}
		if !exists {
			return ErrCohortNotFound
		}
		return svc.refreshCohort(ctx, *cohortID)
	}

	ids, err := svc.repo.ListCohortIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "listing cohorts")
	}
	failed := make(map[string]error)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := svc.refreshCohort(ctx, id); err != nil {
			svc.logger.Error("refreshing roster", err, map[string]interface{}{"cohort_id": id})
			failed[id] = err
		}
	}
	if len(failed) > 0 {
		return &RefreshError{Errors: failed}
	}
	svc.logger.Debug("roster refreshed", map[string]interface{}{"cohorts": len(ids)})
	return nil
}

// Get reads the cohort's roster snapshot. The snapshot may lag behind the latest writes;
// every row carries the time of the rebuild it comes from. A cohort never refreshed has an empty roster.
func (svc *Service) Get(ctx context.Context, cohortID string, filter Filter) ([]Row, error) {
	if err := filter.Clean(); err != nil {
		return nil, err
	}
	exists, err := svc.repo.CohortExists(ctx, cohortID)
	if err != nil {
		return nil, errors.Wrap(err, "checking cohort")
	}
	if !exists {
		return nil, ErrCohortNotFound
	}
	rows, err := svc.repo.QueryRoster(ctx, cohortID, filter)
	if err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	return rows, nil
}

// LastRefresh returns when the cohort's snapshot was last rebuilt.
func (svc *Service) LastRefresh(ctx context.Context, cohortID string) (Refresh, error) {
	ref, err := svc.repo.GetRefresh(ctx, cohortID)
	if err != nil {
		if errors.Is(err, ErrNeverRefreshed) {
			return Refresh{CohortID: cohortID}, nil
		}
		return Refresh{}, errors.Wrap(err, "getting last refresh")
	}
	return ref, nil
}
