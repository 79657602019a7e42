// Package rosterjob rebuilds the roster snapshots in the background.
package rosterjob

import (
	"context"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/roster"
)

// Refresher rebuilds roster snapshots. nil cohortID means every cohort.
type Refresher interface {
	Refresh(ctx context.Context, cohortID *string) error
}

type Job struct {
	refresher   Refresher
	mailSvc     core.EmailService
	logger      core.Logger
	maxRetries  int
	baseBackoff time.Duration
	alertTo     []mail.Address
	sleep       func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running bool
}

func New(refresher Refresher, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Job {
	j := &Job{
		refresher:   refresher,
		mailSvc:     mailSvc,
		logger:      logger,
		maxRetries:  conf.Roster.MaxRetries,
		baseBackoff: conf.Roster.BaseBackoff,
		sleep:       sleep,
	}
	if addr, err := mail.ParseAddress(conf.Roster.AlertEmail); err == nil {
		j.alertTo = []mail.Address{*addr}
	}
	return j
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run refreshes every cohort. Cohorts that fail are retried alone, with exponential backoff,
// up to maxRetries times. Overlapping runs are skipped.
func (j *Job) Run(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		j.logger.Info("roster refresh already running, skipping")
		return nil
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := time.Now()
	err := j.refresher.Refresh(ctx, nil)
	attempts := 1
	for ; err != nil && attempts <= j.maxRetries; attempts++ {
		var refreshErr *roster.RefreshError
		if !errors.As(err, &refreshErr) {
			// nothing refreshed yet (listing cohorts failed): start over
			if sErr := j.sleep(ctx, j.backoff(attempts)); sErr != nil {
				return sErr
			}
			err = j.refresher.Refresh(ctx, nil)
			continue
		}

		if sErr := j.sleep(ctx, j.backoff(attempts)); sErr != nil {
			return sErr
		}
		failed := make(map[string]error)
		for _, id := range refreshErr.CohortIDs() {
			id := id
			if rErr := j.refresher.Refresh(ctx, &id); rErr != nil && !errors.Is(rErr, roster.ErrCohortNotFound) {
				failed[id] = rErr
			}
		}
		err = nil
		if len(failed) > 0 {
			err = &roster.RefreshError{Errors: failed}
		}
	}

	if err != nil {
		j.logger.Error("roster refresh failed", err, map[string]interface{}{"attempts": attempts})
		j.alert(attempts, err)
		return err
	}
	j.logger.Info("roster refreshed", map[string]interface{}{"attempts": attempts, "took": time.Since(start).String()})
	return nil
}

func (j *Job) backoff(attempt int) time.Duration {
	return j.baseBackoff * time.Duration(1<<uint(attempt-1))
}

func (j *Job) alert(attempts int, err error) {
	if len(j.alertTo) == 0 {
		return
	}
	cohorts := "all"
	var refreshErr *roster.RefreshError
	if errors.As(err, &refreshErr) {
		ids := refreshErr.CohortIDs()
		sort.Strings(ids)
		cohorts = strings.Join(ids, ", ")
	}
	j.mailSvc.SendMessages(&core.EmailMessage{
		To:           j.alertTo,
		Subject:      "Roster refresh failed",
		TemplateName: "roster_refresh_failed",
		TemplateData: map[string]interface{}{
			"Attempts": attempts,
			"Cohorts":  cohorts,
			"Error":    err.Error(),
		},
	})
}

// Schedule registers the job on c. Each run is bounded by timeout only: stopping c lets a running refresh finish.
func (j *Job) Schedule(c *cron.Cron, spec string, timeout time.Duration) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = j.Run(runCtx)
	})
	return id, errors.Wrapf(err, "scheduling roster refresh %q", spec)
}
