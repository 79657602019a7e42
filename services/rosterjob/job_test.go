package rosterjob

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/roster"
	emailsvc "github.com/trezcool/campus/services/email"
	logsvc "github.com/trezcool/campus/services/logger"
)

// fakeRefresher fails the listed cohorts the given number of times.
type fakeRefresher struct {
	mu       sync.Mutex
	failures map[string]int
	calls    []string
}

func (f *fakeRefresher) Refresh(_ context.Context, cohortID *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if cohortID == nil {
		f.calls = append(f.calls, "*")
		failed := make(map[string]error)
		for id, n := range f.failures {
			if n > 0 {
				f.failures[id]--
				failed[id] = errors.New("boom")
			}
		}
		if len(failed) > 0 {
			return &roster.RefreshError{Errors: failed}
		}
		return nil
	}

	f.calls = append(f.calls, *cohortID)
	if f.failures[*cohortID] > 0 {
		f.failures[*cohortID]--
		return errors.New("boom")
	}
	return nil
}

func newTestJob(t *testing.T, refresher Refresher) (*Job, *emailsvc.ConsoleServiceMock) {
	t.Helper()
	conf := core.NewTestConfig()
	conf.Roster.AlertEmail = "ops@example.com"
	logger := logsvc.NewTestLogger()
	core.ParseEmailTemplates(conf, logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	job := New(refresher, mailSvc, logger, conf)
	job.sleep = func(context.Context, time.Duration) error { return nil }
	return job, mailSvc
}

func TestJob_Run(t *testing.T) {
	tests := []struct {
		name      string
		failures  map[string]int
		wantErr   bool
		wantCalls []string
		wantAlert bool
	}{
		{
			name:      "all good",
			wantCalls: []string{"*"},
		},
		{
			name:      "failed cohort retried alone",
			failures:  map[string]int{"c2": 1},
			wantCalls: []string{"*", "c2"},
		},
		{
			name:      "gives up after max retries",
			failures:  map[string]int{"c3": 10},
			wantErr:   true,
			wantCalls: []string{"*", "c3", "c3"},
			wantAlert: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			failures := make(map[string]int)
			for k, v := range tc.failures {
				failures[k] = v
			}
			refresher := &fakeRefresher{failures: failures}
			job, mailSvc := newTestJob(t, refresher)

			err := job.Run(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantCalls, refresher.calls)

			sent := mailSvc.SentMessages()
			if tc.wantAlert {
				require.Len(t, sent, 1)
				assert.Contains(t, sent[0].TextContent, "c3")
				assert.Contains(t, sent[0].TextContent, "3 attempt(s)")
			} else {
				assert.Empty(t, sent)
			}
		})
	}
}

func TestJob_Schedule(t *testing.T) {
	job, _ := newTestJob(t, &fakeRefresher{})
	c := cron.New()

	_, err := job.Schedule(c, "not a spec", time.Second)
	assert.Error(t, err)

	id, err := job.Schedule(c, "@every 1m", time.Second)
	require.NoError(t, err)
	assert.NotZero(t, id)
}

// blockingRefresher holds Refresh until release is closed and reports the context state it ends with.
type blockingRefresher struct {
	started chan struct{}
	release chan struct{}
	ctxErr  chan error
}

func (b *blockingRefresher) Refresh(ctx context.Context, _ *string) error {
	close(b.started)
	<-b.release
	b.ctxErr <- ctx.Err()
	return nil
}

func TestJob_StopLetsRunningRefreshFinish(t *testing.T) {
	ref := &blockingRefresher{started: make(chan struct{}), release: make(chan struct{}), ctxErr: make(chan error, 1)}
	job, _ := newTestJob(t, ref)
	c := cron.New()
	id, err := job.Schedule(c, "@every 1m", time.Minute)
	require.NoError(t, err)
	c.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Entry(id).Job.Run()
	}()
	<-ref.started

	stopped := c.Stop()
	close(ref.release)
	<-done
	<-stopped.Done()

	assert.NoError(t, <-ref.ctxErr, "the run is not canceled by the shutdown")
}
