// Package inmemdb is an in-memory implementation of the repositories, used by tests and local demos.
// Transactions are serialized by a single mutex and rolled back by restoring a snapshot of every table.
package inmemdb

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/roster"
	"github.com/trezcool/campus/core/submission"
	"github.com/trezcool/campus/core/user"
)

// Post is a discussion or forum post, only counted by the roster.
type Post struct {
	CohortID string
	UserID   string
}

type tables struct {
	users             map[string]user.User
	courses           map[string]course.Course
	modules           map[string]course.Module
	lessons           map[string]course.Lesson
	cohorts           map[string]cohort.Cohort
	enrollments       map[string]cohort.Enrollment       // {cohortID|userID: }
	courseEnrollments map[string]cohort.CourseEnrollment // {userID|courseID: }
	schedules         map[string]cohort.Schedule         // {cohortID|moduleID: }
	lessonProgress    map[string]cohort.LessonProgress   // {cohortID|userID|lessonID: }
	assignments       map[string]submission.Assignment
	submissions       map[string]submission.Submission // {assignmentID|userID|number: }
	discussions       []Post
	forumPosts        []Post
	roster            map[string][]roster.Row // {cohortID: rows}
	rosterRefreshes   map[string]roster.Refresh
}

func newTables() tables {
	return tables{
		users:             make(map[string]user.User),
		courses:           make(map[string]course.Course),
		modules:           make(map[string]course.Module),
		lessons:           make(map[string]course.Lesson),
		cohorts:           make(map[string]cohort.Cohort),
		enrollments:       make(map[string]cohort.Enrollment),
		courseEnrollments: make(map[string]cohort.CourseEnrollment),
		schedules:         make(map[string]cohort.Schedule),
		lessonProgress:    make(map[string]cohort.LessonProgress),
		assignments:       make(map[string]submission.Assignment),
		submissions:       make(map[string]submission.Submission),
		roster:            make(map[string][]roster.Row),
		rosterRefreshes:   make(map[string]roster.Refresh),
	}
}

func (t tables) clone() tables {
	c := newTables()
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.courses {
		c.courses[k] = v
	}
	for k, v := range t.modules {
		c.modules[k] = v
	}
	for k, v := range t.lessons {
		c.lessons[k] = v
	}
	for k, v := range t.cohorts {
		c.cohorts[k] = v
	}
	for k, v := range t.enrollments {
		c.enrollments[k] = v
	}
	for k, v := range t.courseEnrollments {
		c.courseEnrollments[k] = v
	}
	for k, v := range t.schedules {
		c.schedules[k] = v
	}
	for k, v := range t.lessonProgress {
		c.lessonProgress[k] = v
	}
	for k, v := range t.assignments {
		c.assignments[k] = v
	}
	for k, v := range t.submissions {
		c.submissions[k] = v
	}
	c.discussions = append([]Post(nil), t.discussions...)
	c.forumPosts = append([]Post(nil), t.forumPosts...)
	for k, v := range t.roster {
		c.roster[k] = append([]roster.Row(nil), v...)
	}
	for k, v := range t.rosterRefreshes {
		c.rosterRefreshes[k] = v
	}
	return c
}

type DB struct {
	mu   sync.RWMutex // guards data
	txMu sync.Mutex   // serializes transactions
	data tables

	maxTxRetries int

	faultsMu sync.Mutex
	faults   map[string][]error // {operation: queued errors}
}

var _ core.Transactor = (*DB)(nil)

func NewDB() *DB {
	return &DB{
		data:         newTables(),
		maxTxRetries: 3,
		faults:       make(map[string][]error),
	}
}

// InTx serializes fn with every other transaction and undoes its writes when it fails.
// Like the SQL transactor, it re-runs fn on core.ErrTxConflict and once on other infrastructure failures.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	var conflicts int
	var infraRetried bool
	for {
		err := db.runTx(ctx, fn)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return err
		case errors.Is(err, core.ErrTxConflict):
			if conflicts >= db.maxTxRetries {
				return errors.Wrap(err, "transaction retries exhausted")
			}
			conflicts++
		case !core.IsBusinessError(err) && !infraRetried:
			infraRetried = true
		default:
			return err
		}
	}
}

func (db *DB) runTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.RLock()
	snapshot := db.data.clone()
	db.mu.RUnlock()

	err := fn(nil)
	if err == nil {
		err = ctx.Err() // a deadline hit mid-transaction aborts it
	}
	if err != nil {
		db.mu.Lock()
		db.data = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

// FailNext makes the next call to op return err. Calls queue up.
func (db *DB) FailNext(op string, err error) {
	db.faultsMu.Lock()
	defer db.faultsMu.Unlock()
	db.faults[op] = append(db.faults[op], err)
}

func (db *DB) fault(op string) error {
	db.faultsMu.Lock()
	defer db.faultsMu.Unlock()
	errs := db.faults[op]
	if len(errs) == 0 {
		return nil
	}
	db.faults[op] = errs[1:]
	return errs[0]
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data = newTables()
}

func key(parts ...string) string {
	k := ""
	for i, p := range parts {
		if i > 0 {
			k += "|"
		}
		k += p
	}
	return k
}
