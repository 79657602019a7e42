// Package testutil builds in-memory fixtures shared by package tests.
package testutil

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/roster"
	"github.com/trezcool/campus/core/submission"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/services/email"
	"github.com/trezcool/campus/services/filestore"
	"github.com/trezcool/campus/services/logger"
	"github.com/trezcool/campus/storage/database/inmem"
)

// Env wires every service on top of a fresh in-memory database.
type Env struct {
	Conf    *core.Config
	DB      *inmemdb.DB
	Logger  *logsvc.RollbarLogger
	MailSvc *emailsvc.ConsoleServiceMock

	UserRepo   user.Repository
	Catalog    course.Catalog
	CohortRepo cohort.Repository
	RosterRepo roster.Repository

	CohortSvc     *cohort.Service
	SubmissionSvc *submission.Service
	RosterSvc     *roster.Service
}

func NewEnv(t *testing.T) *Env {
	t.Helper()

	conf := core.NewTestConfig()
	conf.UploadDir = t.TempDir()
	logger := logsvc.NewTestLogger()
	core.ParseEmailTemplates(conf, logger)

	db := inmemdb.NewDB()
	files, err := filestore.NewLocalStore(conf)
	if err != nil {
		t.Fatalf("NewLocalStore() failed: %v", err)
	}

	env := &Env{
		Conf:       conf,
		DB:         db,
		Logger:     logger,
		MailSvc:    emailsvc.NewConsoleServiceMock(conf, logger),
		UserRepo:   inmemdb.NewUserRepository(db),
		Catalog:    inmemdb.NewCatalog(db),
		CohortRepo: inmemdb.NewCohortRepository(db),
		RosterRepo: inmemdb.NewRosterRepository(db),
	}
	env.CohortSvc = cohort.NewService(db, env.CohortRepo, env.Catalog, logger)
	env.SubmissionSvc = submission.NewService(submission.Deps{
		DB:       db,
		Repo:     inmemdb.NewSubmissionRepository(db),
		Files:    files,
		Catalog:  env.Catalog,
		UserRepo: env.UserRepo,
		MailSvc:  env.MailSvc,
		Logger:   logger,
	})
	env.RosterSvc = roster.NewService(db, env.RosterRepo, logger)
	return env
}

func IntPtr(n int) *int { return &n }

// Date returns the UTC midnight of the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func CreateUser(t *testing.T, db *inmemdb.DB, name string, roles ...string) user.User {
	t.Helper()
	return db.AddUser(user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     fmt.Sprintf("%s@example.com", name),
		IsActive:  true,
		Roles:     roles,
		CreatedAt: time.Now().UTC(),
	})
}

// CourseFixture is a course along with its modules and lessons, in order.
type CourseFixture struct {
	Course  course.Course
	Modules []course.Module
	Lessons []course.Lesson
}

// CreateCourse adds a course owned by ownerID with nModules modules of lessonsPerModule lessons each.
func CreateCourse(t *testing.T, db *inmemdb.DB, ownerID string, published bool, nModules, lessonsPerModule int) CourseFixture {
	t.Helper()
	fx := CourseFixture{
		Course: course.Course{
			ID:          uuid.New().String(),
			Title:       "Go in Practice",
			IsPublished: published,
			CreatedBy:   ownerID,
		},
	}
	for m := 0; m < nModules; m++ {
		mod := course.Module{
			ID:         uuid.New().String(),
			CourseID:   fx.Course.ID,
			Title:      fmt.Sprintf("Module %d", m+1),
			OrderIndex: m,
		}
		fx.Modules = append(fx.Modules, mod)
		for l := 0; l < lessonsPerModule; l++ {
			fx.Lessons = append(fx.Lessons, course.Lesson{
				ID:         uuid.New().String(),
				ModuleID:   mod.ID,
				CourseID:   fx.Course.ID,
				Title:      fmt.Sprintf("Lesson %d.%d", m+1, l+1),
				OrderIndex: l,
			})
		}
	}
	db.AddCourse(fx.Course, fx.Modules, fx.Lessons)
	return fx
}

func CreateCohort(t *testing.T, db *inmemdb.DB, courseID string, status cohort.Status, maxStudents *int) cohort.Cohort {
	t.Helper()
	now := time.Now().UTC()
	id := uuid.New().String()
	cht, err := db.AddCohort(cohort.Cohort{
		ID:          id,
		CourseID:    courseID,
		Name:        "Spring cohort " + id[:8],
		StartDate:   Date(2026, time.March, 1),
		MaxStudents: maxStudents,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("AddCohort() failed: %v", err)
	}
	return cht
}

// CreateAssignment adds a published assignment on lessonID. Tweak it with opts before it is stored.
func CreateAssignment(t *testing.T, db *inmemdb.DB, lsn course.Lesson, opts ...func(*submission.Assignment)) submission.Assignment {
	t.Helper()
	a := submission.Assignment{
		ID:                uuid.New().String(),
		LessonID:          lsn.ID,
		CourseID:          lsn.CourseID,
		Title:             "Build a worker pool",
		IsPublished:       true,
		AllowResubmission: true,
		MaxFileSizeMB:     5,
		AllowedFileTypes:  []string{"pdf", "zip"},
	}
	for _, opt := range opts {
		opt(&a)
	}
	return db.AddAssignment(a)
}
