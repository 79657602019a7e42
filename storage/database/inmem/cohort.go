package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
)

type cohortRepository struct {
	db *DB
}

var _ cohort.Repository = (*cohortRepository)(nil)

func NewCohortRepository(db *DB) cohort.Repository {
	return &cohortRepository{db: db}
}

func copyEnrollment(enr cohort.Enrollment) cohort.Enrollment {
	scores := make(map[string]int, len(enr.Progress.QuizScores))
	for k, v := range enr.Progress.QuizScores {
		scores[k] = v
	}
	enr.Progress.QuizScores = scores
	return enr
}

func (repo *cohortRepository) GetCohort(_ context.Context, id string, _ ...core.DBExecutor) (cohort.Cohort, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if cht, ok := repo.db.data.cohorts[id]; ok {
		return cht, nil
	}
	return cohort.Cohort{}, cohort.ErrNotFound
}

// LockCohort is a plain read: transactions are already serialized.
func (repo *cohortRepository) LockCohort(ctx context.Context, id string, exec ...core.DBExecutor) (cohort.Cohort, error) {
	if err := repo.db.fault("LockCohort"); err != nil {
		return cohort.Cohort{}, err
	}
	return repo.GetCohort(ctx, id, exec...)
}

func (repo *cohortRepository) UpdateCohortStatus(_ context.Context, id string, status cohort.Status, updatedAt time.Time, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	cht, ok := repo.db.data.cohorts[id]
	if !ok {
		return cohort.ErrNotFound
	}
	cht.Status = status
	cht.UpdatedAt = updatedAt
	repo.db.data.cohorts[id] = cht
	return nil
}

func (repo *cohortRepository) CountOccupyingEnrollments(_ context.Context, cohortID string, _ ...core.DBExecutor) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var n int
	for _, enr := range repo.db.data.enrollments {
		if enr.CohortID == cohortID && enr.Status.Occupies() {
			n++
		}
	}
	return n, nil
}

func (repo *cohortRepository) GetEnrollment(_ context.Context, cohortID, userID string, _ ...core.DBExecutor) (cohort.Enrollment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if enr, ok := repo.db.data.enrollments[key(cohortID, userID)]; ok {
		return copyEnrollment(enr), nil
	}
	return cohort.Enrollment{}, cohort.ErrNoEnrollment
}

func (repo *cohortRepository) CreateEnrollment(_ context.Context, enr cohort.Enrollment, _ ...core.DBExecutor) (cohort.Enrollment, error) {
	if err := repo.db.fault("CreateEnrollment"); err != nil {
		return cohort.Enrollment{}, err
	}
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(enr.CohortID, enr.UserID)
	if _, ok := repo.db.data.enrollments[k]; ok {
		return cohort.Enrollment{}, cohort.ErrEnrollmentExists
	}
	repo.db.data.enrollments[k] = copyEnrollment(enr)
	return enr, nil
}

// LockEnrollment is a plain read: transactions are already serialized.
func (repo *cohortRepository) LockEnrollment(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) (cohort.Enrollment, error) {
	if err := repo.db.fault("LockEnrollment"); err != nil {
		return cohort.Enrollment{}, err
	}
	return repo.GetEnrollment(ctx, cohortID, userID, exec...)
}

func (repo *cohortRepository) updateEnrollment(cohortID, userID string, fn func(*cohort.Enrollment)) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(cohortID, userID)
	enr, ok := repo.db.data.enrollments[k]
	if !ok {
		return cohort.ErrNoEnrollment
	}
	fn(&enr)
	repo.db.data.enrollments[k] = copyEnrollment(enr)
	return nil
}

func (repo *cohortRepository) UpdateEnrollmentStatus(_ context.Context, cohortID, userID string, status cohort.EnrollmentStatus, updatedAt time.Time, _ ...core.DBExecutor) error {
	return repo.updateEnrollment(cohortID, userID, func(enr *cohort.Enrollment) {
		enr.Status = status
		enr.UpdatedAt = updatedAt
	})
}

func (repo *cohortRepository) UpdateEnrollmentActivity(_ context.Context, upd cohort.Enrollment, _ ...core.DBExecutor) error {
	if err := repo.db.fault("UpdateEnrollmentActivity"); err != nil {
		return err
	}
	return repo.updateEnrollment(upd.CohortID, upd.UserID, func(enr *cohort.Enrollment) {
		enr.LastActivityAt = upd.LastActivityAt
		enr.CompletedLessons = upd.CompletedLessons
		enr.Progress = upd.Progress
		enr.UpdatedAt = upd.UpdatedAt
	})
}

func (repo *cohortRepository) EnsureCourseEnrollment(_ context.Context, ce cohort.CourseEnrollment, _ ...core.DBExecutor) error {
	if err := repo.db.fault("EnsureCourseEnrollment"); err != nil {
		return err
	}
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(ce.UserID, ce.CourseID)
	if _, ok := repo.db.data.courseEnrollments[k]; !ok {
		repo.db.data.courseEnrollments[k] = ce
	}
	return nil
}

func (repo *cohortRepository) ListSchedules(_ context.Context, cohortID string, _ ...core.DBExecutor) ([]cohort.Schedule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	schedules := make([]cohort.Schedule, 0)
	for _, sch := range repo.db.data.schedules {
		if sch.CohortID == cohortID {
			schedules = append(schedules, sch)
		}
	}
	sort.Slice(schedules, func(i, j int) bool {
		if !schedules[i].UnlockDate.Equal(schedules[j].UnlockDate) {
			return schedules[i].UnlockDate.Before(schedules[j].UnlockDate)
		}
		return schedules[i].ModuleID < schedules[j].ModuleID
	})
	return schedules, nil
}

func (repo *cohortRepository) GetSchedule(_ context.Context, cohortID, moduleID string, _ ...core.DBExecutor) (cohort.Schedule, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if sch, ok := repo.db.data.schedules[key(cohortID, moduleID)]; ok {
		return sch, nil
	}
	return cohort.Schedule{}, cohort.ErrNoSchedule
}

func (repo *cohortRepository) UpsertSchedule(_ context.Context, sch cohort.Schedule, _ ...core.DBExecutor) (cohort.Schedule, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(sch.CohortID, sch.ModuleID)
	if orig, ok := repo.db.data.schedules[k]; ok {
		sch.ID = orig.ID
		sch.CreatedAt = orig.CreatedAt
	}
	repo.db.data.schedules[k] = sch
	return sch, nil
}

func (repo *cohortRepository) DeleteSchedule(_ context.Context, cohortID, moduleID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	k := key(cohortID, moduleID)
	if _, ok := repo.db.data.schedules[k]; !ok {
		return cohort.ErrNoSchedule
	}
	delete(repo.db.data.schedules, k)
	return nil
}

func (repo *cohortRepository) GetLessonProgress(_ context.Context, cohortID, userID, lessonID string, _ ...core.DBExecutor) (cohort.LessonProgress, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if lp, ok := repo.db.data.lessonProgress[key(cohortID, userID, lessonID)]; ok {
		return lp, nil
	}
	return cohort.LessonProgress{}, cohort.ErrNoLessonProgress
}

func (repo *cohortRepository) UpsertLessonProgress(_ context.Context, lp cohort.LessonProgress, _ ...core.DBExecutor) (cohort.LessonProgress, error) {
	if err := repo.db.fault("UpsertLessonProgress"); err != nil {
		return cohort.LessonProgress{}, err
	}
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	repo.db.data.lessonProgress[key(lp.CohortID, lp.UserID, lp.LessonID)] = lp
	return lp, nil
}

func (repo *cohortRepository) ListCompletedLessons(_ context.Context, cohortID, userID string, _ ...core.DBExecutor) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0)
	for _, lp := range repo.db.data.lessonProgress {
		if lp.CohortID == cohortID && lp.UserID == userID && lp.Completed {
			ids = append(ids, lp.LessonID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// AddCohort stores cht as is. Names are unique per course.
func (db *DB) AddCohort(cht cohort.Cohort) (cohort.Cohort, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, other := range db.data.cohorts {
		if other.ID != cht.ID && other.CourseID == cht.CourseID && other.Name == cht.Name {
			return cohort.Cohort{}, cohort.ErrNameTaken
		}
	}
	db.data.cohorts[cht.ID] = cht
	return cht, nil
}

// CourseEnrollments returns the course level enrollments of userID.
func (db *DB) CourseEnrollments(userID string) []cohort.CourseEnrollment {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ces := make([]cohort.CourseEnrollment, 0)
	for _, ce := range db.data.courseEnrollments {
		if ce.UserID == userID {
			ces = append(ces, ce)
		}
	}
	return ces
}
