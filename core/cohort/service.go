package cohort

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
)

type (
	Repository interface {
		GetCohort(ctx context.Context, id string, exec ...core.DBExecutor) (Cohort, error)
		// LockCohort reads the cohort and holds an exclusive row lock on it until the transaction ends.
		LockCohort(ctx context.Context, id string, exec ...core.DBExecutor) (Cohort, error)
		UpdateCohortStatus(ctx context.Context, id string, status Status, updatedAt time.Time, exec ...core.DBExecutor) error
		// CountOccupyingEnrollments counts enrollments of the cohort that are active or paused.
		CountOccupyingEnrollments(ctx context.Context, cohortID string, exec ...core.DBExecutor) (int, error)

		GetEnrollment(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) (Enrollment, error)
		// LockEnrollment reads the enrollment and holds an exclusive row lock on it until the transaction ends.
		LockEnrollment(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) (Enrollment, error)
		// CreateEnrollment returns ErrEnrollmentExists when (cohort, user) is taken.
		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		UpdateEnrollmentStatus(ctx context.Context, cohortID, userID string, status EnrollmentStatus, updatedAt time.Time, exec ...core.DBExecutor) error
		// UpdateEnrollmentActivity writes the fields derived from activity (last activity, completed lessons,
		// progress). It never touches the status.
		UpdateEnrollmentActivity(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) error
		// EnsureCourseEnrollment creates the course level enrollment unless the user already has one for the course.
		EnsureCourseEnrollment(ctx context.Context, ce CourseEnrollment, exec ...core.DBExecutor) error

		ListSchedules(ctx context.Context, cohortID string, exec ...core.DBExecutor) ([]Schedule, error)
		GetSchedule(ctx context.Context, cohortID, moduleID string, exec ...core.DBExecutor) (Schedule, error)
		UpsertSchedule(ctx context.Context, sch Schedule, exec ...core.DBExecutor) (Schedule, error)
		DeleteSchedule(ctx context.Context, cohortID, moduleID string, exec ...core.DBExecutor) error

		GetLessonProgress(ctx context.Context, cohortID, userID, lessonID string, exec ...core.DBExecutor) (LessonProgress, error)
		UpsertLessonProgress(ctx context.Context, lp LessonProgress, exec ...core.DBExecutor) (LessonProgress, error)
		// ListCompletedLessons returns the distinct lesson IDs the user completed in the cohort.
		ListCompletedLessons(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) ([]string, error)
	}

	Service struct {
		db      core.Transactor
		repo    Repository
		catalog course.Catalog
		logger  core.Logger
	}
)

func NewService(db core.Transactor, repo Repository, catalog course.Catalog, logger core.Logger) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
}

func (svc *Service) getCohort(ctx context.Context, id string, exec ...core.DBExecutor) (Cohort, error) {
	cht, err := svc.repo.GetCohort(ctx, id, exec...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Cohort{}, ErrCohortNotFound
		}
		return Cohort{}, errors.Wrap(err, "getting cohort")
	}
	return cht, nil
}

func (svc *Service) lockCohort(ctx context.Context, id string, exec core.DBExecutor) (Cohort, error) {
	cht, err := svc.repo.LockCohort(ctx, id, exec)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Cohort{}, ErrCohortNotFound
		}
		return Cohort{}, errors.Wrap(err, "locking cohort")
	}
	return cht, nil
}

// lockEnrollment must run under the cohort row lock when the status is about to change.
func (svc *Service) lockEnrollment(ctx context.Context, cohortID, userID string, exec core.DBExecutor) (Enrollment, error) {
	enr, err := svc.repo.LockEnrollment(ctx, cohortID, userID, exec)
	if err != nil {
		if errors.Is(err, ErrNoEnrollment) {
			return Enrollment{}, ErrEnrollmentNotFound
		}
		return Enrollment{}, errors.Wrap(err, "locking enrollment")
	}
	return enr, nil
}

// checkCapacity must run under the cohort row lock.
func (svc *Service) checkCapacity(ctx context.Context, cht Cohort, exec core.DBExecutor) error {
	if cht.MaxStudents == nil {
		return nil
	}
	count, err := svc.repo.CountOccupyingEnrollments(ctx, cht.ID, exec)
	if err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	if count >= *cht.MaxStudents {
		return ErrCohortFull.WithDetails(map[string]interface{}{
			"max_students":        *cht.MaxStudents,
			"current_enrollments": count,
		})
	}
	return nil
}

// Get returns the cohort along with its number of occupied seats.
func (svc *Service) Get(ctx context.Context, id string) (Detail, error) {
	cht, err := svc.getCohort(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	count, err := svc.repo.CountOccupyingEnrollments(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "counting enrollments")
	}
	return Detail{Cohort: cht, EnrollmentCount: count}, nil
}

// Course returns the catalog course a cohort runs.
func (svc *Service) Course(ctx context.Context, cht Cohort) (course.Course, error) {
	crs, err := svc.catalog.GetCourse(ctx, cht.CourseID)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return crs, nil
}

// Enroll admits userID into the cohort. Checks run in order and the first failing one is reported:
// cohort exists, course published, cohort open, not already enrolled, seat available.
// The seat count and the insert happen under the cohort row lock, so concurrent enrollments never overfill it.
func (svc *Service) Enroll(ctx context.Context, cohortID, userID string) (Enrollment, error) {
	// the catalog may be remote: consult it before taking any lock
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return Enrollment{}, err
	}
	crs, err := svc.catalog.GetCourse(ctx, cht.CourseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return Enrollment{}, ErrCourseUnavailable
		}
		return Enrollment{}, errors.Wrap(err, "getting course")
	}
	if !crs.IsPublished {
		return Enrollment{}, ErrCourseUnavailable
	}

	var enr Enrollment
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		cht, err := svc.lockCohort(ctx, cohortID, exec)
		if err != nil {
			return err
		}
		if !cht.Status.AcceptsEnrollments() {
			return ErrCohortNotOpen
		}

		if _, err = svc.repo.GetEnrollment(ctx, cohortID, userID, exec); err == nil {
			return ErrAlreadyEnrolled
		} else if !errors.Is(err, ErrNoEnrollment) {
			return errors.Wrap(err, "getting enrollment")
		}

		if err = svc.checkCapacity(ctx, cht, exec); err != nil {
			return err
		}

		now := core.NowFunc()
		enr, err = svc.repo.CreateEnrollment(ctx, Enrollment{
			ID:             uuid.New().String(),
			CohortID:       cohortID,
			UserID:         userID,
			Status:         EnrollmentActive,
			EnrolledAt:     now,
			LastActivityAt: now,
			Progress:       Progress{QuizScores: map[string]int{}},
			UpdatedAt:      now,
		}, exec)
		if err != nil {
			if errors.Is(err, ErrEnrollmentExists) {
				return ErrAlreadyEnrolled
			}
			return errors.Wrap(err, "creating enrollment")
		}

		err = svc.repo.EnsureCourseEnrollment(ctx, CourseEnrollment{
			ID:         uuid.New().String(),
			UserID:     userID,
			CourseID:   cht.CourseID,
			CohortID:   cohortID,
			Status:     string(EnrollmentActive),
			EnrolledAt: now,
		}, exec)
		return errors.Wrap(err, "ensuring course enrollment")
	})
	if err != nil {
		return Enrollment{}, err
	}
	svc.logger.Info("user enrolled", map[string]interface{}{"cohort_id": cohortID, "user_id": userID})
	return enr, nil
}

// Drop marks the enrollment as dropped, freeing its seat. Dropping twice is a no-op.
func (svc *Service) Drop(ctx context.Context, cohortID, userID string) (Enrollment, error) {
	var enr Enrollment
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		if _, err := svc.lockCohort(ctx, cohortID, exec); err != nil {
			return err
		}
		var err error
		if enr, err = svc.lockEnrollment(ctx, cohortID, userID, exec); err != nil {
			return err
		}
		if enr.Status == EnrollmentDropped {
			return nil
		}
		enr.Status = EnrollmentDropped
		enr.UpdatedAt = core.NowFunc()
		err = svc.repo.UpdateEnrollmentStatus(ctx, cohortID, userID, enr.Status, enr.UpdatedAt, exec)
		return errors.Wrap(err, "updating enrollment status")
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enr, nil
}

// SetEnrollmentStatus moves an enrollment to another status.
// Taking a seat back (e.g. dropped -> active) goes through the capacity check.
func (svc *Service) SetEnrollmentStatus(ctx context.Context, cohortID, userID string, next EnrollmentStatus) (Enrollment, error) {
	if !next.IsValid() {
		return Enrollment{}, ErrInvalidStatusTransition.Withf("unknown enrollment status %q", next)
	}

	var enr Enrollment
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		cht, err := svc.lockCohort(ctx, cohortID, exec)
		if err != nil {
			return err
		}
		if enr, err = svc.lockEnrollment(ctx, cohortID, userID, exec); err != nil {
			return err
		}
		if enr.Status == next {
			return nil
		}
		if !enr.Status.CanTransitionTo(next) {
			return ErrInvalidStatusTransition.Withf("cannot move enrollment from %s to %s", enr.Status, next)
		}
		if !enr.Status.Occupies() && next.Occupies() {
			if err = svc.checkCapacity(ctx, cht, exec); err != nil {
				return err
			}
		}
		enr.Status = next
		enr.UpdatedAt = core.NowFunc()
		err = svc.repo.UpdateEnrollmentStatus(ctx, cohortID, userID, next, enr.UpdatedAt, exec)
		return errors.Wrap(err, "updating enrollment status")
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enr, nil
}

// GetEnrollment returns the enrollment of userID in the cohort.
func (svc *Service) GetEnrollment(ctx context.Context, cohortID, userID string) (Enrollment, error) {
	if _, err := svc.getCohort(ctx, cohortID); err != nil {
		return Enrollment{}, err
	}
	enr, err := svc.repo.GetEnrollment(ctx, cohortID, userID)
	if err != nil {
		if errors.Is(err, ErrNoEnrollment) {
			return Enrollment{}, ErrEnrollmentNotFound
		}
		return Enrollment{}, errors.Wrap(err, "getting enrollment")
	}
	return enr, nil
}

// UpdateStatus moves the cohort forward in its lifecycle: upcoming, active, completed, archived.
func (svc *Service) UpdateStatus(ctx context.Context, cohortID string, next Status) (Cohort, error) {
	if !next.IsValid() {
		return Cohort{}, ErrInvalidStatusTransition.Withf("unknown cohort status %q", next)
	}

	var cht Cohort
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if cht, err = svc.lockCohort(ctx, cohortID, exec); err != nil {
			return err
		}
		if !cht.Status.CanTransitionTo(next) {
			return ErrInvalidStatusTransition.Withf("cannot move cohort from %s back to %s", cht.Status, next)
		}
		if cht.Status == next {
			return nil
		}
		cht.Status = next
		cht.UpdatedAt = core.NowFunc()
		return errors.Wrap(svc.repo.UpdateCohortStatus(ctx, cohortID, next, cht.UpdatedAt, exec), "updating cohort status")
	})
	if err != nil {
		return Cohort{}, err
	}
	return cht, nil
}
