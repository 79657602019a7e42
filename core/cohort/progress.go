package cohort

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
)

// ComputeProgress derives the progress summary from the completed lesson IDs.
// Lessons that are not part of the course are ignored. A module counts as completed once all its lessons are.
func ComputeProgress(lessons []course.Lesson, completedIDs []string, quizScores map[string]int) Progress {
	done := make(map[string]bool, len(completedIDs))
	for _, id := range completedIDs {
		done[id] = true
	}

	var completed int
	moduleTotals := make(map[string]int)
	moduleDone := make(map[string]int)
	for _, l := range lessons {
		moduleTotals[l.ModuleID]++
		if done[l.ID] {
			completed++
			moduleDone[l.ModuleID]++
		}
	}
	var completedModules int
	for moduleID, total := range moduleTotals {
		if moduleDone[moduleID] == total {
			completedModules++
		}
	}

	p := Progress{
		CompletedLessons: completed,
		CompletedModules: completedModules,
		TotalLessons:     len(lessons),
		QuizScores:       make(map[string]int, len(quizScores)),
	}
	if p.TotalLessons > 0 {
		p.Percentage = completed * 100 / p.TotalLessons
	}
	for quiz, score := range quizScores {
		p.QuizScores[quiz] = score
	}
	return p
}

// activeEnrollment locks the enrollment of userID and makes sure it holds a seat.
// The lock keeps concurrent activity and status changes of the same enrollment from interleaving.
func (svc *Service) activeEnrollment(ctx context.Context, cohortID, userID string, exec core.DBExecutor) (Enrollment, error) {
	enr, err := svc.repo.LockEnrollment(ctx, cohortID, userID, exec)
	if err != nil {
		if errors.Is(err, ErrNoEnrollment) {
			return Enrollment{}, ErrNotEnrolled
		}
		return Enrollment{}, errors.Wrap(err, "locking enrollment")
	}
	if !enr.Status.Occupies() {
		return Enrollment{}, ErrNotEnrolled
	}
	return enr, nil
}

// afterActivity refreshes the derived enrollment fields. It runs in the same transaction as the activity itself.
func (svc *Service) afterActivity(ctx context.Context, enr Enrollment, lessons []course.Lesson, now time.Time, exec core.DBExecutor) (Enrollment, error) {
	completedIDs, err := svc.repo.ListCompletedLessons(ctx, enr.CohortID, enr.UserID, exec)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "listing completed lessons")
	}
	progress := ComputeProgress(lessons, completedIDs, enr.Progress.QuizScores)
	if err = progress.Validate(); err != nil {
		return Enrollment{}, err
	}

	enr.Progress = progress
	enr.CompletedLessons = progress.CompletedLessons
	enr.LastActivityAt = now
	enr.UpdatedAt = now
	if err = svc.repo.UpdateEnrollmentActivity(ctx, enr, exec); err != nil {
		return Enrollment{}, errors.Wrap(err, "updating enrollment activity")
	}
	return enr, nil
}

func (svc *Service) courseLessons(ctx context.Context, cohortID string) ([]course.Lesson, error) {
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	lessons, err := svc.catalog.ListLessons(ctx, cht.CourseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	return lessons, nil
}

// RecordLessonProgress stores the user's progress on one lesson and refreshes the enrollment summary.
// Completion is sticky: once completed, a lesson stays completed.
func (svc *Service) RecordLessonProgress(ctx context.Context, cohortID, userID string, pu ProgressUpdate) (Enrollment, error) {
	lessons, err := svc.courseLessons(ctx, cohortID)
	if err != nil {
		return Enrollment{}, err
	}
	found := false
	for _, l := range lessons {
		if l.ID == pu.LessonID {
			found = true
			break
		}
	}
	if !found {
		return Enrollment{}, ErrLessonNotFound
	}

	var enr Enrollment
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if enr, err = svc.activeEnrollment(ctx, cohortID, userID, exec); err != nil {
			return err
		}

		now := core.NowFunc()
		lp, err := svc.repo.GetLessonProgress(ctx, cohortID, userID, pu.LessonID, exec)
		if err != nil {
			if !errors.Is(err, ErrNoLessonProgress) {
				return errors.Wrap(err, "getting lesson progress")
			}
			lp = LessonProgress{UserID: userID, LessonID: pu.LessonID, CohortID: cohortID}
		}
		lp.VideoPositionSeconds = pu.VideoPositionSeconds
		lp.TimeSpentSeconds += pu.TimeSpentSeconds
		lp.WatchCount++
		if pu.Completed && !lp.Completed {
			lp.Completed = true
			lp.CompletedAt = &now
		}
		lp.UpdatedAt = now
		if _, err = svc.repo.UpsertLessonProgress(ctx, lp, exec); err != nil {
			return errors.Wrap(err, "upserting lesson progress")
		}

		enr, err = svc.afterActivity(ctx, enr, lessons, now, exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enr, nil
}

// RecordQuizScore stores the latest score of a quiz in the enrollment progress.
func (svc *Service) RecordQuizScore(ctx context.Context, cohortID, userID string, qs QuizScoreUpdate) (Enrollment, error) {
	if qs.Score < 0 || qs.Score > 100 {
		return Enrollment{}, core.NewValidationError(
			errors.New("invalid quiz score"),
			core.FieldError{Field: "score", Error: "must be between 0 and 100"},
		)
	}
	lessons, err := svc.courseLessons(ctx, cohortID)
	if err != nil {
		return Enrollment{}, err
	}

	var enr Enrollment
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if enr, err = svc.activeEnrollment(ctx, cohortID, userID, exec); err != nil {
			return err
		}
		scores := make(map[string]int, len(enr.Progress.QuizScores)+1)
		for quiz, score := range enr.Progress.QuizScores {
			scores[quiz] = score
		}
		scores[qs.QuizID] = qs.Score
		enr.Progress.QuizScores = scores

		enr, err = svc.afterActivity(ctx, enr, lessons, core.NowFunc(), exec)
		return err
	})
	if err != nil {
		return Enrollment{}, err
	}
	return enr, nil
}
