package cohort_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/tests"
)

func setup(t *testing.T, status cohort.Status, maxStudents *int) (*testutil.Env, testutil.CourseFixture, cohort.Cohort) {
	env := testutil.NewEnv(t)
	teacher := testutil.CreateUser(t, env.DB, "teacher", user.RoleTeacher)
	crs := testutil.CreateCourse(t, env.DB, teacher.ID, true, 2, 2)
	cht := testutil.CreateCohort(t, env.DB, crs.Course.ID, status, maxStudents)
	return env, crs, cht
}

func TestService_Enroll(t *testing.T) {
	ctx := context.Background()

	t.Run("checks run in order", func(t *testing.T) {
		env, crs, cht := setup(t, cohort.StatusActive, testutil.IntPtr(1))
		student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)

		_, err := env.CohortSvc.Enroll(ctx, "nope", student.ID)
		assert.ErrorIs(t, err, cohort.ErrCohortNotFound)

		env.DB.SetCoursePublished(crs.Course.ID, false)
		_, err = env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		assert.ErrorIs(t, err, cohort.ErrCourseUnavailable)
		env.DB.SetCoursePublished(crs.Course.ID, true)

		enr, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		require.NoError(t, err)
		assert.Equal(t, cohort.EnrollmentActive, enr.Status)
		assert.Equal(t, 0, enr.Progress.Percentage)

		// already enrolled wins over full
		_, err = env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		assert.ErrorIs(t, err, cohort.ErrAlreadyEnrolled)

		other := testutil.CreateUser(t, env.DB, "other", user.RoleStudent)
		_, err = env.CohortSvc.Enroll(ctx, cht.ID, other.ID)
		require.ErrorIs(t, err, cohort.ErrCohortFull)
		appErr, ok := core.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, map[string]interface{}{"max_students": 1, "current_enrollments": 1}, appErr.Details)
	})

	t.Run("closed cohorts", func(t *testing.T) {
		for _, status := range []cohort.Status{cohort.StatusCompleted, cohort.StatusArchived} {
			env, _, cht := setup(t, status, nil)
			student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
			_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
			assert.ErrorIs(t, err, cohort.ErrCohortNotOpen, status)
		}
	})

	t.Run("upcoming cohorts accept enrollments", func(t *testing.T) {
		env, crs, cht := setup(t, cohort.StatusUpcoming, nil)
		student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
		_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		require.NoError(t, err)

		ces := env.DB.CourseEnrollments(student.ID)
		require.Len(t, ces, 1)
		assert.Equal(t, crs.Course.ID, ces[0].CourseID)
	})

	t.Run("failed insert leaves nothing behind", func(t *testing.T) {
		env, _, cht := setup(t, cohort.StatusActive, nil)
		student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
		boom := errors.New("disk on fire")
		// infrastructure failures are retried once
		env.DB.FailNext("EnsureCourseEnrollment", boom)
		env.DB.FailNext("EnsureCourseEnrollment", boom)

		_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		require.ErrorIs(t, err, boom)
		_, err = env.CohortSvc.GetEnrollment(ctx, cht.ID, student.ID)
		assert.ErrorIs(t, err, cohort.ErrEnrollmentNotFound)
		assert.Empty(t, env.DB.CourseEnrollments(student.ID))
	})

	t.Run("transient failure is retried once", func(t *testing.T) {
		env, _, cht := setup(t, cohort.StatusActive, nil)
		student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
		env.DB.FailNext("EnsureCourseEnrollment", errors.New("connection reset"))

		_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
		require.NoError(t, err)
		assert.Len(t, env.DB.CourseEnrollments(student.ID), 1)
	})
}

func TestService_EnrollConcurrently(t *testing.T) {
	const capacity, extra = 5, 7
	ctx := context.Background()
	env, _, cht := setup(t, cohort.StatusActive, testutil.IntPtr(capacity))

	students := make([]user.User, capacity+extra)
	for i := range students {
		students[i] = testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(students))
	for _, usr := range students {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			_, err := env.CohortSvc.Enroll(ctx, cht.ID, userID)
			errs <- err
		}(usr.ID)
	}
	wg.Wait()
	close(errs)

	var ok, full int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, cohort.ErrCohortFull):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, capacity, ok)
	assert.Equal(t, extra, full)

	detail, err := env.CohortSvc.Get(ctx, cht.ID)
	require.NoError(t, err)
	assert.Equal(t, capacity, detail.EnrollmentCount)
}

func TestService_EnrollSameUserConcurrently(t *testing.T) {
	const n = 10
	ctx := context.Background()
	env, _, cht := setup(t, cohort.StatusActive, nil)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, cohort.ErrAlreadyEnrolled):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)
	assert.Len(t, env.DB.CourseEnrollments(student.ID), 1)

	detail, err := env.CohortSvc.Get(ctx, cht.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, detail.EnrollmentCount)
}

func TestService_EnrollmentStatus(t *testing.T) {
	ctx := context.Background()
	env, _, cht := setup(t, cohort.StatusActive, testutil.IntPtr(1))
	alice := testutil.CreateUser(t, env.DB, "alice", user.RoleStudent)
	bob := testutil.CreateUser(t, env.DB, "bob", user.RoleStudent)

	_, err := env.CohortSvc.Enroll(ctx, cht.ID, alice.ID)
	require.NoError(t, err)

	enr, err := env.CohortSvc.Drop(ctx, cht.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, cohort.EnrollmentDropped, enr.Status)

	enr, err = env.CohortSvc.Drop(ctx, cht.ID, alice.ID)
	require.NoError(t, err, "dropping twice is a no-op")
	assert.Equal(t, cohort.EnrollmentDropped, enr.Status)

	_, err = env.CohortSvc.Enroll(ctx, cht.ID, bob.ID)
	require.NoError(t, err, "the dropped seat is free")

	_, err = env.CohortSvc.SetEnrollmentStatus(ctx, cht.ID, alice.ID, cohort.EnrollmentActive)
	assert.ErrorIs(t, err, cohort.ErrCohortFull, "reactivating needs a seat")

	_, err = env.CohortSvc.SetEnrollmentStatus(ctx, cht.ID, bob.ID, cohort.EnrollmentPaused)
	require.NoError(t, err)
	_, err = env.CohortSvc.Enroll(ctx, cht.ID, testutil.CreateUser(t, env.DB, "carol").ID)
	assert.ErrorIs(t, err, cohort.ErrCohortFull, "paused enrollments keep their seat")

	_, err = env.CohortSvc.SetEnrollmentStatus(ctx, cht.ID, bob.ID, cohort.EnrollmentCompleted)
	require.NoError(t, err)
	_, err = env.CohortSvc.SetEnrollmentStatus(ctx, cht.ID, bob.ID, cohort.EnrollmentPaused)
	assert.ErrorIs(t, err, cohort.ErrInvalidStatusTransition)

	_, err = env.CohortSvc.SetEnrollmentStatus(ctx, cht.ID, "nobody", cohort.EnrollmentActive)
	assert.ErrorIs(t, err, cohort.ErrEnrollmentNotFound)
}

func TestService_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	env, _, cht := setup(t, cohort.StatusUpcoming, nil)

	tests := []struct {
		next    cohort.Status
		wantErr error
	}{
		{next: "paused", wantErr: cohort.ErrInvalidStatusTransition},
		{next: cohort.StatusUpcoming},
		{next: cohort.StatusCompleted},
		{next: cohort.StatusActive, wantErr: cohort.ErrInvalidStatusTransition},
		{next: cohort.StatusArchived},
	}
	for _, tt := range tests {
		got, err := env.CohortSvc.UpdateStatus(ctx, cht.ID, tt.next)
		if tt.wantErr != nil {
			assert.ErrorIs(t, err, tt.wantErr, tt.next)
			continue
		}
		require.NoError(t, err, tt.next)
		assert.Equal(t, tt.next, got.Status)
	}
}

func TestService_Schedule(t *testing.T) {
	ctx := context.Background()
	env, crs, cht := setup(t, cohort.StatusActive, nil)
	mod1, mod2 := crs.Modules[0], crs.Modules[1]
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)

	_, err := env.CohortSvc.UpsertSchedule(ctx, cht.ID, cohort.NewSchedule{ModuleID: "nope", UnlockDate: "2026-03-01"})
	assert.ErrorIs(t, err, cohort.ErrModuleNotFound)

	_, err = env.CohortSvc.UpsertSchedule(ctx, cht.ID, cohort.NewSchedule{ModuleID: mod1.ID, UnlockDate: "2026-03-05", LockDate: "2026-03-01"})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = env.CohortSvc.UpsertSchedule(ctx, cht.ID, cohort.NewSchedule{ModuleID: mod1.ID, UnlockDate: "2026-03-01", LockDate: "2026-03-10"})
	require.NoError(t, err)
	sch, err := env.CohortSvc.UpsertSchedule(ctx, cht.ID, cohort.NewSchedule{ModuleID: mod2.ID, UnlockDate: "2026-03-12"})
	require.NoError(t, err)
	assert.Equal(t, testutil.Date(2026, time.March, 12), sch.UnlockDate)

	statuses, err := env.CohortSvc.ModuleStatuses(ctx, cht.ID, now, false)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].IsUnlocked, "lock date is exclusive")
	assert.Equal(t, "locked", statuses[0].Reason)
	assert.False(t, statuses[1].IsUnlocked)

	statuses, err = env.CohortSvc.ModuleStatuses(ctx, cht.ID, now, true)
	require.NoError(t, err)
	for _, st := range statuses {
		assert.True(t, st.IsUnlocked)
		assert.Equal(t, "teacher_override", st.Reason)
	}

	upcoming, err := env.CohortSvc.UpcomingUnlocks(ctx, cht.ID, now, 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, mod2.ID, upcoming[0].ModuleID)
	assert.Equal(t, 2, upcoming[0].DaysUntil)

	require.NoError(t, env.CohortSvc.DeleteSchedule(ctx, cht.ID, mod2.ID))
	assert.ErrorIs(t, env.CohortSvc.DeleteSchedule(ctx, cht.ID, mod2.ID), cohort.ErrScheduleNotFound)

	statuses, err = env.CohortSvc.ModuleStatuses(ctx, cht.ID, now, false)
	require.NoError(t, err)
	assert.True(t, statuses[1].IsUnlocked)
	assert.Equal(t, "not_scheduled", statuses[1].Reason)
}

func TestService_CanAccessLesson(t *testing.T) {
	ctx := context.Background()
	env, crs, cht := setup(t, cohort.StatusActive, nil)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	now := time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)
	lsn := crs.Lessons[0]

	_, err := env.CohortSvc.UpsertSchedule(ctx, cht.ID, cohort.NewSchedule{ModuleID: lsn.ModuleID, UnlockDate: "2026-03-11"})
	require.NoError(t, err)

	acc, err := env.CohortSvc.CanAccessLesson(ctx, cht.ID, lsn.ID, student.ID, now, false)
	require.NoError(t, err)
	assert.False(t, acc.CanAccess)
	assert.Equal(t, "not_enrolled", acc.Reason)

	_, err = env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
	require.NoError(t, err)

	acc, err = env.CohortSvc.CanAccessLesson(ctx, cht.ID, lsn.ID, student.ID, now, false)
	require.NoError(t, err)
	assert.False(t, acc.CanAccess)
	assert.Equal(t, "module_locked", acc.Reason)

	acc, err = env.CohortSvc.CanAccessLesson(ctx, cht.ID, lsn.ID, student.ID, now.Add(24*time.Hour), false)
	require.NoError(t, err)
	assert.True(t, acc.CanAccess)
	assert.Equal(t, "accessible", acc.Reason)

	_, err = env.CohortSvc.CanAccessLesson(ctx, cht.ID, "nope", student.ID, now, false)
	assert.ErrorIs(t, err, cohort.ErrLessonNotFound)
}

func TestService_Progress(t *testing.T) {
	ctx := context.Background()
	env, crs, cht := setup(t, cohort.StatusActive, nil)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)

	_, err := env.CohortSvc.RecordLessonProgress(ctx, cht.ID, student.ID, cohort.ProgressUpdate{LessonID: crs.Lessons[0].ID})
	assert.ErrorIs(t, err, cohort.ErrNotEnrolled)

	_, err = env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
	require.NoError(t, err)

	// completing both lessons of the first module, one twice
	for _, lsn := range []int{0, 1, 1} {
		_, err = env.CohortSvc.RecordLessonProgress(ctx, cht.ID, student.ID, cohort.ProgressUpdate{
			LessonID:         crs.Lessons[lsn].ID,
			Completed:        true,
			TimeSpentSeconds: 60,
		})
		require.NoError(t, err)
	}
	// completion is sticky
	enr, err := env.CohortSvc.RecordLessonProgress(ctx, cht.ID, student.ID, cohort.ProgressUpdate{LessonID: crs.Lessons[1].ID})
	require.NoError(t, err)
	assert.Equal(t, 2, enr.CompletedLessons)
	assert.Equal(t, cohort.Progress{
		CompletedLessons: 2,
		CompletedModules: 1,
		TotalLessons:     4,
		Percentage:       50,
		QuizScores:       map[string]int{},
	}, enr.Progress)

	enr, err = env.CohortSvc.RecordQuizScore(ctx, cht.ID, student.ID, cohort.QuizScoreUpdate{QuizID: "q1", Score: 70})
	require.NoError(t, err)
	enr, err = env.CohortSvc.RecordQuizScore(ctx, cht.ID, student.ID, cohort.QuizScoreUpdate{QuizID: "q1", Score: 90})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"q1": 90}, enr.Progress.QuizScores)

	_, err = env.CohortSvc.RecordQuizScore(ctx, cht.ID, student.ID, cohort.QuizScoreUpdate{QuizID: "q1", Score: -1})
	var vErr *core.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = env.CohortSvc.RecordLessonProgress(ctx, cht.ID, student.ID, cohort.ProgressUpdate{LessonID: "nope"})
	assert.ErrorIs(t, err, cohort.ErrLessonNotFound)
}

func TestService_ActivityKeepsStatus(t *testing.T) {
	ctx := context.Background()
	env, crs, cht := setup(t, cohort.StatusActive, testutil.IntPtr(1))
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := env.CohortSvc.Drop(ctx, cht.ID, student.ID)
		assert.NoError(t, err)
	}()
	for i := range crs.Lessons {
		wg.Add(1)
		go func(lessonID string) {
			defer wg.Done()
			_, err := env.CohortSvc.RecordLessonProgress(ctx, cht.ID, student.ID, cohort.ProgressUpdate{LessonID: lessonID, Completed: true})
			if err != nil {
				assert.ErrorIs(t, err, cohort.ErrNotEnrolled)
			}
		}(crs.Lessons[i].ID)
	}
	wg.Wait()

	enr, err := env.CohortSvc.GetEnrollment(ctx, cht.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, cohort.EnrollmentDropped, enr.Status)

	// the seat stays free
	_, err = env.CohortSvc.Enroll(ctx, cht.ID, testutil.CreateUser(t, env.DB, "other", user.RoleStudent).ID)
	require.NoError(t, err)

	// a stale activity write cannot bring the enrollment back
	enr.Status = cohort.EnrollmentActive
	enr.CompletedLessons = 3
	require.NoError(t, env.CohortRepo.UpdateEnrollmentActivity(ctx, enr))
	got, err := env.CohortSvc.GetEnrollment(ctx, cht.ID, student.ID)
	require.NoError(t, err)
	assert.Equal(t, cohort.EnrollmentDropped, got.Status)
	assert.Equal(t, 3, got.CompletedLessons)
}

func TestService_ConcurrentQuizScores(t *testing.T) {
	const n = 8
	ctx := context.Background()
	env, _, cht := setup(t, cohort.StatusActive, nil)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	_, err := env.CohortSvc.Enroll(ctx, cht.ID, student.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.CohortSvc.RecordQuizScore(ctx, cht.ID, student.ID, cohort.QuizScoreUpdate{QuizID: fmt.Sprintf("q%d", i), Score: 50 + i})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	enr, err := env.CohortSvc.GetEnrollment(ctx, cht.ID, student.ID)
	require.NoError(t, err)
	assert.Len(t, enr.Progress.QuizScores, n)
}

func TestCohortNamesAreUniquePerCourse(t *testing.T) {
	env, crs, cht := setup(t, cohort.StatusActive, nil)

	dup := cht
	dup.ID = "another"
	_, err := env.DB.AddCohort(dup)
	assert.ErrorIs(t, err, cohort.ErrNameTaken)

	other := testutil.CreateCourse(t, env.DB, crs.Course.CreatedBy, true, 1, 1)
	dup.CourseID = other.Course.ID
	_, err = env.DB.AddCohort(dup)
	assert.NoError(t, err, "same name on another course")
}
