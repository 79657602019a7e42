package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
)

type cohortRepository struct {
	baseRepository
}

var _ cohort.Repository = (*cohortRepository)(nil) // interface compliance check

func NewCohortRepository(db *sqlx.DB) cohort.Repository {
	return &cohortRepository{baseRepository{db: db}}
}

var (
	cohortColumns = []string{
		"id", "course_id", "name", "start_date", "end_date", "max_students", "status", "created_at", "updated_at",
	}
	enrollmentColumns = []string{
		"id", "cohort_id", "user_id", "status", "enrolled_at", "last_activity_at", "completed_lessons", "progress", "updated_at",
	}
	scheduleColumns = []string{
		"id", "cohort_id", "module_id", "unlock_date", "lock_date", "created_at", "updated_at",
	}
	lessonProgressColumns = []string{
		"cohort_id", "user_id", "lesson_id", "completed", "video_position_seconds", "time_spent_seconds",
		"watch_count", "completed_at", "updated_at",
	}
)

type cohortRow struct {
	ID          string    `db:"id"`
	CourseID    string    `db:"course_id"`
	Name        string    `db:"name"`
	StartDate   time.Time `db:"start_date"`
	EndDate     null.Time `db:"end_date"`
	MaxStudents null.Int  `db:"max_students"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r cohortRow) cohort() cohort.Cohort {
	return cohort.Cohort{
		ID:          r.ID,
		CourseID:    r.CourseID,
		Name:        r.Name,
		StartDate:   r.StartDate.UTC(),
		EndDate:     r.EndDate.Ptr(),
		MaxStudents: r.MaxStudents.Ptr(),
		Status:      cohort.Status(r.Status),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type enrollmentRow struct {
	ID               string    `db:"id"`
	CohortID         string    `db:"cohort_id"`
	UserID           string    `db:"user_id"`
	Status           string    `db:"status"`
	EnrolledAt       time.Time `db:"enrolled_at"`
	LastActivityAt   time.Time `db:"last_activity_at"`
	CompletedLessons int       `db:"completed_lessons"`
	Progress         []byte    `db:"progress"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r enrollmentRow) enrollment() (cohort.Enrollment, error) {
	progress, err := cohort.DecodeProgress(r.Progress)
	if err != nil {
		return cohort.Enrollment{}, err
	}
	return cohort.Enrollment{
		ID:               r.ID,
		CohortID:         r.CohortID,
		UserID:           r.UserID,
		Status:           cohort.EnrollmentStatus(r.Status),
		EnrolledAt:       r.EnrolledAt.UTC(),
		LastActivityAt:   r.LastActivityAt.UTC(),
		CompletedLessons: r.CompletedLessons,
		Progress:         progress,
		UpdatedAt:        r.UpdatedAt.UTC(),
	}, nil
}

type scheduleRow struct {
	ID         string    `db:"id"`
	CohortID   string    `db:"cohort_id"`
	ModuleID   string    `db:"module_id"`
	UnlockDate time.Time `db:"unlock_date"`
	LockDate   null.Time `db:"lock_date"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r scheduleRow) schedule() cohort.Schedule {
	sch := cohort.Schedule{
		ID:         r.ID,
		CohortID:   r.CohortID,
		ModuleID:   r.ModuleID,
		UnlockDate: r.UnlockDate.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
	if r.LockDate.Valid {
		lock := r.LockDate.Time.UTC()
		sch.LockDate = &lock
	}
	return sch
}

type lessonProgressRow struct {
	CohortID             string    `db:"cohort_id"`
	UserID               string    `db:"user_id"`
	LessonID             string    `db:"lesson_id"`
	Completed            bool      `db:"completed"`
	VideoPositionSeconds int       `db:"video_position_seconds"`
	TimeSpentSeconds     int       `db:"time_spent_seconds"`
	WatchCount           int       `db:"watch_count"`
	CompletedAt          null.Time `db:"completed_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

func (r lessonProgressRow) lessonProgress() cohort.LessonProgress {
	return cohort.LessonProgress{
		CohortID:             r.CohortID,
		UserID:               r.UserID,
		LessonID:             r.LessonID,
		Completed:            r.Completed,
		VideoPositionSeconds: r.VideoPositionSeconds,
		TimeSpentSeconds:     r.TimeSpentSeconds,
		WatchCount:           r.WatchCount,
		CompletedAt:          r.CompletedAt.Ptr(),
		UpdatedAt:            r.UpdatedAt.UTC(),
	}
}

func (repo cohortRepository) getCohort(ctx context.Context, id string, forUpdate bool, exec []core.DBExecutor) (cohort.Cohort, error) {
	qb := psql.Select(cohortColumns...).From("cohort").Where("id = ?", id)
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return cohort.Cohort{}, err
	}
	var row cohortRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return cohort.Cohort{}, trapNoRowsErr(err, cohort.ErrNotFound, "getting cohort")
	}
	return row.cohort(), nil
}

func (repo cohortRepository) GetCohort(ctx context.Context, id string, exec ...core.DBExecutor) (cohort.Cohort, error) {
	return repo.getCohort(ctx, id, false, exec)
}

func (repo cohortRepository) LockCohort(ctx context.Context, id string, exec ...core.DBExecutor) (cohort.Cohort, error) {
	return repo.getCohort(ctx, id, true, exec)
}

func (repo cohortRepository) UpdateCohortStatus(ctx context.Context, id string, status cohort.Status, updatedAt time.Time, exec ...core.DBExecutor) error {
	query, args, err := psql.
		Update("cohort").
		Set("status", string(status)).
		Set("updated_at", updatedAt.UTC()).
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating cohort status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cohort.ErrNotFound
	}
	return nil
}

func (repo cohortRepository) CountOccupyingEnrollments(ctx context.Context, cohortID string, exec ...core.DBExecutor) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From("cohort_enrollment").
		Where(sq.Eq{
			"cohort_id": cohortID,
			"status":    []string{string(cohort.EnrollmentActive), string(cohort.EnrollmentPaused)},
		}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &n, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting enrollments")
	}
	return n, nil
}

func (repo cohortRepository) getEnrollment(ctx context.Context, cohortID, userID string, forUpdate bool, exec []core.DBExecutor) (cohort.Enrollment, error) {
	qb := psql.
		Select(enrollmentColumns...).
		From("cohort_enrollment").
		Where(sq.Eq{"cohort_id": cohortID, "user_id": userID})
	if forUpdate {
		qb = qb.Suffix("FOR UPDATE")
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return cohort.Enrollment{}, err
	}
	var row enrollmentRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return cohort.Enrollment{}, trapNoRowsErr(err, cohort.ErrNoEnrollment, "getting enrollment")
	}
	return row.enrollment()
}

func (repo cohortRepository) GetEnrollment(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) (cohort.Enrollment, error) {
	return repo.getEnrollment(ctx, cohortID, userID, false, exec)
}

func (repo cohortRepository) LockEnrollment(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) (cohort.Enrollment, error) {
	return repo.getEnrollment(ctx, cohortID, userID, true, exec)
}

func encodeProgress(p cohort.Progress) ([]byte, error) {
	if p.QuizScores == nil {
		p.QuizScores = map[string]int{}
	}
	data, err := json.Marshal(p)
	return data, errors.Wrap(err, "encoding progress")
}

func (repo cohortRepository) CreateEnrollment(ctx context.Context, enr cohort.Enrollment, exec ...core.DBExecutor) (cohort.Enrollment, error) {
	progress, err := encodeProgress(enr.Progress)
	if err != nil {
		return cohort.Enrollment{}, err
	}
	query, args, err := psql.
		Insert("cohort_enrollment").
		Columns(enrollmentColumns...).
		Values(
			enr.ID, enr.CohortID, enr.UserID, string(enr.Status), enr.EnrolledAt.UTC(), enr.LastActivityAt.UTC(),
			enr.CompletedLessons, progress, enr.UpdatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return cohort.Enrollment{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return cohort.Enrollment{}, cohort.ErrEnrollmentExists
		}
		return cohort.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo cohortRepository) updateEnrollment(ctx context.Context, cohortID, userID string, set map[string]interface{}, exec []core.DBExecutor) error {
	query, args, err := psql.
		Update("cohort_enrollment").
		SetMap(set).
		Where(sq.Eq{"cohort_id": cohortID, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "updating enrollment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cohort.ErrNoEnrollment
	}
	return nil
}

func (repo cohortRepository) UpdateEnrollmentStatus(ctx context.Context, cohortID, userID string, status cohort.EnrollmentStatus, updatedAt time.Time, exec ...core.DBExecutor) error {
	return repo.updateEnrollment(ctx, cohortID, userID, map[string]interface{}{
		"status":     string(status),
		"updated_at": updatedAt.UTC(),
	}, exec)
}

func (repo cohortRepository) UpdateEnrollmentActivity(ctx context.Context, enr cohort.Enrollment, exec ...core.DBExecutor) error {
	progress, err := encodeProgress(enr.Progress)
	if err != nil {
		return err
	}
	return repo.updateEnrollment(ctx, enr.CohortID, enr.UserID, map[string]interface{}{
		"last_activity_at":  enr.LastActivityAt.UTC(),
		"completed_lessons": enr.CompletedLessons,
		"progress":          progress,
		"updated_at":        enr.UpdatedAt.UTC(),
	}, exec)
}

func (repo cohortRepository) EnsureCourseEnrollment(ctx context.Context, ce cohort.CourseEnrollment, exec ...core.DBExecutor) error {
	query, args, err := psql.
		Insert("course_enrollment").
		Columns("id", "user_id", "course_id", "cohort_id", "status", "enrolled_at").
		Values(ce.ID, ce.UserID, ce.CourseID, ce.CohortID, ce.Status, ce.EnrolledAt.UTC()).
		Suffix("ON CONFLICT (user_id, course_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = repo.getExec(exec).ExecContext(ctx, query, args...)
	return errors.Wrap(err, "inserting course enrollment")
}

func (repo cohortRepository) ListSchedules(ctx context.Context, cohortID string, exec ...core.DBExecutor) ([]cohort.Schedule, error) {
	query, args, err := psql.
		Select(scheduleColumns...).
		From("cohort_module_schedule").
		Where("cohort_id = ?", cohortID).
		OrderBy("unlock_date", "module_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []scheduleRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing schedules")
	}
	schedules := make([]cohort.Schedule, 0, len(rows))
	for _, r := range rows {
		schedules = append(schedules, r.schedule())
	}
	return schedules, nil
}

func (repo cohortRepository) GetSchedule(ctx context.Context, cohortID, moduleID string, exec ...core.DBExecutor) (cohort.Schedule, error) {
	query, args, err := psql.
		Select(scheduleColumns...).
		From("cohort_module_schedule").
		Where(sq.Eq{"cohort_id": cohortID, "module_id": moduleID}).
		ToSql()
	if err != nil {
		return cohort.Schedule{}, err
	}
	var row scheduleRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return cohort.Schedule{}, trapNoRowsErr(err, cohort.ErrNoSchedule, "getting schedule")
	}
	return row.schedule(), nil
}

func (repo cohortRepository) UpsertSchedule(ctx context.Context, sch cohort.Schedule, exec ...core.DBExecutor) (cohort.Schedule, error) {
	query, args, err := psql.
		Insert("cohort_module_schedule").
		Columns(scheduleColumns...).
		Values(
			sch.ID, sch.CohortID, sch.ModuleID, sch.UnlockDate.UTC(), null.TimeFromPtr(sch.LockDate),
			sch.CreatedAt.UTC(), sch.UpdatedAt.UTC(),
		).
		Suffix(
			"ON CONFLICT (cohort_id, module_id) DO UPDATE SET " +
				"unlock_date = EXCLUDED.unlock_date, lock_date = EXCLUDED.lock_date, updated_at = EXCLUDED.updated_at " +
				"RETURNING " + columnList(scheduleColumns),
		).
		ToSql()
	if err != nil {
		return cohort.Schedule{}, err
	}
	var row scheduleRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return cohort.Schedule{}, errors.Wrap(err, "upserting schedule")
	}
	return row.schedule(), nil
}

func (repo cohortRepository) DeleteSchedule(ctx context.Context, cohortID, moduleID string, exec ...core.DBExecutor) error {
	query, args, err := psql.
		Delete("cohort_module_schedule").
		Where(sq.Eq{"cohort_id": cohortID, "module_id": moduleID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := repo.getExec(exec).ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "deleting schedule")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return cohort.ErrNoSchedule
	}
	return nil
}

func (repo cohortRepository) GetLessonProgress(ctx context.Context, cohortID, userID, lessonID string, exec ...core.DBExecutor) (cohort.LessonProgress, error) {
	query, args, err := psql.
		Select(lessonProgressColumns...).
		From("lesson_progress").
		Where(sq.Eq{"cohort_id": cohortID, "user_id": userID, "lesson_id": lessonID}).
		ToSql()
	if err != nil {
		return cohort.LessonProgress{}, err
	}
	var row lessonProgressRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return cohort.LessonProgress{}, trapNoRowsErr(err, cohort.ErrNoLessonProgress, "getting lesson progress")
	}
	return row.lessonProgress(), nil
}

func (repo cohortRepository) UpsertLessonProgress(ctx context.Context, lp cohort.LessonProgress, exec ...core.DBExecutor) (cohort.LessonProgress, error) {
	query, args, err := psql.
		Insert("lesson_progress").
		Columns(lessonProgressColumns...).
		Values(
			lp.CohortID, lp.UserID, lp.LessonID, lp.Completed, lp.VideoPositionSeconds, lp.TimeSpentSeconds,
			lp.WatchCount, null.TimeFromPtr(lp.CompletedAt), lp.UpdatedAt.UTC(),
		).
		Suffix(
			"ON CONFLICT (cohort_id, user_id, lesson_id) DO UPDATE SET " +
				"completed = EXCLUDED.completed, video_position_seconds = EXCLUDED.video_position_seconds, " +
				"time_spent_seconds = EXCLUDED.time_spent_seconds, watch_count = EXCLUDED.watch_count, " +
				"completed_at = EXCLUDED.completed_at, updated_at = EXCLUDED.updated_at",
		).
		ToSql()
	if err != nil {
		return cohort.LessonProgress{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		return cohort.LessonProgress{}, errors.Wrap(err, "upserting lesson progress")
	}
	return lp, nil
}

func (repo cohortRepository) ListCompletedLessons(ctx context.Context, cohortID, userID string, exec ...core.DBExecutor) ([]string, error) {
	query, args, err := psql.
		Select("DISTINCT lesson_id").
		From("lesson_progress").
		Where(sq.Eq{"cohort_id": cohortID, "user_id": userID, "completed": true}).
		OrderBy("lesson_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0)
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &ids, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing completed lessons")
	}
	return ids, nil
}
