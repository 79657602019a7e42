package cohort

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/access"
	"github.com/trezcool/campus/core/course"
)

func (svc *Service) listModules(ctx context.Context, courseID string) ([]course.Module, error) {
	modules, err := svc.catalog.ListModules(ctx, courseID)
	if err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	return modules, nil
}

func (svc *Service) schedulesByModule(ctx context.Context, cohortID string) (map[string]Schedule, error) {
	schedules, err := svc.repo.ListSchedules(ctx, cohortID)
	if err != nil {
		return nil, errors.Wrap(err, "listing schedules")
	}
	byModule := make(map[string]Schedule, len(schedules))
	for _, sch := range schedules {
		byModule[sch.ModuleID] = sch
	}
	return byModule, nil
}

// ListSchedule returns the cohort's schedules ordered by unlock date.
func (svc *Service) ListSchedule(ctx context.Context, cohortID string) ([]Schedule, error) {
	if _, err := svc.getCohort(ctx, cohortID); err != nil {
		return nil, err
	}
	schedules, err := svc.repo.ListSchedules(ctx, cohortID)
	if err != nil {
		return nil, errors.Wrap(err, "listing schedules")
	}
	return schedules, nil
}

// UpsertSchedule sets the unlock window of one module of the cohort's course.
func (svc *Service) UpsertSchedule(ctx context.Context, cohortID string, ns NewSchedule) (Schedule, error) {
	w, err := ns.Window()
	if err != nil {
		return Schedule{}, err
	}
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return Schedule{}, err
	}
	modules, err := svc.listModules(ctx, cht.CourseID)
	if err != nil {
		return Schedule{}, err
	}
	moduleID := core.CleanString(ns.ModuleID)
	if !course.HasModule(modules, moduleID) {
		return Schedule{}, ErrModuleNotFound
	}

	now := core.NowFunc()
	sch, err := svc.repo.UpsertSchedule(ctx, Schedule{
		ID:         uuid.New().String(),
		CohortID:   cohortID,
		ModuleID:   moduleID,
		UnlockDate: w.UnlockDate,
		LockDate:   w.LockDate,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return Schedule{}, errors.Wrap(err, "upserting schedule")
	}
	return sch, nil
}

func (svc *Service) DeleteSchedule(ctx context.Context, cohortID, moduleID string) error {
	if _, err := svc.getCohort(ctx, cohortID); err != nil {
		return err
	}
	if err := svc.repo.DeleteSchedule(ctx, cohortID, moduleID); err != nil {
		if errors.Is(err, ErrNoSchedule) {
			return ErrScheduleNotFound
		}
		return errors.Wrap(err, "deleting schedule")
	}
	return nil
}

// ModuleStatuses evaluates every module of the cohort's course at now. Modules without a schedule are open.
func (svc *Service) ModuleStatuses(ctx context.Context, cohortID string, now time.Time, override bool) ([]access.ModuleStatus, error) {
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	modules, err := svc.listModules(ctx, cht.CourseID)
	if err != nil {
		return nil, err
	}
	schedules, err := svc.schedulesByModule(ctx, cohortID)
	if err != nil {
		return nil, err
	}

	statuses := make([]access.ModuleStatus, 0, len(modules))
	for _, m := range modules {
		var w *access.Window
		if sch, ok := schedules[m.ID]; ok {
			win := sch.Window()
			w = &win
		}
		statuses = append(statuses, access.Evaluate(m.ID, w, now, override))
	}
	return statuses, nil
}

// UpcomingUnlocks lists the modules unlocking after now and no later than now+within, soonest first.
func (svc *Service) UpcomingUnlocks(ctx context.Context, cohortID string, now time.Time, within time.Duration) ([]UpcomingUnlock, error) {
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return nil, err
	}
	modules, err := svc.listModules(ctx, cht.CourseID)
	if err != nil {
		return nil, err
	}
	titles := make(map[string]string, len(modules))
	for _, m := range modules {
		titles[m.ID] = m.Title
	}
	schedules, err := svc.repo.ListSchedules(ctx, cohortID)
	if err != nil {
		return nil, errors.Wrap(err, "listing schedules")
	}

	until := now.Add(within)
	upcoming := make([]UpcomingUnlock, 0)
	for _, sch := range schedules {
		if sch.UnlockDate.After(now) && !sch.UnlockDate.After(until) {
			upcoming = append(upcoming, UpcomingUnlock{
				ModuleID:    sch.ModuleID,
				ModuleTitle: titles[sch.ModuleID],
				UnlockDate:  sch.UnlockDate,
				DaysUntil:   access.DaysUntil(sch.UnlockDate, now),
			})
		}
	}
	sort.SliceStable(upcoming, func(i, j int) bool { return upcoming[i].UnlockDate.Before(upcoming[j].UnlockDate) })
	return upcoming, nil
}

// CanAccessLesson decides whether userID may open a lesson of the cohort's course at now.
func (svc *Service) CanAccessLesson(ctx context.Context, cohortID, lessonID, userID string, now time.Time, override bool) (access.LessonAccess, error) {
	cht, err := svc.getCohort(ctx, cohortID)
	if err != nil {
		return access.LessonAccess{}, err
	}
	lsn, err := svc.catalog.GetLesson(ctx, lessonID)
	if err != nil {
		if errors.Is(err, course.ErrLessonNotFound) {
			return access.LessonAccess{}, ErrLessonNotFound
		}
		return access.LessonAccess{}, errors.Wrap(err, "getting lesson")
	}
	if lsn.CourseID != cht.CourseID {
		return access.LessonAccess{}, ErrLessonNotFound
	}

	enrolled := false
	if enr, err := svc.repo.GetEnrollment(ctx, cohortID, userID); err == nil {
		enrolled = enr.Status.Occupies()
	} else if !errors.Is(err, ErrNoEnrollment) {
		return access.LessonAccess{}, errors.Wrap(err, "getting enrollment")
	}

	var w *access.Window
	if sch, err := svc.repo.GetSchedule(ctx, cohortID, lsn.ModuleID); err == nil {
		win := sch.Window()
		w = &win
	} else if !errors.Is(err, ErrNoSchedule) {
		return access.LessonAccess{}, errors.Wrap(err, "getting schedule")
	}
	return access.Lesson(enrolled, access.Evaluate(lsn.ModuleID, w, now, override), override), nil
}
