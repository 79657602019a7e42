package cohort

import (
	"errors"

	"github.com/trezcool/campus/core"
)

// repository errors
var (
	ErrNotFound         = errors.New("cohort not found")
	ErrNameTaken        = errors.New("cohort name already used in this course")
	ErrNoEnrollment     = errors.New("enrollment not found")
	ErrEnrollmentExists = errors.New("enrollment already exists")
	ErrNoSchedule       = errors.New("schedule not found")
	ErrNoLessonProgress = errors.New("lesson progress not found")
)

// business errors
var (
	ErrCohortNotFound          = core.NewAppError(core.KindNotFound, "CohortNotFound", "cohort not found")
	ErrCourseUnavailable       = core.NewAppError(core.KindForbidden, "CourseUnavailable", "course is not available for enrollment")
	ErrCohortNotOpen           = core.NewAppError(core.KindForbidden, "CohortNotOpenForEnrollment", "cohort is not open for enrollment")
	ErrAlreadyEnrolled         = core.NewAppError(core.KindConflict, "AlreadyEnrolled", "already enrolled in this cohort")
	ErrCohortFull              = core.NewAppError(core.KindConflict, "CohortFull", "cohort is full")
	ErrEnrollmentNotFound      = core.NewAppError(core.KindNotFound, "EnrollmentNotFound", "enrollment not found")
	ErrInvalidStatusTransition = core.NewAppError(core.KindValidation, "InvalidStatusTransition", "invalid status transition")
	ErrNotEnrolled             = core.NewAppError(core.KindForbidden, "NotEnrolled", "not enrolled in this cohort")
	ErrModuleNotFound          = core.NewAppError(core.KindNotFound, "ModuleNotFound", "module not found in this cohort's course")
	ErrLessonNotFound          = core.NewAppError(core.KindNotFound, "LessonNotFound", "lesson not found in this cohort's course")
	ErrScheduleNotFound        = core.NewAppError(core.KindNotFound, "ScheduleNotFound", "module is not scheduled")
)
