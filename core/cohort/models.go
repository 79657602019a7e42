package cohort

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/access"
)

// Status is the lifecycle state of a cohort. It only ever moves forward.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

var statusRanks = map[Status]int{
	StatusUpcoming:  1,
	StatusActive:    2,
	StatusCompleted: 3,
	StatusArchived:  4,
}

func (s Status) IsValid() bool {
	_, ok := statusRanks[s]
	return ok
}

func (s Status) AcceptsEnrollments() bool {
	return s == StatusUpcoming || s == StatusActive
}

// CanTransitionTo allows staying put or moving forward, skipping states included.
func (s Status) CanTransitionTo(next Status) bool {
	return next.IsValid() && statusRanks[next] >= statusRanks[s]
}

// EnrollmentStatus is the state of a student's membership in a cohort.
type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentPaused    EnrollmentStatus = "paused"
	EnrollmentCompleted EnrollmentStatus = "completed"
	EnrollmentDropped   EnrollmentStatus = "dropped"
)

var enrollmentTransitions = map[EnrollmentStatus][]EnrollmentStatus{
	EnrollmentActive:    {EnrollmentPaused, EnrollmentCompleted, EnrollmentDropped},
	EnrollmentPaused:    {EnrollmentActive, EnrollmentCompleted, EnrollmentDropped},
	EnrollmentCompleted: {EnrollmentActive},
	EnrollmentDropped:   {EnrollmentActive},
}

func (s EnrollmentStatus) IsValid() bool {
	_, ok := enrollmentTransitions[s]
	return ok
}

// Occupies reports whether an enrollment in this status takes a seat in the cohort.
func (s EnrollmentStatus) Occupies() bool {
	return s == EnrollmentActive || s == EnrollmentPaused
}

func (s EnrollmentStatus) CanTransitionTo(next EnrollmentStatus) bool {
	for _, st := range enrollmentTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

type Cohort struct {
	ID          string     `json:"id"`
	CourseID    string     `json:"course_id"`
	Name        string     `json:"name"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	MaxStudents *int       `json:"max_students"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"` // UTC
	UpdatedAt   time.Time  `json:"updated_at"` // UTC
}

// Detail is a cohort along with the number of seats taken.
type Detail struct {
	Cohort
	EnrollmentCount int `json:"enrollment_count"`
}

// Progress is the typed per-enrollment progress summary.
type Progress struct {
	CompletedLessons int            `json:"completed_lessons"`
	CompletedModules int            `json:"completed_modules"`
	TotalLessons     int            `json:"total_lessons"`
	Percentage       int            `json:"percentage"`
	QuizScores       map[string]int `json:"quiz_scores"`
}

func (p Progress) Validate() error {
	var flds []core.FieldError
	if p.CompletedLessons < 0 || p.CompletedModules < 0 || p.TotalLessons < 0 {
		flds = append(flds, core.FieldError{Field: "progress", Error: "counts cannot be negative"})
	}
	if p.CompletedLessons > p.TotalLessons {
		flds = append(flds, core.FieldError{Field: "completed_lessons", Error: "cannot exceed total_lessons"})
	}
	if p.Percentage < 0 || p.Percentage > 100 {
		flds = append(flds, core.FieldError{Field: "percentage", Error: "must be between 0 and 100"})
	}
	for quiz, score := range p.QuizScores {
		if score < 0 || score > 100 {
			flds = append(flds, core.FieldError{Field: "quiz_scores." + quiz, Error: "must be between 0 and 100"})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(errors.New("invalid progress"), flds...)
	}
	return nil
}

// DecodeProgress strictly decodes a stored progress document. Unknown fields are rejected.
func DecodeProgress(data []byte) (Progress, error) {
	var p Progress
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return Progress{}, errors.Wrap(err, "decoding progress")
	}
	return p, nil
}

type Enrollment struct {
	ID               string           `json:"id"`
	CohortID         string           `json:"cohort_id"`
	UserID           string           `json:"user_id"`
	Status           EnrollmentStatus `json:"status"`
	EnrolledAt       time.Time        `json:"enrolled_at"`
	LastActivityAt   time.Time        `json:"last_activity_at"`
	CompletedLessons int              `json:"completed_lessons"`
	Progress         Progress         `json:"progress"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// CourseEnrollment is the course level membership kept for reporting. It is never capacity bound.
type CourseEnrollment struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CourseID   string    `json:"course_id"`
	CohortID   string    `json:"cohort_id"`
	Status     string    `json:"status"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

type Schedule struct {
	ID         string     `json:"id"`
	CohortID   string     `json:"cohort_id"`
	ModuleID   string     `json:"module_id"`
	UnlockDate time.Time  `json:"unlock_date"`
	LockDate   *time.Time `json:"lock_date"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (s Schedule) Window() access.Window {
	return access.Window{UnlockDate: s.UnlockDate, LockDate: s.LockDate}
}

type UpcomingUnlock struct {
	ModuleID    string    `json:"module_id"`
	ModuleTitle string    `json:"module_title"`
	UnlockDate  time.Time `json:"unlock_date"`
	DaysUntil   int       `json:"days_until"`
}

type LessonProgress struct {
	UserID               string     `json:"user_id"`
	LessonID             string     `json:"lesson_id"`
	CohortID             string     `json:"cohort_id"`
	Completed            bool       `json:"completed"`
	VideoPositionSeconds int        `json:"video_position_seconds"`
	TimeSpentSeconds     int        `json:"time_spent_seconds"`
	WatchCount           int        `json:"watch_count"`
	CompletedAt          *time.Time `json:"completed_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// NewSchedule contains information needed to gate a module of a cohort.
type NewSchedule struct {
	ModuleID   string `json:"module_id" validate:"required"`
	UnlockDate string `json:"unlock_date" validate:"required,isodate"`
	LockDate   string `json:"lock_date" validate:"omitempty,isodate"`
}

func (ns *NewSchedule) Validate(validate *validator.Validate) error {
	ns.ModuleID = core.CleanString(ns.ModuleID)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	_, err := ns.Window()
	return err
}

// Window parses the dates. The lock date, when set, must be after the unlock date.
func (ns NewSchedule) Window() (access.Window, error) {
	unlock, err := access.ParseDate(ns.UnlockDate)
	if err != nil {
		return access.Window{}, core.NewValidationError(err, core.FieldError{Field: "unlock_date", Error: "invalid date"})
	}
	w := access.Window{UnlockDate: unlock}
	if core.CleanString(ns.LockDate) != "" {
		lock, err := access.ParseDate(ns.LockDate)
		if err != nil {
			return access.Window{}, core.NewValidationError(err, core.FieldError{Field: "lock_date", Error: "invalid date"})
		}
		if !lock.After(unlock) {
			return access.Window{}, core.NewValidationError(
				errors.New("lock date must be after unlock date"),
				core.FieldError{Field: "lock_date", Error: "must be after unlock_date"},
			)
		}
		w.LockDate = &lock
	}
	return w, nil
}

type ProgressUpdate struct {
	LessonID             string `json:"lesson_id" validate:"required"`
	Completed            bool   `json:"completed"`
	VideoPositionSeconds int    `json:"video_position_seconds" validate:"min=0"`
	TimeSpentSeconds     int    `json:"time_spent_seconds" validate:"min=0"`
}

func (pu *ProgressUpdate) Validate(validate *validator.Validate) error {
	pu.LessonID = core.CleanString(pu.LessonID)
	return validate.Struct(pu)
}

type QuizScoreUpdate struct {
	QuizID string `json:"quiz_id" validate:"required"`
	Score  int    `json:"score" validate:"min=0,max=100"`
}

func (qs *QuizScoreUpdate) Validate(validate *validator.Validate) error {
	qs.QuizID = core.CleanString(qs.QuizID)
	return validate.Struct(qs)
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,cohortstatus"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

type UpdateEnrollmentStatus struct {
	Status string `json:"status" validate:"required,enrollmentstatus"`
}

func (us *UpdateEnrollmentStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}
