// Package access evaluates time-gated module windows. Everything here is pure:
// callers pass the clock in, nothing is read from storage.
package access

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
)

// Reasons explaining a ModuleStatus.
const (
	ReasonTeacherOverride = "teacher_override"
	ReasonNotScheduled    = "not_scheduled"
	ReasonUnlocked        = "unlocked"
	ReasonLocked          = "locked"
)

// Reasons explaining a LessonAccess.
const (
	ReasonNotEnrolled  = "not_enrolled"
	ReasonModuleLocked = "module_locked"
	ReasonAccessible   = "accessible"
)

// Window is the time interval during which a module is open: [UnlockDate, LockDate).
// A nil LockDate never closes. Dates are UTC midnights.
type Window struct {
	UnlockDate time.Time
	LockDate   *time.Time
}

type ModuleStatus struct {
	ModuleID   string     `json:"module_id"`
	IsUnlocked bool       `json:"is_unlocked"`
	UnlockDate *time.Time `json:"unlock_date"`
	LockDate   *time.Time `json:"lock_date"`
	Reason     string     `json:"reason"`
}

type LessonAccess struct {
	CanAccess    bool          `json:"can_access"`
	Reason       string        `json:"reason"`
	ModuleStatus *ModuleStatus `json:"module_status,omitempty"`
}

// IsUnlocked reports whether now falls inside the window.
// A LockDate that is not after UnlockDate yields a window that is never open.
func IsUnlocked(w Window, now time.Time) bool {
	if now.Before(w.UnlockDate) {
		return false
	}
	return w.LockDate == nil || now.Before(*w.LockDate)
}

// Evaluate computes the status of a module. A nil window means no gating was configured: the module is open.
// override is set for the course owner and admins, who always see every module.
func Evaluate(moduleID string, w *Window, now time.Time, override bool) ModuleStatus {
	st := ModuleStatus{ModuleID: moduleID}
	if w != nil {
		unlock := w.UnlockDate
		st.UnlockDate = &unlock
		st.LockDate = w.LockDate
	}

	switch {
	case override:
		st.IsUnlocked = true
		st.Reason = ReasonTeacherOverride
	case w == nil:
		st.IsUnlocked = true
		st.Reason = ReasonNotScheduled
	case IsUnlocked(*w, now):
		st.IsUnlocked = true
		st.Reason = ReasonUnlocked
	default:
		st.Reason = ReasonLocked
	}
	return st
}

// Lesson decides whether a user may open a lesson of a module with the given status.
func Lesson(enrolled bool, status ModuleStatus, override bool) LessonAccess {
	switch {
	case override:
		return LessonAccess{CanAccess: true, Reason: ReasonTeacherOverride, ModuleStatus: &status}
	case !enrolled:
		return LessonAccess{Reason: ReasonNotEnrolled}
	case !status.IsUnlocked:
		return LessonAccess{Reason: ReasonModuleLocked, ModuleStatus: &status}
	default:
		return LessonAccess{CanAccess: true, Reason: ReasonAccessible, ModuleStatus: &status}
	}
}

// Date truncates t to its UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string into its UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(core.DateLayout, core.CleanString(s), time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "parsing date %q", s)
	}
	return t, nil
}

// DaysUntil returns the number of calendar days from now until t (negative when t is past).
func DaysUntil(t, now time.Time) int {
	return int(Date(t).Sub(Date(now)).Hours() / 24)
}
