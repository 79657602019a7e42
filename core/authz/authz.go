// Package authz decides who may do what. Decisions are pure functions of the acting subject,
// the action and the resource; loading the resource owner is the caller's job.
package authz

type Action string

const (
	EnrollSelf       Action = "cohort:enroll-self"
	EnrollOther      Action = "cohort:enroll-other"
	ManageCohort     Action = "cohort:manage"
	ReadSchedule     Action = "schedule:read"
	WriteSchedule    Action = "schedule:write"
	CreateSubmission Action = "submission:create"
	ReadSubmissions  Action = "submission:read"
	ReadRoster       Action = "roster:read"
	RefreshRoster    Action = "roster:refresh"
	WriteProgress    Action = "progress:write"
)

// Subject is the authenticated caller.
type Subject struct {
	UserID  string
	IsAdmin bool
}

// Resource describes what an action targets.
type Resource struct {
	// OwnerID is the user owning the course the resource belongs to.
	OwnerID string
	// UserID is the user acted upon, when the action targets a person (enrollment, progress).
	UserID string
}

var ownerActions = map[Action]bool{
	EnrollOther:   true,
	ManageCohort:  true,
	WriteSchedule: true,
	ReadRoster:    true,
	RefreshRoster: true,
}

// Can reports whether s may perform a on r. Anonymous subjects can do nothing.
func Can(s Subject, a Action, r Resource) bool {
	if s.UserID == "" {
		return false
	}
	if s.IsAdmin {
		return true
	}
	isOwner := r.OwnerID != "" && r.OwnerID == s.UserID

	switch {
	case ownerActions[a]:
		return isOwner
	case a == EnrollSelf, a == WriteProgress, a == CreateSubmission:
		return r.UserID == "" || r.UserID == s.UserID
	case a == ReadSubmissions:
		return isOwner || r.UserID == "" || r.UserID == s.UserID
	case a == ReadSchedule:
		return true
	}
	return false
}

// IsOwner reports whether s sees the resource as its owner (admins included).
func IsOwner(s Subject, r Resource) bool {
	return s.UserID != "" && (s.IsAdmin || r.OwnerID == s.UserID)
}
