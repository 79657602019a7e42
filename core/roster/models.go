package roster

import (
	"errors"
	"strings"
	"time"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
)

var (
	ErrNeverRefreshed = errors.New("roster never refreshed")
	ErrCohortNotFound = cohort.ErrCohortNotFound
)

// Row is one student's line of the roster snapshot.
// Rows carry no timestamp of their own: rebuilding without intervening writes yields identical rows.
type Row struct {
	CohortID         string                  `json:"cohort_id"`
	UserID           string                  `json:"user_id"`
	Name             string                  `json:"name"`
	Email            string                  `json:"email"`
	EnrollmentStatus cohort.EnrollmentStatus `json:"enrollment_status"`
	EnrolledAt       time.Time               `json:"enrolled_at"`
	LastActivityAt   time.Time               `json:"last_activity_at"`
	CompletedLessons int                     `json:"completed_lessons"`
	DiscussionPosts  int                     `json:"discussion_posts"`
	ForumPosts       int                     `json:"forum_posts"`
	RefreshedAt      time.Time               `json:"refreshed_at"`
}

// Refresh records when the snapshot of a cohort was last rebuilt.
type Refresh struct {
	CohortID    string    `json:"cohort_id"`
	RefreshedAt time.Time `json:"refreshed_at"`
	RowCount    int       `json:"row_count"`
}

var orderingFields = map[string]bool{
	"name":              true,
	"email":             true,
	"enrollment_status": true,
	"enrolled_at":       true,
	"last_activity_at":  true,
	"completed_lessons": true,
	"discussion_posts":  true,
	"forum_posts":       true,
}

// Filter narrows and orders a roster read.
type Filter struct {
	Status    cohort.EnrollmentStatus `query:"status"`
	Orderings []core.DBOrdering
}

func (f *Filter) Clean() error {
	f.Status = cohort.EnrollmentStatus(core.CleanString(string(f.Status), true /* lower */))
	if f.Status != "" && !f.Status.IsValid() {
		return core.NewValidationError(errors.New("invalid status filter"), core.FieldError{Field: "status", Error: "unknown enrollment status"})
	}
	for i, ord := range f.Orderings {
		field := strings.ToLower(ord.Field)
		if !orderingFields[field] {
			return core.NewValidationError(errors.New("invalid ordering"), core.FieldError{Field: "ordering", Error: "cannot order by " + ord.Field})
		}
		f.Orderings[i].Field = field
	}
	return nil
}
