package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil)

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) ListCohortIDs(_ context.Context, _ ...core.DBExecutor) ([]string, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	ids := make([]string, 0, len(repo.db.data.cohorts))
	for id := range repo.db.data.cohorts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *rosterRepository) CohortExists(_ context.Context, cohortID string, _ ...core.DBExecutor) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	_, ok := repo.db.data.cohorts[cohortID]
	return ok, nil
}

func (repo *rosterRepository) LockRoster(_ context.Context, _ string, _ ...core.DBExecutor) error {
	return nil
}

func (repo *rosterRepository) RebuildRoster(_ context.Context, cohortID string, _ ...core.DBExecutor) (int, error) {
	if err := repo.db.fault("RebuildRoster"); err != nil {
		return 0, err
	}
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	data := &repo.db.data

	completed := make(map[string]map[string]bool) // {userID: {lessonID: }}
	for _, lp := range data.lessonProgress {
		if lp.CohortID != cohortID || !lp.Completed {
			continue
		}
		if completed[lp.UserID] == nil {
			completed[lp.UserID] = make(map[string]bool)
		}
		completed[lp.UserID][lp.LessonID] = true
	}
	countPosts := func(posts []Post) map[string]int {
		counts := make(map[string]int)
		for _, p := range posts {
			if p.CohortID == cohortID {
				counts[p.UserID]++
			}
		}
		return counts
	}
	discussions := countPosts(data.discussions)
	forumPosts := countPosts(data.forumPosts)

	rows := make([]roster.Row, 0)
	for _, enr := range data.enrollments {
		if enr.CohortID != cohortID {
			continue
		}
		usr := data.users[enr.UserID]
		rows = append(rows, roster.Row{
			CohortID:         cohortID,
			UserID:           enr.UserID,
			Name:             usr.Name,
			Email:            usr.Email,
			EnrollmentStatus: enr.Status,
			EnrolledAt:       enr.EnrolledAt,
			LastActivityAt:   enr.LastActivityAt,
			CompletedLessons: len(completed[enr.UserID]),
			DiscussionPosts:  discussions[enr.UserID],
			ForumPosts:       forumPosts[enr.UserID],
		})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	data.roster[cohortID] = rows
	return len(rows), nil
}

func (repo *rosterRepository) SaveRefresh(_ context.Context, r roster.Refresh, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	repo.db.data.rosterRefreshes[r.CohortID] = r
	return nil
}

func (repo *rosterRepository) GetRefresh(_ context.Context, cohortID string, _ ...core.DBExecutor) (roster.Refresh, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.data.rosterRefreshes[cohortID]; ok {
		return r, nil
	}
	return roster.Refresh{}, roster.ErrNeverRefreshed
}

func (repo *rosterRepository) QueryRoster(_ context.Context, cohortID string, filter roster.Filter, _ ...core.DBExecutor) ([]roster.Row, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	refreshedAt := repo.db.data.rosterRefreshes[cohortID].RefreshedAt
	rows := make([]roster.Row, 0)
	for _, row := range repo.db.data.roster[cohortID] {
		if filter.Status != "" && row.EnrollmentStatus != filter.Status {
			continue
		}
		row.RefreshedAt = refreshedAt
		rows = append(rows, row)
	}

	orderings := append(filter.Orderings, core.DBOrdering{Field: "name", Ascending: true})
	sort.SliceStable(rows, func(i, j int) bool {
		for _, ord := range orderings {
			if c := compareRows(rows[i], rows[j], ord.Field); c != 0 {
				return (c < 0) == ord.Ascending
			}
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

func compareRows(a, b roster.Row, field string) int {
	cmpStr := func(x, y string) int {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	cmpInt := func(x, y int) int { return x - y }
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		}
		return 0
	}

	switch field {
	case "name":
		return cmpStr(a.Name, b.Name)
	case "email":
		return cmpStr(a.Email, b.Email)
	case "enrollment_status":
		return cmpStr(string(a.EnrollmentStatus), string(b.EnrollmentStatus))
	case "enrolled_at":
		return cmpTime(a.EnrolledAt, b.EnrolledAt)
	case "last_activity_at":
		return cmpTime(a.LastActivityAt, b.LastActivityAt)
	case "completed_lessons":
		return cmpInt(a.CompletedLessons, b.CompletedLessons)
	case "discussion_posts":
		return cmpInt(a.DiscussionPosts, b.DiscussionPosts)
	case "forum_posts":
		return cmpInt(a.ForumPosts, b.ForumPosts)
	}
	return 0
}

// AddDiscussionPost records a lesson discussion post of userID in the cohort.
func (db *DB) AddDiscussionPost(cohortID, userID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.discussions = append(db.data.discussions, Post{CohortID: cohortID, UserID: userID})
}

// AddForumPost records a forum post of userID in the cohort.
func (db *DB) AddForumPost(cohortID, userID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data.forumPosts = append(db.data.forumPosts, Post{CohortID: cohortID, UserID: userID})
}
