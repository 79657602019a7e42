package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/roster"
)

type rosterRepository struct {
	baseRepository
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{baseRepository{db: db}}
}

const rebuildRosterQuery = `
INSERT INTO cohort_roster (
    cohort_id, user_id, name, email, enrollment_status, enrolled_at, last_activity_at,
    completed_lessons, discussion_posts, forum_posts
)
SELECT e.cohort_id,
       e.user_id,
       COALESCE(u.name, ''),
       COALESCE(u.email, ''),
       e.status,
       e.enrolled_at,
       e.last_activity_at,
       (SELECT COUNT(DISTINCT lp.lesson_id) FROM lesson_progress lp
         WHERE lp.cohort_id = e.cohort_id AND lp.user_id = e.user_id AND lp.completed),
       (SELECT COUNT(*) FROM lesson_discussion d WHERE d.cohort_id = e.cohort_id AND d.user_id = e.user_id),
       (SELECT COUNT(*) FROM forum_post f WHERE f.cohort_id = e.cohort_id AND f.user_id = e.user_id)
  FROM cohort_enrollment e
  LEFT JOIN "user" u ON u.id = e.user_id
 WHERE e.cohort_id = $1`

type rosterRow struct {
	CohortID         string    `db:"cohort_id"`
	UserID           string    `db:"user_id"`
	Name             string    `db:"name"`
	Email            string    `db:"email"`
	EnrollmentStatus string    `db:"enrollment_status"`
	EnrolledAt       time.Time `db:"enrolled_at"`
	LastActivityAt   time.Time `db:"last_activity_at"`
	CompletedLessons int       `db:"completed_lessons"`
	DiscussionPosts  int       `db:"discussion_posts"`
	ForumPosts       int       `db:"forum_posts"`
	RefreshedAt      time.Time `db:"refreshed_at"`
}

func (repo rosterRepository) ListCohortIDs(ctx context.Context, exec ...core.DBExecutor) ([]string, error) {
	ids := make([]string, 0)
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &ids, "SELECT id FROM cohort ORDER BY id")
	return ids, errors.Wrap(err, "listing cohorts")
}

func (repo rosterRepository) CohortExists(ctx context.Context, cohortID string, exec ...core.DBExecutor) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &exists, "SELECT EXISTS (SELECT 1 FROM cohort WHERE id = $1)", cohortID)
	return exists, errors.Wrap(err, "checking cohort")
}

func (repo rosterRepository) LockRoster(ctx context.Context, cohortID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, "SELECT pg_advisory_xact_lock($1, hashtext($2))", lockNamespaceRoster, cohortID)
	return errors.Wrap(err, "acquiring roster lock")
}

func (repo rosterRepository) RebuildRoster(ctx context.Context, cohortID string, exec ...core.DBExecutor) (int, error) {
	ext := repo.getExec(exec)
	if _, err := ext.ExecContext(ctx, "DELETE FROM cohort_roster WHERE cohort_id = $1", cohortID); err != nil {
		return 0, errors.Wrap(err, "clearing roster")
	}
	res, err := ext.ExecContext(ctx, rebuildRosterQuery, cohortID)
	if err != nil {
		return 0, errors.Wrap(err, "aggregating roster")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "counting roster rows")
}

func (repo rosterRepository) SaveRefresh(ctx context.Context, r roster.Refresh, exec ...core.DBExecutor) error {
	query, args, err := psql.
		Insert("roster_refresh").
		Columns("cohort_id", "refreshed_at", "row_count").
		Values(r.CohortID, r.RefreshedAt.UTC(), r.RowCount).
		Suffix("ON CONFLICT (cohort_id) DO UPDATE SET refreshed_at = EXCLUDED.refreshed_at, row_count = EXCLUDED.row_count").
		ToSql()
	if err != nil {
		return err
	}
	_, err = repo.getExec(exec).ExecContext(ctx, query, args...)
	return errors.Wrap(err, "saving roster refresh")
}

func (repo rosterRepository) GetRefresh(ctx context.Context, cohortID string, exec ...core.DBExecutor) (roster.Refresh, error) {
	var row struct {
		CohortID    string    `db:"cohort_id"`
		RefreshedAt time.Time `db:"refreshed_at"`
		RowCount    int       `db:"row_count"`
	}
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row,
		"SELECT cohort_id, refreshed_at, row_count FROM roster_refresh WHERE cohort_id = $1", cohortID)
	if err != nil {
		return roster.Refresh{}, trapNoRowsErr(err, roster.ErrNeverRefreshed, "getting roster refresh")
	}
	return roster.Refresh{CohortID: row.CohortID, RefreshedAt: row.RefreshedAt.UTC(), RowCount: row.RowCount}, nil
}

func (repo rosterRepository) QueryRoster(ctx context.Context, cohortID string, filter roster.Filter, exec ...core.DBExecutor) ([]roster.Row, error) {
	qb := psql.
		Select(
			"r.cohort_id", "r.user_id", "r.name", "r.email", "r.enrollment_status", "r.enrolled_at", "r.last_activity_at",
			"r.completed_lessons", "r.discussion_posts", "r.forum_posts", "rr.refreshed_at",
		).
		From("cohort_roster r").
		Join("roster_refresh rr ON rr.cohort_id = r.cohort_id").
		Where("r.cohort_id = ?", cohortID).
		OrderBy(orderBy(filter.Orderings, "r.name ASC", "r.user_id ASC")...)
	if filter.Status != "" {
		qb = qb.Where(sq.Eq{"r.enrollment_status": string(filter.Status)})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []rosterRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying roster")
	}
	result := make([]roster.Row, 0, len(rows))
	for _, r := range rows {
		result = append(result, roster.Row{
			CohortID:         r.CohortID,
			UserID:           r.UserID,
			Name:             r.Name,
			Email:            r.Email,
			EnrollmentStatus: cohort.EnrollmentStatus(r.EnrollmentStatus),
			EnrolledAt:       r.EnrolledAt.UTC(),
			LastActivityAt:   r.LastActivityAt.UTC(),
			CompletedLessons: r.CompletedLessons,
			DiscussionPosts:  r.DiscussionPosts,
			ForumPosts:       r.ForumPosts,
			RefreshedAt:      r.RefreshedAt.UTC(),
		})
	}
	return result, nil
}
