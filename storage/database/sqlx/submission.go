package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/submission"
)

// advisory lock namespaces (first key of pg_advisory_xact_lock)
const (
	lockNamespaceSubmission = 1
	lockNamespaceRoster     = 2
)

type submissionRepository struct {
	baseRepository
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) submission.Repository {
	return &submissionRepository{baseRepository{db: db}}
}

var submissionColumns = []string{
	"id", "assignment_id", "user_id", "submission_number", "is_late", "file_url", "file_name", "file_size_bytes",
	"file_type", "created_at",
}

type assignmentRow struct {
	ID                   string         `db:"id"`
	LessonID             string         `db:"lesson_id"`
	CourseID             string         `db:"course_id"`
	Title                string         `db:"title"`
	IsPublished          bool           `db:"is_published"`
	DueDate              null.Time      `db:"due_date"`
	AllowLateSubmissions bool           `db:"allow_late_submissions"`
	AllowResubmission    bool           `db:"allow_resubmission"`
	MaxSubmissions       null.Int       `db:"max_submissions"`
	MaxFileSizeMB        int            `db:"max_file_size_mb"`
	AllowedFileTypes     pq.StringArray `db:"allowed_file_types"`
}

func (r assignmentRow) assignment() submission.Assignment {
	a := submission.Assignment{
		ID:                   r.ID,
		LessonID:             r.LessonID,
		CourseID:             r.CourseID,
		Title:                r.Title,
		IsPublished:          r.IsPublished,
		AllowLateSubmissions: r.AllowLateSubmissions,
		AllowResubmission:    r.AllowResubmission,
		MaxSubmissions:       r.MaxSubmissions.Ptr(),
		MaxFileSizeMB:        r.MaxFileSizeMB,
		AllowedFileTypes:     []string(r.AllowedFileTypes),
	}
	if r.DueDate.Valid {
		due := r.DueDate.Time.UTC()
		a.DueDate = &due
	}
	return a
}

type submissionRow struct {
	ID               string    `db:"id"`
	AssignmentID     string    `db:"assignment_id"`
	UserID           string    `db:"user_id"`
	SubmissionNumber int       `db:"submission_number"`
	IsLate           bool      `db:"is_late"`
	FileURL          string    `db:"file_url"`
	FileName         string    `db:"file_name"`
	FileSizeBytes    int64     `db:"file_size_bytes"`
	FileType         string    `db:"file_type"`
	CreatedAt        time.Time `db:"created_at"`
}

func (r submissionRow) submission() submission.Submission {
	return submission.Submission{
		ID:               r.ID,
		AssignmentID:     r.AssignmentID,
		UserID:           r.UserID,
		SubmissionNumber: r.SubmissionNumber,
		IsLate:           r.IsLate,
		FileURL:          r.FileURL,
		FileName:         r.FileName,
		FileSizeBytes:    r.FileSizeBytes,
		FileType:         r.FileType,
		CreatedAt:        r.CreatedAt.UTC(),
	}
}

func (repo submissionRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Assignment, error) {
	query, args, err := psql.
		Select(
			"id", "lesson_id", "course_id", "title", "is_published", "due_date", "allow_late_submissions",
			"allow_resubmission", "max_submissions", "max_file_size_mb", "allowed_file_types",
		).
		From("assignment").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return submission.Assignment{}, err
	}
	var row assignmentRow
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return submission.Assignment{}, trapNoRowsErr(err, submission.ErrNotFound, "getting assignment")
	}
	return row.assignment(), nil
}

func (repo submissionRepository) LockSubmissionSlot(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"SELECT pg_advisory_xact_lock($1, hashtext($2))", lockNamespaceSubmission, assignmentID+"|"+userID)
	return errors.Wrap(err, "acquiring submission lock")
}

func (repo submissionRepository) GetSubmissionStats(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) (submission.Stats, error) {
	query, args, err := psql.
		Select("COUNT(*) AS count", "COALESCE(MAX(submission_number), 0) AS max_number").
		From("submission").
		Where(sq.Eq{"assignment_id": assignmentID, "user_id": userID}).
		ToSql()
	if err != nil {
		return submission.Stats{}, err
	}
	var row struct {
		Count     int `db:"count"`
		MaxNumber int `db:"max_number"`
	}
	if err = sqlx.GetContext(ctx, repo.getExec(exec), &row, query, args...); err != nil {
		return submission.Stats{}, errors.Wrap(err, "getting submission stats")
	}
	return submission.Stats{Count: row.Count, MaxNumber: row.MaxNumber}, nil
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, sub submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	query, args, err := psql.
		Insert("submission").
		Columns(submissionColumns...).
		Values(
			sub.ID, sub.AssignmentID, sub.UserID, sub.SubmissionNumber, sub.IsLate, sub.FileURL, sub.FileName,
			sub.FileSizeBytes, sub.FileType, sub.CreatedAt.UTC(),
		).
		ToSql()
	if err != nil {
		return submission.Submission{}, err
	}
	if _, err = repo.getExec(exec).ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return submission.Submission{}, core.ErrTxConflict
		}
		return submission.Submission{}, errors.Wrap(err, "inserting submission")
	}
	return sub, nil
}

func (repo submissionRepository) ListSubmissions(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) ([]submission.Submission, error) {
	query, args, err := psql.
		Select(submissionColumns...).
		From("submission").
		Where(sq.Eq{"assignment_id": assignmentID, "user_id": userID}).
		OrderBy("submission_number").
		ToSql()
	if err != nil {
		return nil, err
	}
	var rows []submissionRow
	if err = sqlx.SelectContext(ctx, repo.getExec(exec), &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	subs := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}
