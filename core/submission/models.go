package submission

import (
	"context"
	"io"
	"path"
	"strings"
	"time"
)

type Assignment struct {
	ID                   string     `json:"id"`
	LessonID             string     `json:"lesson_id"`
	CourseID             string     `json:"course_id"`
	Title                string     `json:"title"`
	IsPublished          bool       `json:"is_published"`
	DueDate              *time.Time `json:"due_date"`
	AllowLateSubmissions bool       `json:"allow_late_submissions"`
	AllowResubmission    bool       `json:"allow_resubmission"`
	MaxSubmissions       *int       `json:"max_submissions"`
	MaxFileSizeMB        int        `json:"max_file_size_mb"` // 0: no limit
	AllowedFileTypes     []string   `json:"allowed_file_types"`
}

// IsPastDue reports whether now is strictly after the due date.
func (a Assignment) IsPastDue(now time.Time) bool {
	return a.DueDate != nil && now.After(*a.DueDate)
}

type Submission struct {
	ID               string    `json:"id"`
	AssignmentID     string    `json:"assignment_id"`
	UserID           string    `json:"user_id"`
	SubmissionNumber int       `json:"submission_number"`
	IsLate           bool      `json:"is_late"`
	FileURL          string    `json:"file_url"`
	FileName         string    `json:"file_name"`
	FileSizeBytes    int64     `json:"file_size_bytes"`
	FileType         string    `json:"file_type"`
	CreatedAt        time.Time `json:"created_at"` // UTC
}

// Stats summarizes the existing submissions of one user to one assignment.
type Stats struct {
	Count     int
	MaxNumber int
}

// NewSubmission contains information needed to create a Submission.
type NewSubmission struct {
	AssignmentID  string
	UserID        string
	FileName      string
	FileSizeBytes int64
	FileType      string
	Content       io.Reader
}

// FileStore keeps submitted files. Save returns the URL the file can be retrieved from.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

// fileExt returns the lower-cased extension of name, without the dot.
func fileExt(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

// notification is the data of the "submission_received" email.
type notification struct {
	AssignmentID     string
	AssignmentTitle  string
	StudentName      string
	SubmissionNumber int
	IsLate           bool
	FileName         string
}
