package submission

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
	"github.com/trezcool/campus/core/user"
)

type (
	Repository interface {
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		// LockSubmissionSlot serializes the submissions of userID to assignmentID until the transaction ends.
		// Other users and other assignments are not blocked.
		LockSubmissionSlot(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) error
		GetSubmissionStats(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) (Stats, error)
		// CreateSubmission returns core.ErrTxConflict when the submission number is already taken.
		CreateSubmission(ctx context.Context, sub Submission, exec ...core.DBExecutor) (Submission, error)
		ListSubmissions(ctx context.Context, assignmentID, userID string, exec ...core.DBExecutor) ([]Submission, error)
	}

	Deps struct {
		DB       core.Transactor
		Repo     Repository
		Files    FileStore
		Catalog  course.Catalog
		UserRepo user.Repository
		MailSvc  core.EmailService
		Logger   core.Logger
	}

	Service struct {
		db       core.Transactor
		repo     Repository
		files    FileStore
		catalog  course.Catalog
		userRepo user.Repository
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		db:       deps.DB,
		repo:     deps.Repo,
		files:    deps.Files,
		catalog:  deps.Catalog,
		userRepo: deps.UserRepo,
		mailSvc:  deps.MailSvc,
		logger:   deps.Logger,
	}
}

func (svc *Service) getAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id, exec...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Assignment{}, ErrAssignmentNotFound
		}
		return Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return a, nil
}

// checkAvailability applies the assignment level rules: published, and open unless late submissions are allowed.
func checkAvailability(a Assignment, now time.Time) error {
	if !a.IsPublished {
		return ErrAssignmentNotPublished
	}
	if a.IsPastDue(now) && !a.AllowLateSubmissions {
		return ErrSubmissionsClosed
	}
	return nil
}

// checkQuota applies the per-user rules given the user's existing submissions.
func checkQuota(a Assignment, stats Stats) error {
	if stats.Count > 0 && !a.AllowResubmission {
		return ErrResubmissionNotAllowed
	}
	if a.MaxSubmissions != nil && stats.Count >= *a.MaxSubmissions {
		return ErrMaxSubmissionsReached.
			Withf("maximum number of submissions (%d) reached", *a.MaxSubmissions).
			WithDetails(map[string]interface{}{"max_submissions": *a.MaxSubmissions})
	}
	return nil
}

func validateFile(a Assignment, ns NewSubmission) error {
	if core.CleanString(ns.FileName) == "" || ns.FileSizeBytes <= 0 {
		return ErrInvalidFile.Withf("a non-empty file is required")
	}
	if a.MaxFileSizeMB > 0 && ns.FileSizeBytes > int64(a.MaxFileSizeMB)*1024*1024 {
		return ErrInvalidFile.Withf("file exceeds the maximum allowed size (%dMB)", a.MaxFileSizeMB)
	}
	if len(a.AllowedFileTypes) > 0 {
		ext := fileExt(ns.FileName)
		for _, t := range a.AllowedFileTypes {
			if strings.TrimPrefix(strings.ToLower(t), ".") == ext {
				return nil
			}
		}
		return ErrInvalidFile.Withf("file type %q is not allowed; allowed types: %s", "."+ext, strings.Join(a.AllowedFileTypes, ", "))
	}
	return nil
}

// Create records a new submission of ns.UserID to ns.AssignmentID. Rules are checked in order and
// the first failing one is reported: assignment exists, published, open (or late allowed),
// resubmission allowed, quota not reached.
// Submission numbers are gapless per (assignment, user): the slot is locked, the next number read and
// the row inserted in the same transaction.
func (svc *Service) Create(ctx context.Context, ns NewSubmission) (Submission, error) {
	// fail fast before storing any file; everything is checked again under the lock
	a, err := svc.getAssignment(ctx, ns.AssignmentID)
	if err != nil {
		return Submission{}, err
	}
	if err = checkAvailability(a, core.NowFunc()); err != nil {
		return Submission{}, err
	}
	stats, err := svc.repo.GetSubmissionStats(ctx, a.ID, ns.UserID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "getting submission stats")
	}
	if err = checkQuota(a, stats); err != nil {
		return Submission{}, err
	}
	if err = validateFile(a, ns); err != nil {
		return Submission{}, err
	}

	fileURL, err := svc.files.Save(ctx, fmt.Sprintf("%s/%s/%s-%s", a.ID, ns.UserID, uuid.New().String(), ns.FileName), ns.Content)
	if err != nil {
		return Submission{}, errors.Wrap(err, "storing file")
	}

	var sub Submission
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		a, err := svc.getAssignment(ctx, ns.AssignmentID, exec)
		if err != nil {
			return err
		}
		now := core.NowFunc()
		if err = checkAvailability(a, now); err != nil {
			return err
		}
		if err = svc.repo.LockSubmissionSlot(ctx, a.ID, ns.UserID, exec); err != nil {
			return errors.Wrap(err, "locking submission slot")
		}
		stats, err := svc.repo.GetSubmissionStats(ctx, a.ID, ns.UserID, exec)
		if err != nil {
			return errors.Wrap(err, "getting submission stats")
		}
		if err = checkQuota(a, stats); err != nil {
			return err
		}

		sub, err = svc.repo.CreateSubmission(ctx, Submission{
			ID:               uuid.New().String(),
			AssignmentID:     a.ID,
			UserID:           ns.UserID,
			SubmissionNumber: stats.MaxNumber + 1,
			IsLate:           a.IsPastDue(now),
			FileURL:          fileURL,
			FileName:         ns.FileName,
			FileSizeBytes:    ns.FileSizeBytes,
			FileType:         ns.FileType,
			CreatedAt:        now,
		}, exec)
		if err != nil {
			if errors.Is(err, core.ErrTxConflict) {
				return err // retried by the transactor
			}
			return errors.Wrap(err, "creating submission")
		}
		return nil
	})
	if err != nil {
		if dErr := svc.files.Delete(context.WithoutCancel(ctx), fileURL); dErr != nil {
			svc.logger.Warn("deleting orphan submission file", dErr, map[string]interface{}{"file_url": fileURL})
		}
		return Submission{}, err
	}

	svc.notifyOwner(ctx, a, sub)
	return sub, nil
}

// Owner returns the ID of the user owning the course of the assignment.
// It is empty when the course is missing from the catalog.
func (svc *Service) Owner(ctx context.Context, assignmentID string) (string, error) {
	a, err := svc.getAssignment(ctx, assignmentID)
	if err != nil {
		return "", err
	}
	crs, err := svc.catalog.GetCourse(ctx, a.CourseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return "", nil
		}
		return "", errors.Wrap(err, "getting course")
	}
	return crs.CreatedBy, nil
}

// List returns the submissions of userID to the assignment, by submission number.
func (svc *Service) List(ctx context.Context, assignmentID, userID string) ([]Submission, error) {
	if _, err := svc.getAssignment(ctx, assignmentID); err != nil {
		return nil, err
	}
	subs, err := svc.repo.ListSubmissions(ctx, assignmentID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing submissions")
	}
	return subs, nil
}

// notifyOwner emails the course owner about a new submission. Failures are logged, never returned:
// the submission is already committed.
func (svc *Service) notifyOwner(ctx context.Context, a Assignment, sub Submission) {
	crs, err := svc.catalog.GetCourse(ctx, a.CourseID)
	if err != nil {
		svc.logger.Warn("submission notification: getting course", err)
		return
	}
	owner, err := svc.userRepo.GetUser(ctx, crs.CreatedBy)
	if err != nil {
		svc.logger.Warn("submission notification: getting course owner", err)
		return
	}
	if owner.Email == "" {
		return
	}
	studentName := sub.UserID
	if student, err := svc.userRepo.GetUser(ctx, sub.UserID); err == nil && student.Name != "" {
		studentName = student.Name
	}

	subject := fmt.Sprintf("New submission: %s", a.Title)
	if sub.IsLate {
		subject += " (late)"
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{owner.Address()},
		Subject:      subject,
		TemplateName: "submission_received",
		TemplateData: notification{
			AssignmentID:     a.ID,
			AssignmentTitle:  a.Title,
			StudentName:      studentName,
			SubmissionNumber: sub.SubmissionNumber,
			IsLate:           sub.IsLate,
			FileName:         sub.FileName,
		},
	})
}
