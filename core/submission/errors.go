package submission

import (
	"errors"

	"github.com/trezcool/campus/core"
)

// repository errors
var ErrNotFound = errors.New("assignment not found")

// business errors
var (
	ErrAssignmentNotFound     = core.NewAppError(core.KindNotFound, "AssignmentNotFound", "assignment not found").WithSQLState("P0002")
	ErrAssignmentNotPublished = core.NewAppError(core.KindForbidden, "AssignmentNotPublished", "assignment is not published").WithSQLState("P0003")
	ErrSubmissionsClosed      = core.NewAppError(core.KindForbidden, "SubmissionsClosed", "the due date has passed and late submissions are not allowed").WithSQLState("P0004")
	ErrResubmissionNotAllowed = core.NewAppError(core.KindForbidden, "ResubmissionNotAllowed", "resubmission is not allowed for this assignment").WithSQLState("P0005")
	ErrMaxSubmissionsReached  = core.NewAppError(core.KindForbidden, "MaxSubmissionsReached", "maximum number of submissions reached").WithSQLState("P0006")
	ErrInvalidFile            = core.NewAppError(core.KindValidation, "InvalidFile", "invalid file")
)
