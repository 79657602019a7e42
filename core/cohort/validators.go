package cohort

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/campus/core"
)

var (
	cohortStatusTag  = "cohortstatus"
	cohortStatusText = "status must be one of upcoming, active, completed, archived"

	enrollmentStatusTag  = "enrollmentstatus"
	enrollmentStatusText = "status must be one of active, paused, completed, dropped"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(cohortStatusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, cohortStatusTag, cohortStatusText)

	_ = validate.RegisterValidation(enrollmentStatusTag, func(fl validator.FieldLevel) bool {
		return EnrollmentStatus(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, enrollmentStatusTag, enrollmentStatusText)
}
