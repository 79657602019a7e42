package core_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/campus/core"
)

var errFull = core.NewAppError(core.KindConflict, "CohortFull", "cohort is full")

func TestAppError_Is(t *testing.T) {
	detailed := errFull.WithDetails(map[string]interface{}{"max_students": 3})
	assert.ErrorIs(t, detailed, errFull)
	assert.ErrorIs(t, errors.Wrap(detailed, "enrolling"), errFull)
	assert.Nil(t, errFull.Details, "the original stays untouched")

	other := core.NewAppError(core.KindConflict, "AlreadyEnrolled", "cohort is full")
	assert.NotErrorIs(t, other, errFull)

	msg := errFull.Withf("cohort %s is full", "c1")
	assert.Equal(t, "cohort c1 is full", msg.Error())
	assert.ErrorIs(t, msg, errFull)

	appErr, ok := core.AsAppError(errors.Wrap(detailed, "enrolling"))
	assert.True(t, ok)
	assert.Equal(t, 3, appErr.Details["max_students"])
}

func TestAppError_SQLState(t *testing.T) {
	tagged := errFull.WithSQLState("P0006")
	assert.Empty(t, errFull.SQLState, "the original stays untouched")
	assert.ErrorIs(t, tagged, errFull)

	detailed := tagged.WithDetails(map[string]interface{}{"max_students": 3}).Withf("cohort %s is full", "c1")
	assert.Equal(t, "P0006", detailed.SQLState)
}

func TestIsBusinessError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "app error", err: errors.Wrap(errFull, "enrolling"), want: true},
		{name: "validation error", err: core.NewValidationError(errors.New("invalid input")), want: true},
		{name: "canceled", err: errors.Wrap(context.Canceled, "querying"), want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "conflict", err: core.ErrTxConflict},
		{name: "infrastructure", err: errors.New("connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, core.IsBusinessError(tt.err))
		})
	}
}

func TestIsShutdown(t *testing.T) {
	assert.True(t, core.IsShutdown(errors.Wrap(core.NewShutdownError("integrity issue"), "saving")))
	assert.False(t, core.IsShutdown(errors.New("integrity issue")))
}
