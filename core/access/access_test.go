package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func dayPtr(s string) *time.Time {
	t := day(s)
	return &t
}

func TestIsUnlocked(t *testing.T) {
	tests := []struct {
		name string
		w    Window
		now  time.Time
		want bool
	}{
		{name: "before unlock", w: Window{UnlockDate: day("2024-03-10")}, now: day("2024-03-09").Add(23 * time.Hour), want: false},
		{name: "exactly at unlock", w: Window{UnlockDate: day("2024-03-10")}, now: day("2024-03-10"), want: true},
		{name: "open ended", w: Window{UnlockDate: day("2024-03-10")}, now: day("2030-01-01"), want: true},
		{name: "inside window", w: Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-20")}, now: day("2024-03-15"), want: true},
		{name: "exactly at lock", w: Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-20")}, now: day("2024-03-20"), want: false},
		{name: "after lock", w: Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-20")}, now: day("2024-04-01"), want: false},
		{name: "lock equals unlock", w: Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-10")}, now: day("2024-03-10"), want: false},
		{name: "lock before unlock", w: Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-01")}, now: day("2024-03-05"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUnlocked(tt.w, tt.now))
		})
	}
}

func TestIsUnlocked_deterministic(t *testing.T) {
	w := Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-20")}
	now := day("2024-03-12")
	first := IsUnlocked(w, now)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, IsUnlocked(w, now))
	}
}

func TestEvaluate(t *testing.T) {
	w := &Window{UnlockDate: day("2024-03-10"), LockDate: dayPtr("2024-03-20")}

	tests := []struct {
		name       string
		w          *Window
		now        time.Time
		override   bool
		wantOpen   bool
		wantReason string
	}{
		{name: "not scheduled", w: nil, now: day("2024-03-01"), wantOpen: true, wantReason: ReasonNotScheduled},
		{name: "locked", w: w, now: day("2024-03-01"), wantOpen: false, wantReason: ReasonLocked},
		{name: "unlocked", w: w, now: day("2024-03-11"), wantOpen: true, wantReason: ReasonUnlocked},
		{name: "override wins over lock", w: w, now: day("2024-03-01"), override: true, wantOpen: true, wantReason: ReasonTeacherOverride},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Evaluate("m1", tt.w, tt.now, tt.override)
			assert.Equal(t, "m1", st.ModuleID)
			assert.Equal(t, tt.wantOpen, st.IsUnlocked)
			assert.Equal(t, tt.wantReason, st.Reason)
			if tt.w != nil {
				require.NotNil(t, st.UnlockDate)
				assert.True(t, st.UnlockDate.Equal(tt.w.UnlockDate))
			}
		})
	}
}

func TestLesson(t *testing.T) {
	open := ModuleStatus{ModuleID: "m1", IsUnlocked: true, Reason: ReasonUnlocked}
	closed := ModuleStatus{ModuleID: "m1", Reason: ReasonLocked}

	assert.Equal(t, ReasonNotEnrolled, Lesson(false, open, false).Reason)
	assert.False(t, Lesson(false, open, false).CanAccess)
	assert.Equal(t, ReasonModuleLocked, Lesson(true, closed, false).Reason)
	assert.Equal(t, ReasonAccessible, Lesson(true, open, false).Reason)
	assert.True(t, Lesson(false, closed, true).CanAccess)
}

func TestDaysUntil(t *testing.T) {
	now := day("2024-03-10").Add(15 * time.Hour)
	assert.Equal(t, 0, DaysUntil(day("2024-03-10"), now))
	assert.Equal(t, 5, DaysUntil(day("2024-03-15"), now))
	assert.Equal(t, -1, DaysUntil(day("2024-03-09"), now))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, d.Location())
	assert.Equal(t, 29, d.Day())

	_, err = ParseDate("29/02/2024")
	assert.Error(t, err)
}
