package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/campus/core/cohort"
	"github.com/trezcool/campus/core/roster"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/tests"
)

func TestRosterApi(t *testing.T) {
	env, srv := setup(t)
	ctx := context.Background()
	fx := newCohortFixture(t, env, nil)
	teacherTkn := getToken(t, env.Conf, fx.teacher)
	base := fmt.Sprintf("/v1/cohorts/%s/roster", fx.cohort.ID)

	bob := testutil.CreateUser(t, env.DB, "bob", user.RoleStudent)
	for _, usr := range []user.User{fx.student, bob} {
		_, err := env.CohortSvc.Enroll(ctx, fx.cohort.ID, usr.ID)
		require.NoError(t, err)
	}
	_, err := env.CohortSvc.RecordLessonProgress(ctx, fx.cohort.ID, bob.ID, cohort.ProgressUpdate{
		LessonID:  fx.course.Lessons[0].ID,
		Completed: true,
	})
	require.NoError(t, err)
	env.DB.AddForumPost(fx.cohort.ID, bob.ID)

	runHTTPTests(t, srv, []httpTest{
		{
			name:     "student",
			method:   http.MethodGet,
			path:     base,
			token:    getToken(t, env.Conf, fx.student),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "never refreshed",
			method:   http.MethodGet,
			path:     base,
			token:    teacherTkn,
			wantCode: http.StatusOK,
			wantData: []byte(`[]`),
		},
		{
			name:     "bad ordering",
			method:   http.MethodGet,
			path:     base + "?ordering=password",
			token:    teacherTkn,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"code":"ValidationError","error":"invalid ordering","fields":{"ordering":"cannot order by password"}}`),
		},
		{
			name:     "student cannot refresh",
			method:   http.MethodPost,
			path:     base + "/refresh",
			token:    getToken(t, env.Conf, fx.student),
			wantCode: http.StatusForbidden,
		},
	})

	req, rec := newAuthRequest(http.MethodPost, base+"/refresh", teacherTkn)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, decode(t, rec)["row_count"])

	req, rec = newAuthRequest(http.MethodGet, base+"?ordering=-completed_lessons", teacherTkn)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rows []roster.Row
	require.NoError(t, jsonUnmarshal(rec, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, bob.ID, rows[0].UserID)
	assert.Equal(t, 1, rows[0].CompletedLessons)
	assert.Equal(t, 1, rows[0].ForumPosts)
	assert.False(t, rows[0].RefreshedAt.IsZero())

	// the snapshot lags until the next refresh
	_, err = env.CohortSvc.Drop(ctx, fx.cohort.ID, bob.ID)
	require.NoError(t, err)
	req, rec = newAuthRequest(http.MethodGet, base+"?status=dropped", teacherTkn)
	srv.ServeHTTP(rec, req)
	assert.JSONEq(t, `[]`, rec.Body.String())

	req, rec = newAuthRequest(http.MethodGet, base+"/export", teacherTkn)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster_"+fx.cohort.ID+".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	xlRows, err := f.GetRows("Roster")
	require.NoError(t, err)
	assert.Len(t, xlRows, 4) // title, headers, 2 students
}
