package echoapi_test

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core/submission"
	"github.com/trezcool/campus/core/user"
	"github.com/trezcool/campus/services/ratelimit"
	"github.com/trezcool/campus/tests"
)

func newUploadRequest(t *testing.T, path, token, fname, content string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if fname != "" {
		part, err := w.CreateFormFile("file", fname)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func TestSubmissionApi_Create(t *testing.T) {
	env, srv := setup(t)
	teacher := testutil.CreateUser(t, env.DB, "teacher", user.RoleTeacher)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	crs := testutil.CreateCourse(t, env.DB, teacher.ID, true, 1, 1)
	asg := testutil.CreateAssignment(t, env.DB, crs.Lessons[0], func(a *submission.Assignment) {
		a.MaxSubmissions = testutil.IntPtr(2)
	})
	token := getToken(t, env.Conf, student)
	submitPath := fmt.Sprintf("/v1/assignments/%s/submit", asg.ID)

	tests := []struct {
		name     string
		path     string
		fname    string
		content  string
		wantCode int
		wantErr  string
		wantSQL  string
		wantNum  float64
	}{
		{name: "unknown assignment", path: "/v1/assignments/nope/submit", fname: "a.pdf", content: "x", wantCode: http.StatusNotFound, wantErr: "AssignmentNotFound", wantSQL: "P0002"},
		{name: "no file", path: submitPath, wantCode: http.StatusBadRequest, wantErr: "ValidationError"},
		{name: "wrong type", path: submitPath, fname: "a.exe", content: "x", wantCode: http.StatusBadRequest, wantErr: "InvalidFile"},
		{name: "first", path: submitPath, fname: "a.pdf", content: "v1", wantCode: http.StatusCreated, wantNum: 1},
		{name: "second", path: submitPath, fname: "a.zip", content: "v2", wantCode: http.StatusCreated, wantNum: 2},
		{name: "over quota", path: submitPath, fname: "a.pdf", content: "v3", wantCode: http.StatusForbidden, wantErr: "MaxSubmissionsReached", wantSQL: "P0006"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newUploadRequest(t, tt.path, token, tt.fname, tt.content)
			srv.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			body := decode(t, rec)
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, body["code"])
				if tt.wantSQL != "" {
					assert.Equal(t, tt.wantSQL, body["sqlstate"])
				} else {
					assert.NotContains(t, body, "sqlstate")
				}
				return
			}
			assert.Equal(t, tt.wantNum, body["submission_number"])
			assert.True(t, strings.HasPrefix(body["file_url"].(string), "/uploads/"))
		})
	}

	// the course owner hears about each accepted submission
	assert.Len(t, env.MailSvc.SentMessages(), 2)

	req, rec := newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/assignments/%s/submissions", asg.ID), token)
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []submission.Submission
	require.NoError(t, jsonUnmarshal(rec, &subs))
	require.Len(t, subs, 2)
	assert.Equal(t, 1, subs[0].SubmissionNumber)
	assert.Equal(t, 2, subs[1].SubmissionNumber)
}

func TestSubmissionApi_ConcurrentSubmissionsAreGapless(t *testing.T) {
	env, srv := setup(t)
	teacher := testutil.CreateUser(t, env.DB, "teacher", user.RoleTeacher)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	crs := testutil.CreateCourse(t, env.DB, teacher.ID, true, 1, 1)
	asg := testutil.CreateAssignment(t, env.DB, crs.Lessons[0])
	token := getToken(t, env.Conf, student)

	const n = 10
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req, rec := newUploadRequest(t, fmt.Sprintf("/v1/assignments/%s/submit", asg.ID), token, "work.pdf", fmt.Sprint(i))
			srv.ServeHTTP(rec, req)
			codes <- rec.Code
		}(i)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusCreated, code)
	}

	subs, err := env.SubmissionSvc.List(context.Background(), asg.ID, student.ID)
	require.NoError(t, err)
	require.Len(t, subs, n)
	for i, sub := range subs {
		assert.Equal(t, i+1, sub.SubmissionNumber)
	}
}

func TestSubmissionApi_RateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryStore(0.001, 1)
	env, srv := setup(t, limiter)
	teacher := testutil.CreateUser(t, env.DB, "teacher", user.RoleTeacher)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	crs := testutil.CreateCourse(t, env.DB, teacher.ID, true, 1, 1)
	asg := testutil.CreateAssignment(t, env.DB, crs.Lessons[0])
	token := getToken(t, env.Conf, student)
	path := fmt.Sprintf("/v1/assignments/%s/submit", asg.ID)

	req, rec := newUploadRequest(t, path, token, "a.pdf", "x")
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	req, rec = newUploadRequest(t, path, token, "a.pdf", "x")
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RateLimited", decode(t, rec)["code"])
}

func TestSubmissionApi_ListAuthorization(t *testing.T) {
	env, srv := setup(t)
	teacher := testutil.CreateUser(t, env.DB, "teacher", user.RoleTeacher)
	student := testutil.CreateUser(t, env.DB, "student", user.RoleStudent)
	other := testutil.CreateUser(t, env.DB, "other", user.RoleStudent)
	crs := testutil.CreateCourse(t, env.DB, teacher.ID, true, 1, 1)
	asg := testutil.CreateAssignment(t, env.DB, crs.Lessons[0])

	req, rec := newUploadRequest(t, fmt.Sprintf("/v1/assignments/%s/submit", asg.ID), getToken(t, env.Conf, student), "a.pdf", "x")
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	listPath := fmt.Sprintf("/v1/assignments/%s/submissions?user_id=%s", asg.ID, student.ID)
	tests := []struct {
		name     string
		usr      user.User
		wantCode int
		wantLen  int
	}{
		{name: "self", usr: student, wantCode: http.StatusOK, wantLen: 1},
		{name: "course owner", usr: teacher, wantCode: http.StatusOK, wantLen: 1},
		{name: "another student", usr: other, wantCode: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, listPath, getToken(t, env.Conf, tt.usr))
			srv.ServeHTTP(rec, req)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var subs []submission.Submission
			require.NoError(t, jsonUnmarshal(rec, &subs))
			assert.Len(t, subs, tt.wantLen)
		})
	}

	// without user_id the caller sees their own submissions
	req, rec = newAuthRequest(http.MethodGet, fmt.Sprintf("/v1/assignments/%s/submissions", asg.ID), getToken(t, env.Conf, other))
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var subs []submission.Submission
	require.NoError(t, jsonUnmarshal(rec, &subs))
	assert.Empty(t, subs)
}
