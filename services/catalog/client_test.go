package catalogsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
)

func newTestClient(t *testing.T) course.Catalog {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v interface{}) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/courses/c1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, course.Course{ID: "c1", Title: "Go", IsPublished: true, CreatedBy: "t1"})
	})
	mux.HandleFunc("/courses/c1/modules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []course.Module{{ID: "m1", CourseID: "c1", OrderIndex: 1}, {ID: "m2", CourseID: "c1", OrderIndex: 2}})
	})
	mux.HandleFunc("/courses/c1/lessons", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []course.Lesson{{ID: "l1", ModuleID: "m1", CourseID: "c1"}})
	})
	mux.HandleFunc("/lessons/l1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, course.Lesson{ID: "l1", ModuleID: "m1", CourseID: "c1"})
	})
	mux.HandleFunc("/courses/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.Catalog.URL = srv.URL
	conf.Catalog.Timeout = 2 * time.Second
	return NewClient(conf)
}

func TestClient(t *testing.T) {
	ctx := context.Background()
	catalog := newTestClient(t)

	crs, err := catalog.GetCourse(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "t1", crs.CreatedBy)
	assert.True(t, crs.IsPublished)

	modules, err := catalog.ListModules(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, modules, 2)

	lessons, err := catalog.ListLessons(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, lessons, 1)

	lsn, err := catalog.GetLesson(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, "m1", lsn.ModuleID)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	catalog := newTestClient(t)

	_, err := catalog.GetCourse(ctx, "nope")
	assert.ErrorIs(t, err, course.ErrNotFound)

	_, err = catalog.GetLesson(ctx, "nope")
	assert.ErrorIs(t, err, course.ErrLessonNotFound)

	_, err = catalog.GetCourse(ctx, "broken")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, course.ErrNotFound)
}
