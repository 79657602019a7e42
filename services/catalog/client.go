// Package catalogsvc reads the course catalog from the catalog HTTP API.
package catalogsvc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core"
	"github.com/trezcool/campus/core/course"
)

type client struct {
	http *resty.Client
}

var _ course.Catalog = (*client)(nil)

func NewClient(conf *core.Config) course.Catalog {
	c := resty.New().
		SetBaseURL(conf.Catalog.URL).
		SetTimeout(conf.Catalog.Timeout).
		SetRetryCount(1).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", conf.AppName+"/"+conf.Build)
	return &client{http: c}
}

func (c client) get(ctx context.Context, path string, params map[string]string, result interface{}, notFound error) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(result).
		Get(path)
	if err != nil {
		return errors.Wrapf(err, "catalog GET %s", path)
	}
	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return notFound
	case resp.IsError():
		return fmt.Errorf("catalog GET %s: unexpected status %d", resp.Request.URL, resp.StatusCode())
	}
	return nil
}

func (c client) GetCourse(ctx context.Context, id string) (course.Course, error) {
	var crs course.Course
	err := c.get(ctx, "/courses/{id}", map[string]string{"id": id}, &crs, course.ErrNotFound)
	return crs, err
}

func (c client) ListModules(ctx context.Context, courseID string) ([]course.Module, error) {
	modules := make([]course.Module, 0)
	err := c.get(ctx, "/courses/{id}/modules", map[string]string{"id": courseID}, &modules, course.ErrNotFound)
	return modules, err
}

func (c client) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	lessons := make([]course.Lesson, 0)
	err := c.get(ctx, "/courses/{id}/lessons", map[string]string{"id": courseID}, &lessons, course.ErrNotFound)
	return lessons, err
}

func (c client) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	var lsn course.Lesson
	err := c.get(ctx, "/lessons/{id}", map[string]string{"id": id}, &lsn, course.ErrLessonNotFound)
	return lsn, err
}
