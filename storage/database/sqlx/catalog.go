package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/campus/core/course"
)

// catalog reads the course catalog mirrored in the local database.
type catalog struct {
	baseRepository
}

var _ course.Catalog = (*catalog)(nil)

func NewCatalog(db *sqlx.DB) course.Catalog {
	return &catalog{baseRepository{db: db}}
}

func (c catalog) GetCourse(ctx context.Context, id string) (course.Course, error) {
	query, args, err := psql.
		Select("id", "title", "track_id", "is_published", "created_by").
		From("course").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return course.Course{}, err
	}
	var crs course.Course
	if err = sqlx.GetContext(ctx, c.db, &crs, query, args...); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return crs, nil
}

func (c catalog) ListModules(ctx context.Context, courseID string) ([]course.Module, error) {
	query, args, err := psql.
		Select("id", "course_id", "title", "order_index").
		From("course_module").
		Where("course_id = ?", courseID).
		OrderBy("order_index", "id").
		ToSql()
	if err != nil {
		return nil, err
	}
	modules := make([]course.Module, 0)
	if err = sqlx.SelectContext(ctx, c.db, &modules, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing modules")
	}
	return modules, nil
}

func (c catalog) ListLessons(ctx context.Context, courseID string) ([]course.Lesson, error) {
	query, args, err := psql.
		Select("l.id", "l.module_id", "l.course_id", "l.title", "l.order_index").
		From("lesson l").
		Join("course_module m ON m.id = l.module_id").
		Where("l.course_id = ?", courseID).
		OrderBy("m.order_index", "l.order_index", "l.id").
		ToSql()
	if err != nil {
		return nil, err
	}
	lessons := make([]course.Lesson, 0)
	if err = sqlx.SelectContext(ctx, c.db, &lessons, query, args...); err != nil {
		return nil, errors.Wrap(err, "listing lessons")
	}
	return lessons, nil
}

func (c catalog) GetLesson(ctx context.Context, id string) (course.Lesson, error) {
	query, args, err := psql.
		Select("id", "module_id", "course_id", "title", "order_index").
		From("lesson").
		Where("id = ?", id).
		ToSql()
	if err != nil {
		return course.Lesson{}, err
	}
	var lsn course.Lesson
	if err = sqlx.GetContext(ctx, c.db, &lsn, query, args...); err != nil {
		return course.Lesson{}, trapNoRowsErr(err, course.ErrLessonNotFound, "getting lesson")
	}
	return lsn, nil
}
