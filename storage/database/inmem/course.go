package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/campus/core/course"
)

type catalog struct {
	db *DB
}

var _ course.Catalog = (*catalog)(nil)

func NewCatalog(db *DB) course.Catalog {
	return &catalog{db: db}
}

func (c *catalog) GetCourse(_ context.Context, id string) (course.Course, error) {
	if err := c.db.fault("GetCourse"); err != nil {
		return course.Course{}, err
	}
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if crs, ok := c.db.data.courses[id]; ok {
		return crs, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (c *catalog) ListModules(_ context.Context, courseID string) ([]course.Module, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	modules := make([]course.Module, 0)
	for _, m := range c.db.data.modules {
		if m.CourseID == courseID {
			modules = append(modules, m)
		}
	}
	sort.Slice(modules, func(i, j int) bool { return modules[i].OrderIndex < modules[j].OrderIndex })
	return modules, nil
}

func (c *catalog) ListLessons(_ context.Context, courseID string) ([]course.Lesson, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	lessons := make([]course.Lesson, 0)
	for _, l := range c.db.data.lessons {
		if l.CourseID == courseID {
			lessons = append(lessons, l)
		}
	}
	modules := c.db.data.modules
	sort.Slice(lessons, func(i, j int) bool {
		mi, mj := modules[lessons[i].ModuleID].OrderIndex, modules[lessons[j].ModuleID].OrderIndex
		if mi != mj {
			return mi < mj
		}
		return lessons[i].OrderIndex < lessons[j].OrderIndex
	})
	return lessons, nil
}

func (c *catalog) GetLesson(_ context.Context, id string) (course.Lesson, error) {
	c.db.mu.RLock()
	defer c.db.mu.RUnlock()

	if l, ok := c.db.data.lessons[id]; ok {
		return l, nil
	}
	return course.Lesson{}, course.ErrLessonNotFound
}

// AddCourse stores a course along with its modules and lessons.
func (db *DB) AddCourse(crs course.Course, modules []course.Module, lessons []course.Lesson) course.Course {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.data.courses[crs.ID] = crs
	for _, m := range modules {
		m.CourseID = crs.ID
		db.data.modules[m.ID] = m
	}
	for _, l := range lessons {
		l.CourseID = crs.ID
		db.data.lessons[l.ID] = l
	}
	return crs
}

// SetCoursePublished flips the published flag of a course.
func (db *DB) SetCoursePublished(id string, published bool) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if crs, ok := db.data.courses[id]; ok {
		crs.IsPublished = published
		db.data.courses[id] = crs
	}
}
