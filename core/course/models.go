// Package course holds the read model of the course catalog. Authoring lives elsewhere;
// this service only needs to know whether a course is published, who owns it and how it is structured.
package course

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("course not found")
	ErrModuleNotFound = errors.New("module not found")
	ErrLessonNotFound = errors.New("lesson not found")
)

type Course struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	TrackID     string `json:"track_id" db:"track_id"`
	IsPublished bool   `json:"is_published" db:"is_published"`
	CreatedBy   string `json:"created_by" db:"created_by"`
}

type Module struct {
	ID         string `json:"id" db:"id"`
	CourseID   string `json:"course_id" db:"course_id"`
	Title      string `json:"title" db:"title"`
	OrderIndex int    `json:"order_index" db:"order_index"`
}

type Lesson struct {
	ID         string `json:"id" db:"id"`
	ModuleID   string `json:"module_id" db:"module_id"`
	CourseID   string `json:"course_id" db:"course_id"`
	Title      string `json:"title" db:"title"`
	OrderIndex int    `json:"order_index" db:"order_index"`
}

// Catalog is the read-only boundary to the course catalog.
type Catalog interface {
	GetCourse(ctx context.Context, id string) (Course, error)
	// ListModules returns the modules of a course ordered by OrderIndex.
	ListModules(ctx context.Context, courseID string) ([]Module, error)
	// ListLessons returns the lessons of a course ordered by module then OrderIndex.
	ListLessons(ctx context.Context, courseID string) ([]Lesson, error)
	GetLesson(ctx context.Context, id string) (Lesson, error)
}

// HasModule reports whether moduleID is part of modules.
func HasModule(modules []Module, moduleID string) bool {
	for _, m := range modules {
		if m.ID == moduleID {
			return true
		}
	}
	return false
}
