package importer

import (
	"context"
	"errors"
	"fmt"

	"bulkops/internal/academic"

	"gorm.io/gorm"
)

var enrollmentLayout = []string{"national_id", "course_code", "term", "section"}

type EnrollmentHandler struct {
	db *gorm.DB
}

func NewEnrollmentHandler(db *gorm.DB) *EnrollmentHandler {
	return &EnrollmentHandler{db: db}
}

func (h *EnrollmentHandler) Layout() []string {
	return enrollmentLayout
}

type enrollmentInput struct {
	nationalID string
	courseCode string
	term       string
	section    string
}

func parseEnrollment(row Row) (*enrollmentInput, error) {
	v := &ValidationError{}
	in := &enrollmentInput{
		nationalID: v.nationalID(row, "national_id"),
		courseCode: v.required(row, "course_code"),
		term:       v.required(row, "term"),
		section:    row.Get("section"),
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}
	return in, nil
}

func (h *EnrollmentHandler) Apply(ctx context.Context, row Row) (Action, error) {
	in, err := parseEnrollment(row)
	if err != nil {
		return 0, err
	}

	var created bool
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := &ValidationError{}

		student, err := academic.FindStudentByNationalID(ctx, tx, in.nationalID)
		switch {
		case errors.Is(err, academic.ErrNotFound):
			v.Add("national_id", fmt.Sprintf("no student with national id %s", in.nationalID))
		case err != nil:
			return err
		}

		course, err := academic.FindCourseByCode(ctx, tx, in.courseCode)
		switch {
		case errors.Is(err, academic.ErrNotFound):
			v.Add("course_code", fmt.Sprintf("course %q not found", in.courseCode))
		case err != nil:
			return err
		}

		if err := v.OrNil(); err != nil {
			return err
		}

		created, err = academic.UpsertEnrollment(ctx, tx, &academic.Enrollment{
			StudentID: student.ID,
			CourseID:  course.ID,
			Term:      in.term,
			Section:   in.section,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	if created {
		return ActionCreated, nil
	}
	return ActionUpdated, nil
}
