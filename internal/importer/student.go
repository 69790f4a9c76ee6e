package importer

import (
	"context"
	"errors"
	"fmt"

	"bulkops/internal/academic"

	"gorm.io/gorm"
)

var studentLayout = []string{
	"name", "national_id", "academic_number", "email",
	"phone", "level", "program", "birth_date",
}

type StudentHandler struct {
	db *gorm.DB
}

func NewStudentHandler(db *gorm.DB) *StudentHandler {
	return &StudentHandler{db: db}
}

func (h *StudentHandler) Layout() []string {
	return studentLayout
}

type studentInput struct {
	student academic.Student
	level   string
	program string
}

func parseStudent(row Row) (*studentInput, error) {
	v := &ValidationError{}

	in := &studentInput{
		student: academic.Student{
			Name:           v.required(row, "name"),
			NationalID:     v.nationalID(row, "national_id"),
			AcademicNumber: v.required(row, "academic_number"),
			Email:          v.email(row, "email"),
			Phone:          row.Get("phone"),
			BirthDate:      v.date(row, "birth_date"),
		},
		level:   v.required(row, "level"),
		program: v.required(row, "program"),
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	in.student.Gender = GenderFromNationalID(in.student.NationalID)
	return in, nil
}

func (h *StudentHandler) Apply(ctx context.Context, row Row) (Action, error) {
	in, err := parseStudent(row)
	if err != nil {
		return 0, err
	}

	var created bool
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		v := &ValidationError{}

		level, err := academic.FindLevelByName(ctx, tx, in.level)
		switch {
		case errors.Is(err, academic.ErrNotFound):
			v.Add("level", fmt.Sprintf("level %q not found", in.level))
		case err != nil:
			return err
		}

		program, err := academic.FindProgramByName(ctx, tx, in.program)
		switch {
		case errors.Is(err, academic.ErrNotFound):
			v.Add("program", fmt.Sprintf("program %q not found", in.program))
		case err != nil:
			return err
		}

		if err := v.OrNil(); err != nil {
			return err
		}

		s := in.student
		s.LevelID = level.ID
		s.ProgramID = program.ID

		created, err = academic.UpsertStudent(ctx, tx, &s)
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
