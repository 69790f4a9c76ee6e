package academic

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var ErrNotFound = errors.New("record not found")

// ScheduleFilter selects the students whose schedules are exported. Either
// NationalID is set (single student) or both Program and Level are (group).
type ScheduleFilter struct {
	Term       string
	NationalID string
	Program    string
	Level      string
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func FindLevelByName(ctx context.Context, tx *gorm.DB, name string) (*Level, error) {
	var level Level
	err := tx.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&level).Error
	return &level, notFound(err)
}

func FindProgramByName(ctx context.Context, tx *gorm.DB, name string) (*Program, error) {
	var program Program
	err := tx.WithContext(ctx).Where("LOWER(name) = LOWER(?)", name).First(&program).Error
	return &program, notFound(err)
}

func FindStudentByNationalID(ctx context.Context, tx *gorm.DB, nationalID string) (*Student, error) {
	var student Student
	err := tx.WithContext(ctx).Where("national_id = ?", nationalID).First(&student).Error
	return &student, notFound(err)
}

func FindCourseByCode(ctx context.Context, tx *gorm.DB, code string) (*Course, error) {
	var course Course
	err := tx.WithContext(ctx).Where("UPPER(code) = UPPER(?)", code).First(&course).Error
	return &course, notFound(err)
}

// upserted is the row an INSERT ... ON CONFLICT returned. xmax is zero only
// for a freshly inserted tuple.
type upserted struct {
	ID       uint
	Inserted bool
}

// UpsertStudent inserts the student or updates the row sharing its national
// id, in one statement so concurrent imports of the same student cannot
// both try to insert. It reports whether a new row was created.
func UpsertStudent(ctx context.Context, tx *gorm.DB, s *Student) (bool, error) {
	now := time.Now()
	var res upserted
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO students (
			national_id, academic_number, name, email, phone, gender, birth_date,
			level_id, program_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (national_id) DO UPDATE SET
			academic_number = EXCLUDED.academic_number,
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			phone = EXCLUDED.phone,
			gender = EXCLUDED.gender,
			birth_date = EXCLUDED.birth_date,
			level_id = EXCLUDED.level_id,
			program_id = EXCLUDED.program_id,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`, s.NationalID, s.AcademicNumber, s.Name, s.Email, s.Phone, s.Gender, s.BirthDate,
		s.LevelID, s.ProgramID, now, now).Scan(&res).Error
	if err != nil {
		return false, err
	}
	s.ID = res.ID
	return res.Inserted, nil
}

// UpsertEnrollment keys enrollments on (student, course, term).
func UpsertEnrollment(ctx context.Context, tx *gorm.DB, e *Enrollment) (bool, error) {
	now := time.Now()
	var res upserted
	err := tx.WithContext(ctx).Raw(`
		INSERT INTO enrollments (student_id, course_id, term, section, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, course_id, term) DO UPDATE SET
			section = EXCLUDED.section,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0) AS inserted
	`, e.StudentID, e.CourseID, e.Term, e.Section, now, now).Scan(&res).Error
	if err != nil {
		return false, err
	}
	e.ID = res.ID
	return res.Inserted, nil
}

// ScheduleCandidates returns the students matched by the filter that have at
// least one enrollment in the filter's term, ordered by academic number.
func (r *Repository) ScheduleCandidates(ctx context.Context, f ScheduleFilter) ([]Student, error) {
	q := r.db.WithContext(ctx).
		Preload("Level").
		Preload("Program").
		Where("EXISTS (SELECT 1 FROM enrollments e WHERE e.student_id = students.id AND e.term = ?)", f.Term)

	if f.NationalID != "" {
		q = q.Where("national_id = ?", f.NationalID)
	} else {
		q = q.
			Where("level_id IN (?)", r.db.Model(&Level{}).Select("id").Where("LOWER(name) = LOWER(?)", f.Level)).
			Where("program_id IN (?)", r.db.Model(&Program{}).Select("id").Where("LOWER(name) = LOWER(?)", f.Program))
	}

	var students []Student
	if err := q.Order("academic_number").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

func (r *Repository) TermEnrollments(ctx context.Context, studentID uint, term string) ([]Enrollment, error) {
	var enrollments []Enrollment
	err := r.db.WithContext(ctx).
		Preload("Course").
		Where("student_id = ? AND term = ?", studentID, term).
		Order("id").
		Find(&enrollments).Error
	if err != nil {
		return nil, err
	}
	return enrollments, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
