// Package academic holds the business entities that bulk operations read
// from and write to. CRUD for these records lives elsewhere; this package
// only exposes the natural-key lookups and upserts the importers and
// exporters need.
package academic

import "time"

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

type Level struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Program struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Code      string    `gorm:"size:30" json:"code"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Student struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	NationalID     string     `gorm:"size:14;not null;uniqueIndex" json:"national_id"`
	AcademicNumber string     `gorm:"size:30;not null;uniqueIndex" json:"academic_number"`
	Name           string     `gorm:"size:200;not null" json:"name"`
	Email          string     `gorm:"size:200" json:"email"`
	Phone          string     `gorm:"size:30" json:"phone"`
	Gender         *string    `gorm:"size:10" json:"gender"`
	BirthDate      *time.Time `gorm:"type:date" json:"birth_date"`
	LevelID        uint       `gorm:"not null;index" json:"level_id"`
	ProgramID      uint       `gorm:"not null;index" json:"program_id"`
	Level          Level      `json:"level"`
	Program        Program    `json:"program"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type Course struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Code        string    `gorm:"size:30;not null;uniqueIndex" json:"code"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	CreditHours int       `gorm:"not null;default:0" json:"credit_hours"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_enrollment_unique" json:"student_id"`
	CourseID  uint      `gorm:"not null;uniqueIndex:idx_enrollment_unique" json:"course_id"`
	Term      string    `gorm:"size:30;not null;uniqueIndex:idx_enrollment_unique;index" json:"term"`
	Section   string    `gorm:"size:20" json:"section"`
	Student   Student   `json:"-"`
	Course    Course    `json:"course"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
