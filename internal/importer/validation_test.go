package importer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func studentRow(values map[string]string) Row {
	base := map[string]string{
		"name":            "Mona Adel",
		"national_id":     "30001011234577",
		"academic_number": "2024001",
		"email":           "mona@example.com",
		"phone":           "0100000000",
		"level":           "Level 1",
		"program":         "Computer Science",
		"birth_date":      "2000-01-01",
	}
	for k, v := range values {
		base[k] = v
	}
	return Row{Number: 2, Values: base}
}

func TestParseStudent_Valid(t *testing.T) {
	in, err := parseStudent(studentRow(nil))

	require.NoError(t, err)
	assert.Equal(t, "Mona Adel", in.student.Name)
	assert.Equal(t, "Level 1", in.level)
	require.NotNil(t, in.student.BirthDate)
	assert.Equal(t, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC), *in.student.BirthDate)
	require.NotNil(t, in.student.Gender)
	assert.Equal(t, "male", *in.student.Gender)
}

func TestParseStudent_CollectsAllFieldErrors(t *testing.T) {
	_, err := parseStudent(studentRow(map[string]string{
		"name":        " ",
		"national_id": "123",
		"email":       "not-an-email",
		"birth_date":  "yesterday",
	}))

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"is required"}, verr.Fields["name"])
	assert.Equal(t, []string{"must be exactly 14 digits"}, verr.Fields["national_id"])
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "birth_date")
	assert.NotContains(t, verr.Fields, "level")
}

func TestParseStudent_OptionalFields(t *testing.T) {
	in, err := parseStudent(studentRow(map[string]string{"email": "", "phone": "", "birth_date": ""}))

	require.NoError(t, err)
	assert.Empty(t, in.student.Email)
	assert.Nil(t, in.student.BirthDate)
}

func TestValidationError_DateLayouts(t *testing.T) {
	for _, v := range []string{"2001-02-03", "03/02/2001", "2001/02/03", "03-02-2001"} {
		t.Run(v, func(t *testing.T) {
			verr := &ValidationError{}
			d := verr.date(Row{Values: map[string]string{"d": v}}, "d")

			require.False(t, verr.HasErrors())
			require.NotNil(t, d)
			assert.Equal(t, "2001-02-03", d.Format("2006-01-02"))
		})
	}
}

func TestValidationError_OrNil(t *testing.T) {
	v := &ValidationError{}
	assert.NoError(t, v.OrNil())

	v.Add("name", "is required")
	v.Add("name", "is too short")
	assert.EqualError(t, v.OrNil(), "name: is required, is too short")
}

func TestParseEnrollment(t *testing.T) {
	in, err := parseEnrollment(Row{Values: map[string]string{
		"national_id": "30001011234567",
		"course_code": " CS101 ",
		"term":        "2024-fall",
	}})
	require.NoError(t, err)
	assert.Equal(t, "CS101", in.courseCode)
	assert.Empty(t, in.section)

	_, err = parseEnrollment(Row{Values: map[string]string{"national_id": "3000"}})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 3)
}

func TestGenderFromNationalID(t *testing.T) {
	tests := []struct {
		id   string
		want *string
	}{
		{"30001011234577", strPtr("male")},
		{"30001011234587", strPtr("female")},
		{"30001011234507", strPtr("female")},
		{"3000101123456", nil},
		{"3000101123456A", nil},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, GenderFromNationalID(tt.id))
		})
	}
}

func strPtr(s string) *string { return &s }
