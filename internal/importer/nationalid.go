package importer

import "bulkops/internal/academic"

// genderDigit is the zero-based position of the digit encoding gender.
const genderDigit = 12

// GenderFromNationalID reads the 13th digit: odd is male, even is female.
// Anything that is not a 14-digit id yields nil.
func GenderFromNationalID(id string) *string {
	if !nationalIDPattern.MatchString(id) {
		return nil
	}
	g := academic.GenderFemale
	if (id[genderDigit]-'0')%2 == 1 {
		g = academic.GenderMale
	}
	return &g
}
