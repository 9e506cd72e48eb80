package models

import "time"

// Age-bracket category labels
const (
	CategoryInfantiles = "Infantiles"
	CategoryMenores    = "Menores"
	CategoryCadetes    = "Cadetes"
	CategoryJuveniles  = "Juveniles"
	CategoryMayores    = "Mayores"
	CategoryUnknown    = "-"
)

// ClassifyCategory maps a birth date to an age-bracket label. The age is a
// deliberately coarse year-only calculation (asOf year minus birth year), so
// the whole birth cohort changes bracket together on January 1st. A missing
// birth date yields CategoryUnknown instead of an error.
func ClassifyCategory(birthDate *time.Time, asOf time.Time) string {
	if birthDate == nil || birthDate.IsZero() {
		return CategoryUnknown
	}

	age := asOf.Year() - birthDate.Year()
	switch {
	case age < 13:
		return CategoryInfantiles
	case age <= 14:
		return CategoryMenores
	case age <= 16:
		return CategoryCadetes
	case age <= 18:
		return CategoryJuveniles
	default:
		return CategoryMayores
	}
}
