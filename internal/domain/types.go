// Package domain contains the core entities shared by the curriculum catalog
// service: education levels, grade keys, subject areas ("campos formativos"),
// content selections and the error taxonomy surfaced to consumers.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// EducationLevel is one of the three levels of Mexican basic education.
// Each level numbers its grades starting at 1.
type EducationLevel string

const (
	Preescolar EducationLevel = "Preescolar"
	Primaria   EducationLevel = "Primaria"
	Secundaria EducationLevel = "Secundaria"
)

// Levels lists every education level in curricular order.
var Levels = []EducationLevel{Preescolar, Primaria, Secundaria}

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownLevel = errors.New("unknown education level")
	ErrInvalidGrade = errors.New("grade out of range for education level")
)

// ParseEducationLevel accepts any casing of a level name.
func ParseEducationLevel(s string) (EducationLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "preescolar":
		return Preescolar, nil
	case "primaria":
		return Primaria, nil
	case "secundaria":
		return Secundaria, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// IsValid reports whether l is one of the known levels.
func (l EducationLevel) IsValid() bool {
	switch l {
	case Preescolar, Primaria, Secundaria:
		return true
	default:
		return false
	}
}

// GradeCount returns how many grades the level has, or 0 for unknown levels.
func (l EducationLevel) GradeCount() int {
	switch l {
	case Preescolar, Secundaria:
		return 3
	case Primaria:
		return 6
	default:
		return 0
	}
}

// ValidGrade reports whether grade is a level-relative grade of l.
func (l EducationLevel) ValidGrade(grade int) bool {
	return grade >= 1 && grade <= l.GradeCount()
}

// Grades returns the level-relative grades of l in ascending order.
func (l EducationLevel) Grades() []int {
	grades := make([]int, 0, l.GradeCount())
	for g := 1; g <= l.GradeCount(); g++ {
		grades = append(grades, g)
	}
	return grades
}

// LevelGrade is a grade expressed relative to its education level.
type LevelGrade struct {
	Level EducationLevel `json:"level"`
	Grade int            `json:"grade"`
}

func (lg LevelGrade) String() string {
	return fmt.Sprintf("%s %d°", lg.Level, lg.Grade)
}

// ParseGrade parses a level-relative grade such as "3" or "3°".
func ParseGrade(s string) (int, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "°"))
	g, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
	}
	return g, nil
}

// GradeKey is the token the external catalog uses to index grades.
type GradeKey string

// Int returns the numeric value of the key.
func (k GradeKey) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(k)))
	if err != nil {
		return 0, false
	}
	return n, true
}

// SubjectArea is a curricular "campo formativo".
type SubjectArea string

// Known subject areas, in their normalized (upper-case) form.
const (
	AreaLenguajes         SubjectArea = "LENGUAJES"
	AreaSaberes           SubjectArea = "SABERES Y PENSAMIENTO CIENTÍFICO"
	AreaEticaNaturaleza   SubjectArea = "ÉTICA, NATURALEZA Y SOCIEDADES"
	AreaHumanoComunitario SubjectArea = "DE LO HUMANO Y LO COMUNITARIO"
)

// KnownSubjectAreas is the advisory enumeration of campos formativos.
var KnownSubjectAreas = []SubjectArea{
	AreaLenguajes,
	AreaSaberes,
	AreaEticaNaturaleza,
	AreaHumanoComunitario,
}

// NormalizeSubjectArea trims and upper-cases an area name so that catalog
// keys and caller input compare equal regardless of casing.
func NormalizeSubjectArea(s string) SubjectArea {
	return SubjectArea(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
}

// IsKnown reports whether the area belongs to the advisory enumeration.
func (a SubjectArea) IsKnown() bool {
	for _, known := range KnownSubjectAreas {
		if a == known {
			return true
		}
	}
	return false
}

// ContentSelection identifies a content item. Content text is only unique
// within its subject area, so the pair is the identity.
type ContentSelection struct {
	Content string      `json:"content"`
	Area    SubjectArea `json:"area"`
}

// EjesArticuladores are the cross-cutting themes a lesson plan may declare.
var EjesArticuladores = []string{
	"Inclusión",
	"Pensamiento Crítico",
	"Interculturalidad Crítica",
	"Igualdad de Género",
	"Vida Saludable",
	"Apropiación de las Culturas a través de la Lectura y la Escritura",
	"Artes y Experiencias Estéticas",
}
