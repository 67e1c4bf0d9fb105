package domain

import (
	"errors"
	"testing"
)

func TestParseEducationLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected EducationLevel
		wantErr  bool
	}{
		{"Canonical", "Primaria", Primaria, false},
		{"Lower case", "preescolar", Preescolar, false},
		{"Padded upper case", "  SECUNDARIA ", Secundaria, false},
		{"Unknown", "Bachillerato", "", true},
		{"Empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEducationLevel(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLevel) {
					t.Errorf("Expected ErrUnknownLevel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestEducationLevelGrades(t *testing.T) {
	tests := []struct {
		level    EducationLevel
		expected int
	}{
		{Preescolar, 3},
		{Primaria, 6},
		{Secundaria, 3},
		{EducationLevel("Otro"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := tt.level.GradeCount(); got != tt.expected {
				t.Errorf("Expected %d grades, got %d", tt.expected, got)
			}
			if got := len(tt.level.Grades()); got != tt.expected {
				t.Errorf("Expected %d listed grades, got %d", tt.expected, got)
			}
			if tt.level.ValidGrade(0) {
				t.Errorf("Grade 0 must never be valid")
			}
			if tt.expected > 0 && !tt.level.ValidGrade(tt.expected) {
				t.Errorf("Grade %d should be valid for %s", tt.expected, tt.level)
			}
			if tt.level.ValidGrade(tt.expected + 1) {
				t.Errorf("Grade %d should be invalid for %s", tt.expected+1, tt.level)
			}
		})
	}
}

func TestParseGrade(t *testing.T) {
	if g, err := ParseGrade("3°"); err != nil || g != 3 {
		t.Errorf("Expected 3, got %d (%v)", g, err)
	}
	if g, err := ParseGrade(" 5 "); err != nil || g != 5 {
		t.Errorf("Expected 5, got %d (%v)", g, err)
	}
	if _, err := ParseGrade("tercero"); !errors.Is(err, ErrInvalidGrade) {
		t.Errorf("Expected ErrInvalidGrade, got %v", err)
	}
}

func TestNormalizeSubjectArea(t *testing.T) {
	tests := []struct {
		input    string
		expected SubjectArea
	}{
		{"Lenguajes", AreaLenguajes},
		{"  lenguajes  ", AreaLenguajes},
		{"Ética, Naturaleza y Sociedades", AreaEticaNaturaleza},
		{"Saberes  y Pensamiento   Científico", AreaSaberes},
		{"De lo Humano y lo Comunitario", AreaHumanoComunitario},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSubjectArea(tt.input)
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
			if !got.IsKnown() {
				t.Errorf("Expected %q to be a known area", got)
			}
		})
	}

	if SubjectArea("ARTES").IsKnown() {
		t.Errorf("ARTES is not part of the enumeration")
	}
}

func TestGradeKeyInt(t *testing.T) {
	if n, ok := GradeKey("10").Int(); !ok || n != 10 {
		t.Errorf("Expected 10, got %d (%v)", n, ok)
	}
	if _, ok := GradeKey("x").Int(); ok {
		t.Errorf("Non-numeric key must not convert")
	}
}
