// Package lessonplan stores the lesson plans teachers assemble from catalog
// selections. The catalog engine only contributes the selected content and
// descriptor strings; everything else is free text supplied by the caller.
package lessonplan

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curriculum-catalog-server/internal/domain"
)

// ErrNotFound is returned when no lesson plan has the requested id.
var ErrNotFound = domain.ErrNotFound

// LessonPlan is one stored lesson plan.
type LessonPlan struct {
	ID                   string                    `json:"id"`
	Title                string                    `json:"title"`
	Level                domain.EducationLevel     `json:"level"`
	Grade                int                       `json:"grade"`
	SubjectAreas         []domain.SubjectArea      `json:"subject_areas"`
	EjeArticulador       string                    `json:"eje_articulador,omitempty"`
	Contents             []domain.ContentSelection `json:"contents"`
	Descriptors          []string                  `json:"descriptors"`
	Duration             string                    `json:"duration,omitempty"`
	Objectives           string                    `json:"objectives,omitempty"`
	Activities           string                    `json:"activities,omitempty"`
	Materials            string                    `json:"materials,omitempty"`
	Evaluation           string                    `json:"evaluation,omitempty"`
	InclusiveAdaptations string                    `json:"inclusive_adaptations,omitempty"`
	Notes                string                    `json:"notes,omitempty"`
	GeneratedContent     string                    `json:"generated_content,omitempty"`
	CreatedAt            time.Time                 `json:"created_at"`
	UpdatedAt            time.Time                 `json:"updated_at"`
}

// GradeLabel returns the grade in "Primaria 3°" form.
func (p *LessonPlan) GradeLabel() string {
	return domain.LevelGrade{Level: p.Level, Grade: p.Grade}.String()
}

// Validate checks the fields every stored plan must carry and normalizes
// subject area names.
func (p *LessonPlan) Validate() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return domain.NewValidationError("title", "Title is required", p.Title)
	}
	if !p.Level.IsValid() {
		level, err := domain.ParseEducationLevel(string(p.Level))
		if err != nil {
			return domain.NewValidationError("level", "Must be Preescolar, Primaria or Secundaria", p.Level)
		}
		p.Level = level
	}
	if !p.Level.ValidGrade(p.Grade) {
		return domain.NewValidationError("grade", fmt.Sprintf("Must be between 1 and %d for %s", p.Level.GradeCount(), p.Level), p.Grade)
	}
	for i, area := range p.SubjectAreas {
		p.SubjectAreas[i] = domain.NormalizeSubjectArea(string(area))
	}
	for i, sel := range p.Contents {
		p.Contents[i].Area = domain.NormalizeSubjectArea(string(sel.Area))
	}
	if p.SubjectAreas == nil {
		p.SubjectAreas = []domain.SubjectArea{}
	}
	if p.Contents == nil {
		p.Contents = []domain.ContentSelection{}
	}
	if p.Descriptors == nil {
		p.Descriptors = []string{}
	}
	return nil
}

// Patch holds the fields of an update. Nil fields are left unchanged.
type Patch struct {
	Title                *string                    `json:"title,omitempty"`
	Level                *domain.EducationLevel     `json:"level,omitempty"`
	Grade                *int                       `json:"grade,omitempty"`
	SubjectAreas         *[]domain.SubjectArea      `json:"subject_areas,omitempty"`
	EjeArticulador       *string                    `json:"eje_articulador,omitempty"`
	Contents             *[]domain.ContentSelection `json:"contents,omitempty"`
	Descriptors          *[]string                  `json:"descriptors,omitempty"`
	Duration             *string                    `json:"duration,omitempty"`
	Objectives           *string                    `json:"objectives,omitempty"`
	Activities           *string                    `json:"activities,omitempty"`
	Materials            *string                    `json:"materials,omitempty"`
	Evaluation           *string                    `json:"evaluation,omitempty"`
	InclusiveAdaptations *string                    `json:"inclusive_adaptations,omitempty"`
	Notes                *string                    `json:"notes,omitempty"`
	GeneratedContent     *string                    `json:"generated_content,omitempty"`
}

// Apply copies the set fields of patch onto p.
func (p *LessonPlan) Apply(patch Patch) {
	setString(&p.Title, patch.Title)
	setString(&p.EjeArticulador, patch.EjeArticulador)
	setString(&p.Duration, patch.Duration)
	setString(&p.Objectives, patch.Objectives)
	setString(&p.Activities, patch.Activities)
	setString(&p.Materials, patch.Materials)
	setString(&p.Evaluation, patch.Evaluation)
	setString(&p.InclusiveAdaptations, patch.InclusiveAdaptations)
	setString(&p.Notes, patch.Notes)
	setString(&p.GeneratedContent, patch.GeneratedContent)
	if patch.Level != nil {
		p.Level = *patch.Level
	}
	if patch.Grade != nil {
		p.Grade = *patch.Grade
	}
	if patch.SubjectAreas != nil {
		p.SubjectAreas = *patch.SubjectAreas
	}
	if patch.Contents != nil {
		p.Contents = *patch.Contents
	}
	if patch.Descriptors != nil {
		p.Descriptors = *patch.Descriptors
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// Search matches title or subject areas, case-insensitively.
	Search      string                `json:"search,omitempty"`
	Level       domain.EducationLevel `json:"level,omitempty"`
	Grade       int                   `json:"grade,omitempty"`
	SubjectArea domain.SubjectArea    `json:"subject_area,omitempty"`
}

// Stats summarises stored plans.
type Stats struct {
	Total         int64            `json:"total"`
	ByGrade       map[string]int64 `json:"by_grade"`
	BySubjectArea map[string]int64 `json:"by_subject_area"`
}

// Store defines the interface for lesson plan storage operations.
type Store interface {
	// Create assigns an id and timestamps and stores the plan.
	Create(ctx context.Context, plan *LessonPlan) error

	// Update applies a patch and returns the updated plan.
	Update(ctx context.Context, id string, patch Patch) (*LessonPlan, error)

	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*LessonPlan, error)

	// List returns plans matching filter, newest first.
	List(ctx context.Context, filter Filter, limit, offset int) ([]*LessonPlan, error)

	// Delete returns ErrNotFound for unknown ids.
	Delete(ctx context.Context, id string) error

	Stats(ctx context.Context) (*Stats, error)

	// ExportJSON writes every plan to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON stores plans from an export, skipping ids that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version     string        `json:"version"`
	ExportedAt  time.Time     `json:"exported_at"`
	Count       int           `json:"count"`
	LessonPlans []*LessonPlan `json:"lesson_plans"`
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// prepareCreate validates a new plan and stamps its id and times.
func prepareCreate(plan *LessonPlan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	return nil
}

// encodedLists holds the JSON columns of a row.
type encodedLists struct {
	subjectAreas string
	contents     string
	descriptors  string
}

func encodeLists(plan *LessonPlan) (encodedLists, error) {
	areas, err := json.Marshal(plan.SubjectAreas)
	if err != nil {
		return encodedLists{}, fmt.Errorf("failed to encode subject areas: %w", err)
	}
	contents, err := json.Marshal(plan.Contents)
	if err != nil {
		return encodedLists{}, fmt.Errorf("failed to encode contents: %w", err)
	}
	descriptors, err := json.Marshal(plan.Descriptors)
	if err != nil {
		return encodedLists{}, fmt.Errorf("failed to encode descriptors: %w", err)
	}
	return encodedLists{
		subjectAreas: string(areas),
		contents:     string(contents),
		descriptors:  string(descriptors),
	}, nil
}

func (e encodedLists) decodeInto(plan *LessonPlan) error {
	if err := json.Unmarshal([]byte(e.subjectAreas), &plan.SubjectAreas); err != nil {
		return fmt.Errorf("failed to decode subject areas: %w", err)
	}
	if err := json.Unmarshal([]byte(e.contents), &plan.Contents); err != nil {
		return fmt.Errorf("failed to decode contents: %w", err)
	}
	if err := json.Unmarshal([]byte(e.descriptors), &plan.Descriptors); err != nil {
		return fmt.Errorf("failed to decode descriptors: %w", err)
	}
	return nil
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, title, level, grade, subject_areas, eje_articulador,
	contents, descriptors, duration, objectives, activities, materials,
	evaluation, inclusive_adaptations, notes, generated_content,
	created_at, updated_at`

// scanPlan scans a row selected with selectColumns.
func scanPlan(s scanner) (*LessonPlan, error) {
	plan := &LessonPlan{}
	var level string
	var lists encodedLists

	err := s.Scan(
		&plan.ID, &plan.Title, &level, &plan.Grade, &lists.subjectAreas, &plan.EjeArticulador,
		&lists.contents, &lists.descriptors, &plan.Duration, &plan.Objectives, &plan.Activities, &plan.Materials,
		&plan.Evaluation, &plan.InclusiveAdaptations, &plan.Notes, &plan.GeneratedContent,
		&plan.CreatedAt, &plan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	plan.Level = domain.EducationLevel(level)
	if err := lists.decodeInto(plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// statsAccumulator builds Stats from (level, grade, subject_areas) rows.
type statsAccumulator struct {
	stats *Stats
}

func newStatsAccumulator() *statsAccumulator {
	return &statsAccumulator{stats: &Stats{
		ByGrade:       make(map[string]int64),
		BySubjectArea: make(map[string]int64),
	}}
}

func (a *statsAccumulator) add(level string, grade int, subjectAreas string) error {
	var areas []domain.SubjectArea
	if err := json.Unmarshal([]byte(subjectAreas), &areas); err != nil {
		return fmt.Errorf("failed to decode subject areas: %w", err)
	}
	a.stats.Total++
	a.stats.ByGrade[domain.LevelGrade{Level: domain.EducationLevel(level), Grade: grade}.String()]++
	for _, area := range areas {
		a.stats.BySubjectArea[string(area)]++
	}
	return nil
}

// searchPattern builds a LIKE pattern for case-insensitive search.
func searchPattern(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// areaPattern matches one normalized area inside the JSON subject_areas column.
func areaPattern(area domain.SubjectArea) string {
	encoded, _ := json.Marshal(domain.NormalizeSubjectArea(string(area)))
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(string(encoded)) + "%"
}
