package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
)

// StatusParams takes no arguments.
type StatusParams struct{}

// ScopeParams selects one grade of one education level.
type ScopeParams struct {
	Level string `json:"level" jsonschema:"education level: Preescolar, Primaria or Secundaria"`
	Grade int    `json:"grade" jsonschema:"grade relative to the level, starting at 1"`
}

// ListContentsParams defines parameters for the list_contents tool
type ListContentsParams struct {
	Level string   `json:"level" jsonschema:"education level: Preescolar, Primaria or Secundaria"`
	Grade int      `json:"grade" jsonschema:"grade relative to the level, starting at 1"`
	Areas []string `json:"areas" jsonschema:"subject areas to list, matched case-insensitively"`
}

// ListDescriptorsParams defines parameters for the list_descriptors tool
type ListDescriptorsParams struct {
	Level      string                    `json:"level" jsonschema:"education level: Preescolar, Primaria or Secundaria"`
	Grade      int                       `json:"grade" jsonschema:"grade relative to the level, starting at 1"`
	Selections []domain.ContentSelection `json:"selections" jsonschema:"content and subject area pairs returned by list_contents"`
}

// SaveLessonPlanParams defines parameters for the save_lesson_plan tool
type SaveLessonPlanParams struct {
	Title                string                    `json:"title"`
	Level                string                    `json:"level"`
	Grade                int                       `json:"grade"`
	SubjectAreas         []string                  `json:"subject_areas,omitempty"`
	EjeArticulador       string                    `json:"eje_articulador,omitempty"`
	Contents             []domain.ContentSelection `json:"contents,omitempty"`
	Descriptors          []string                  `json:"descriptors,omitempty"`
	Duration             string                    `json:"duration,omitempty"`
	Objectives           string                    `json:"objectives,omitempty"`
	Activities           string                    `json:"activities,omitempty"`
	Materials            string                    `json:"materials,omitempty"`
	Evaluation           string                    `json:"evaluation,omitempty"`
	InclusiveAdaptations string                    `json:"inclusive_adaptations,omitempty"`
	Notes                string                    `json:"notes,omitempty"`
}

// SearchLessonPlansParams defines parameters for the search_lesson_plans tool
type SearchLessonPlansParams struct {
	Search      string `json:"search,omitempty"`
	Level       string `json:"level,omitempty"`
	Grade       int    `json:"grade,omitempty"`
	SubjectArea string `json:"subject_area,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// SubjectAreasResult is returned by list_subject_areas
type SubjectAreasResult struct {
	Level        domain.EducationLevel `json:"level"`
	Grade        int                   `json:"grade"`
	SubjectAreas []domain.SubjectArea  `json:"subject_areas"`
}

// ContentsResult is returned by list_contents
type ContentsResult struct {
	Level    domain.EducationLevel     `json:"level"`
	Grade    int                       `json:"grade"`
	Contents []domain.ContentSelection `json:"contents"`
}

// DescriptorsResult is returned by list_descriptors
type DescriptorsResult struct {
	Level       domain.EducationLevel `json:"level"`
	Grade       int                   `json:"grade"`
	Descriptors []string              `json:"descriptors"`
}

// SearchResult is returned by search_lesson_plans
type SearchResult struct {
	Count       int                      `json:"count"`
	LessonPlans []*lessonplan.LessonPlan `json:"lesson_plans"`
}

const maxSearchLimit = 50

func (s *Server) handleCatalogStatus(ctx context.Context, req *mcp.CallToolRequest, _ StatusParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "catalog_status").Info("Tool invoked")

	state := s.catalog.State()
	return jsonResult(fmt.Sprintf("Catalog is %s (generation %d)", state.State, state.Generation), state), state, nil
}

func (s *Server) handleListSubjectAreas(ctx context.Context, req *mcp.CallToolRequest, params ScopeParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_subject_areas").Info("Tool invoked")

	level, err := parseScope(params.Level, params.Grade)
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}
	if err := s.ensureCatalog(ctx); err != nil {
		return s.createErrorResult("Curriculum catalog is unavailable", err), nil, nil
	}

	result := SubjectAreasResult{
		Level:        level,
		Grade:        params.Grade,
		SubjectAreas: s.catalog.SubjectAreas(level, params.Grade),
	}
	summary := fmt.Sprintf("%d subject areas for %s", len(result.SubjectAreas), gradeLabel(level, params.Grade))
	return jsonResult(summary, result), result, nil
}

func (s *Server) handleListContents(ctx context.Context, req *mcp.CallToolRequest, params ListContentsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_contents").Info("Tool invoked")

	level, err := parseScope(params.Level, params.Grade)
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}
	if len(params.Areas) == 0 {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("areas must name at least one subject area")), nil, nil
	}
	if err := s.ensureCatalog(ctx); err != nil {
		return s.createErrorResult("Curriculum catalog is unavailable", err), nil, nil
	}

	areas := make([]domain.SubjectArea, 0, len(params.Areas))
	for _, a := range params.Areas {
		areas = append(areas, domain.SubjectArea(a))
	}

	result := ContentsResult{
		Level:    level,
		Grade:    params.Grade,
		Contents: s.catalog.GetContentsForAreas(areas, level, params.Grade),
	}
	summary := fmt.Sprintf("%d contents for %s", len(result.Contents), gradeLabel(level, params.Grade))
	return jsonResult(summary, result), result, nil
}

func (s *Server) handleListDescriptors(ctx context.Context, req *mcp.CallToolRequest, params ListDescriptorsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_descriptors").Info("Tool invoked")

	level, err := parseScope(params.Level, params.Grade)
	if err != nil {
		return s.createErrorResult("Invalid parameters", err), nil, nil
	}
	if err := s.ensureCatalog(ctx); err != nil {
		return s.createErrorResult("Curriculum catalog is unavailable", err), nil, nil
	}

	result := DescriptorsResult{
		Level:       level,
		Grade:       params.Grade,
		Descriptors: s.catalog.GetDescriptorsForContents(params.Selections, level, params.Grade),
	}
	summary := fmt.Sprintf("%d descriptors for %d selected contents", len(result.Descriptors), len(params.Selections))
	return jsonResult(summary, result), result, nil
}

func (s *Server) handleReloadCatalog(ctx context.Context, req *mcp.CallToolRequest, _ StatusParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "reload_catalog").Info("Tool invoked")

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	if err := s.catalog.Reload(ctx); err != nil {
		return s.createErrorResult("Catalog reload failed", err), nil, nil
	}
	state := s.catalog.State()
	return jsonResult(fmt.Sprintf("Catalog reloaded (generation %d)", state.Generation), state), state, nil
}

func (s *Server) handleSaveLessonPlan(ctx context.Context, req *mcp.CallToolRequest, params SaveLessonPlanParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "save_lesson_plan").Info("Tool invoked")

	areas := make([]domain.SubjectArea, 0, len(params.SubjectAreas))
	for _, a := range params.SubjectAreas {
		areas = append(areas, domain.SubjectArea(a))
	}
	plan := &lessonplan.LessonPlan{
		Title:                params.Title,
		Level:                domain.EducationLevel(params.Level),
		Grade:                params.Grade,
		SubjectAreas:         areas,
		EjeArticulador:       params.EjeArticulador,
		Contents:             params.Contents,
		Descriptors:          params.Descriptors,
		Duration:             params.Duration,
		Objectives:           params.Objectives,
		Activities:           params.Activities,
		Materials:            params.Materials,
		Evaluation:           params.Evaluation,
		InclusiveAdaptations: params.InclusiveAdaptations,
		Notes:                params.Notes,
	}

	if err := s.plans.Create(ctx, plan); err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			return s.createErrorResult("Invalid lesson plan", err), nil, nil
		}
		return s.createErrorResult("Failed to save lesson plan", err), nil, nil
	}

	return jsonResult(fmt.Sprintf("Saved lesson plan %s (%s)", plan.ID, plan.GradeLabel()), plan), plan, nil
}

func (s *Server) handleSearchLessonPlans(ctx context.Context, req *mcp.CallToolRequest, params SearchLessonPlansParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "search_lesson_plans").Info("Tool invoked")

	filter := lessonplan.Filter{
		Search:      params.Search,
		Grade:       params.Grade,
		SubjectArea: domain.SubjectArea(params.SubjectArea),
	}
	if params.Level != "" {
		level, err := domain.ParseEducationLevel(params.Level)
		if err != nil {
			return s.createErrorResult("Invalid parameters", err), nil, nil
		}
		filter.Level = level
	}

	limit := params.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	plans, err := s.plans.List(ctx, filter, limit, 0)
	if err != nil {
		return s.createErrorResult("Failed to search lesson plans", err), nil, nil
	}

	titles := make([]string, 0, len(plans))
	for _, p := range plans {
		titles = append(titles, fmt.Sprintf("%s (%s)", p.Title, p.GradeLabel()))
	}
	summary := fmt.Sprintf("%d lesson plans found", len(plans))
	if len(titles) > 0 {
		summary += ": " + strings.Join(titles, "; ")
	}
	result := SearchResult{Count: len(plans), LessonPlans: plans}
	return jsonResult(summary, result), result, nil
}

// ensureCatalog waits for the first load when no catalog is held yet.
func (s *Server) ensureCatalog(ctx context.Context) error {
	if _, err := s.catalog.Catalog(); err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	if err := s.catalog.Load(ctx); err != nil {
		return err
	}
	if _, err := s.catalog.Catalog(); err != nil {
		return fmt.Errorf("%w: %s", catalog.ErrNotReady, s.catalog.State().State)
	}
	return nil
}

func parseScope(rawLevel string, grade int) (domain.EducationLevel, error) {
	level, err := domain.ParseEducationLevel(rawLevel)
	if err != nil {
		return "", err
	}
	if !level.ValidGrade(grade) {
		return "", fmt.Errorf("%w: %s has grades 1 to %d", domain.ErrInvalidGrade, level, level.GradeCount())
	}
	return level, nil
}

func gradeLabel(level domain.EducationLevel, grade int) string {
	return domain.LevelGrade{Level: level, Grade: grade}.String()
}

// jsonResult renders a summary line followed by the indented JSON result.
func jsonResult(summary string, v interface{}) *mcp.CallToolResult {
	text := summary
	if data, err := json.MarshalIndent(v, "", "  "); err == nil {
		text += "\n\n" + string(data)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
