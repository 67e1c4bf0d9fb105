package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
)

const maxListLimit = 200

func (s *Server) handleCreatePlan(c *gin.Context) {
	var plan lessonplan.LessonPlan
	if err := c.ShouldBindJSON(&plan); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err.Error())
		return
	}
	// ids and timestamps are assigned by the store
	plan.ID = ""
	plan.CreatedAt = time.Time{}

	if err := s.plans.Create(c.Request.Context(), &plan); err != nil {
		s.storeError(c, err)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"plan_id": plan.ID,
		"grade":   plan.GradeLabel(),
	}).Info("Lesson plan created")
	c.JSON(http.StatusCreated, plan)
}

func (s *Server) handleListPlans(c *gin.Context) {
	filter := lessonplan.Filter{
		Search:      c.Query("search"),
		SubjectArea: domain.SubjectArea(c.Query("subject_area")),
	}
	if raw := c.Query("level"); raw != "" {
		level, err := domain.ParseEducationLevel(raw)
		if err != nil {
			respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid education level", err.Error())
			return
		}
		filter.Level = level
	}

	var err error
	if filter.Grade, err = intQuery(c, "grade", 0); err != nil {
		return
	}
	limit, err := intQuery(c, "limit", 50)
	if err != nil {
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	plans, err := s.plans.List(c.Request.Context(), filter, limit, offset)
	if err != nil {
		s.storeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"lesson_plans": plans,
		"limit":        limit,
		"offset":       offset,
	})
}

func (s *Server) handleGetPlan(c *gin.Context) {
	plan, err := s.plans.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleUpdatePlan(c *gin.Context) {
	var patch lessonplan.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err.Error())
		return
	}

	plan, err := s.plans.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (s *Server) handleDeletePlan(c *gin.Context) {
	if err := s.plans.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePlanStats(c *gin.Context) {
	stats, err := s.plans.Stats(c.Request.Context())
	if err != nil {
		s.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleExportPlans(c *gin.Context) {
	c.Header("Content-Type", "application/json")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="lesson-plans-%s.json"`, time.Now().UTC().Format("20060102")))
	if err := s.plans.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		s.logger.WithError(err).Error("Lesson plan export failed")
		_ = c.Error(err)
	}
}

func (s *Server) handleImportPlans(c *gin.Context) {
	imported, skipped, err := s.plans.ImportJSON(c.Request.Context(), c.Request.Body)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Import failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "skipped": skipped})
}

// storeError maps lesson plan store errors onto API errors.
func (s *Server) storeError(c *gin.Context, err error) {
	var validationErr *domain.ValidationError
	switch {
	case errors.Is(err, lessonplan.ErrNotFound):
		respondError(c, http.StatusNotFound, domain.ErrNotFoundCode, "Lesson plan not found", c.Param("id"))
	case errors.As(err, &validationErr):
		respondError(c, http.StatusBadRequest, domain.ErrValidation, validationErr.Message, validationErr.Field)
	default:
		s.logger.WithError(err).Error("Lesson plan storage error")
		respondError(c, http.StatusInternalServerError, domain.ErrStorage, "Lesson plan storage error", "")
	}
}

// intQuery parses an optional integer query parameter, answering 400 on
// malformed input.
func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid "+name, raw)
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return n, nil
}
