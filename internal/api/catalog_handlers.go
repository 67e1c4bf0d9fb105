package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
)

const (
	reloadTimeout = 90 * time.Second
	wsWriteWait   = 10 * time.Second
	wsPingPeriod  = 30 * time.Second
)

// DescriptorsRequest is the body of POST /api/v1/catalog/descriptors.
type DescriptorsRequest struct {
	Level      string                    `json:"level"`
	Grade      int                       `json:"grade"`
	Selections []domain.ContentSelection `json:"selections"`
}

// LevelInfo describes one education level and its grades.
type LevelInfo struct {
	Level  domain.EducationLevel `json:"level"`
	Grades []int                 `json:"grades"`
}

func (s *Server) handleCatalogState(c *gin.Context) {
	c.JSON(http.StatusOK, s.catalog.State())
}

// handleCatalogReload refetches the catalog and waits for the outcome. A
// failed reload keeps a previously held catalog, which the response reports.
// With invalidate=true the cached payload is dropped first.
func (s *Server) handleCatalogReload(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), reloadTimeout)
	defer cancel()

	if invalidate, _ := strconv.ParseBool(c.Query("invalidate")); invalidate && s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate cached catalog payload")
		}
	}

	if err := s.catalog.Reload(ctx); err != nil {
		state := s.catalog.State()
		code := domain.ErrUpstream
		var malformed *domain.MalformedCatalogError
		if errors.As(err, &malformed) {
			code = domain.ErrCatalogUnavailable
		}
		s.logger.WithError(err).WithField("state", state.State).Warn("Catalog reload failed")
		respondError(c, http.StatusBadGateway, code, "Catalog reload failed", err.Error())
		return
	}

	c.JSON(http.StatusOK, s.catalog.State())
}

func (s *Server) handleLevels(c *gin.Context) {
	levels := make([]LevelInfo, 0, len(domain.Levels))
	for _, level := range domain.Levels {
		levels = append(levels, LevelInfo{Level: level, Grades: level.Grades()})
	}
	c.JSON(http.StatusOK, gin.H{
		"levels":             levels,
		"subject_areas":      domain.KnownSubjectAreas,
		"ejes_articuladores": domain.EjesArticuladores,
	})
}

func (s *Server) handleSubjectAreas(c *gin.Context) {
	level, grade, ok := parseScope(c, c.Query("level"), c.Query("grade"))
	if !ok || !s.requireCatalog(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject_areas": s.catalog.SubjectAreas(level, grade)})
}

func (s *Server) handleContents(c *gin.Context) {
	level, grade, ok := parseScope(c, c.Query("level"), c.Query("grade"))
	if !ok || !s.requireCatalog(c) {
		return
	}

	raw := c.QueryArray("area")
	areas := make([]domain.SubjectArea, 0, len(raw))
	for _, a := range raw {
		areas = append(areas, domain.SubjectArea(a))
	}

	c.JSON(http.StatusOK, gin.H{"contents": s.catalog.GetContentsForAreas(areas, level, grade)})
}

func (s *Server) handleDescriptors(c *gin.Context) {
	var req DescriptorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid request body", err.Error())
		return
	}

	level, grade, ok := parseScope(c, req.Level, strconv.Itoa(req.Grade))
	if !ok || !s.requireCatalog(c) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"descriptors": s.catalog.GetDescriptorsForContents(req.Selections, level, grade)})
}

// requireCatalog writes the 503 response for a store without a catalog.
// Failed stores report CATALOG_UNAVAILABLE; Idle and Loading stores report
// CATALOG_LOADING with Retry-After and, when Idle, start a load.
func (s *Server) requireCatalog(c *gin.Context) bool {
	if _, err := s.catalog.Catalog(); err == nil {
		return true
	}

	state := s.catalog.State()
	if state.State == catalog.StateFailed {
		respondError(c, http.StatusServiceUnavailable, domain.ErrCatalogUnavailable,
			"Curriculum catalog is unavailable", state.Error)
		return false
	}

	s.catalog.Trigger()
	c.Header("Retry-After", retryAfterSeconds)
	respondError(c, http.StatusServiceUnavailable, domain.ErrCatalogLoading,
		"Curriculum catalog is loading", string(state.State))
	return false
}

// parseScope validates a level and level-relative grade.
func parseScope(c *gin.Context, rawLevel, rawGrade string) (domain.EducationLevel, int, bool) {
	level, err := domain.ParseEducationLevel(rawLevel)
	if err != nil {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid education level", err.Error())
		return "", 0, false
	}
	grade, err := domain.ParseGrade(rawGrade)
	if err != nil || !level.ValidGrade(grade) {
		respondError(c, http.StatusBadRequest, domain.ErrInvalidInput, "Invalid grade",
			"grade must be between 1 and "+strconv.Itoa(level.GradeCount())+" for "+string(level))
		return "", 0, false
	}
	return level, grade, true
}

// handleWatch streams state snapshots over a websocket: the current state
// first, then every change until the client disconnects.
func (s *Server) handleWatch(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.catalog.Subscribe()
	defer unsubscribe()

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	if err := write(s.catalog.State()); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case state := <-updates:
			if err := write(state); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
