// Package mcp exposes the curriculum catalog and lesson plan storage as
// Model Context Protocol tools over stdio.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
)

const (
	defaultServerName    = "curriculum-catalog-server"
	defaultServerVersion = "v1.0.0"

	// loadTimeout bounds how long a tool call waits for the first catalog load.
	loadTimeout = 60 * time.Second
)

// Server represents the curriculum catalog MCP server
type Server struct {
	catalog   *catalog.Store
	plans     lessonplan.Store
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance. plans may be nil, in which
// case the lesson plan tools are not registered.
func NewServer(cfg domain.MCPConfig, store *catalog.Store, plans lessonplan.Store, logger *logrus.Logger) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}

	name := cfg.ServerName
	if name == "" {
		name = defaultServerName
	}
	version := cfg.ServerVersion
	if version == "" {
		version = defaultServerVersion
	}

	server := &Server{
		catalog:   store,
		plans:     plans,
		mcpServer: mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		logger:    logger,
	}
	server.registerTools()

	return server, nil
}

// Start runs the MCP server on stdio until ctx is done or the client disconnects.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting curriculum catalog MCP server...")

	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "catalog_status",
		Description: "Report the curriculum catalog load state, source and statistics",
	}, s.handleCatalogStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_subject_areas",
		Description: "List the subject areas (campos formativos) available for an education level and grade",
	}, s.handleListSubjectAreas)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_contents",
		Description: "List the curricular contents of the given subject areas for an education level and grade",
	}, s.handleListContents)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_descriptors",
		Description: "List the learning descriptors (PDA) of selected contents, sorted and deduplicated",
	}, s.handleListDescriptors)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "reload_catalog",
		Description: "Refetch the curriculum catalog from its source",
	}, s.handleReloadCatalog)

	count := 5
	if s.plans != nil {
		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "save_lesson_plan",
			Description: "Store a lesson plan built from catalog selections",
		}, s.handleSaveLessonPlan)

		mcp.AddTool(s.mcpServer, &mcp.Tool{
			Name:        "search_lesson_plans",
			Description: "Search stored lesson plans by text, level, grade or subject area",
		}, s.handleSearchLessonPlans)
		count += 2
	}

	s.logger.WithField("tool_count", count).Info("Registered MCP tools")
}
