package mcp

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-catalog-server/internal/catalog"
	"github.com/curriculum-catalog-server/internal/domain"
	"github.com/curriculum-catalog-server/internal/lessonplan"
	"github.com/curriculum-catalog-server/internal/logging"
)

const testPayload = `{
	"4": {
		"Lenguajes": {
			"contents": ["Lee cuentos", "Escribe cartas"],
			"pda": ["Identifica personajes. Resume la trama", "(1) Usa saludos (2) Firma la carta"]
		}
	}
}`

func newTestServer(t *testing.T, fetch catalog.FetcherFunc) (*Server, *catalog.Store) {
	t.Helper()
	logger := logging.Discard()

	store, err := catalog.NewStore(fetch, logger, catalog.Options{Observer: catalog.NopObserver{}})
	require.NoError(t, err)

	plans, err := lessonplan.NewSQLiteStore(filepath.Join(t.TempDir(), "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { plans.Close() })

	server, err := NewServer(domain.MCPConfig{}, store, plans, logger)
	require.NoError(t, err)
	return server, store
}

func okFetcher(context.Context) ([]byte, error) {
	return []byte(testPayload), nil
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestNewServer(t *testing.T) {
	server, _ := newTestServer(t, okFetcher)
	assert.NotNil(t, server.mcpServer)
	assert.NotNil(t, server.logger)

	_, err := NewServer(domain.MCPConfig{}, nil, nil, logging.Discard())
	assert.Error(t, err)
}

func TestListContents_LoadsCatalogOnDemand(t *testing.T) {
	server, store := newTestServer(t, okFetcher)
	assert.Equal(t, catalog.StateIdle, store.State().State)

	res, out, err := server.handleListContents(context.Background(), &mcp.CallToolRequest{}, ListContentsParams{
		Level: "primaria",
		Grade: 1,
		Areas: []string{"lenguajes"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))

	result, ok := out.(ContentsResult)
	require.True(t, ok)
	assert.Equal(t, domain.Primaria, result.Level)
	assert.Equal(t, []domain.ContentSelection{
		{Content: "Lee cuentos", Area: domain.AreaLenguajes},
		{Content: "Escribe cartas", Area: domain.AreaLenguajes},
	}, result.Contents)
	assert.Contains(t, resultText(t, res), "2 contents for Primaria 1°")
	assert.Equal(t, catalog.StateReady, store.State().State)
}

func TestListContents_InvalidParams(t *testing.T) {
	server, store := newTestServer(t, okFetcher)

	tests := []struct {
		name   string
		params ListContentsParams
	}{
		{"unknown level", ListContentsParams{Level: "Bachillerato", Grade: 1, Areas: []string{"Lenguajes"}}},
		{"grade out of range", ListContentsParams{Level: "Secundaria", Grade: 4, Areas: []string{"Lenguajes"}}},
		{"no areas", ListContentsParams{Level: "Primaria", Grade: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, out, err := server.handleListContents(context.Background(), &mcp.CallToolRequest{}, tt.params)
			require.NoError(t, err)
			assert.True(t, res.IsError)
			assert.Nil(t, out)
		})
	}
	assert.Equal(t, catalog.StateIdle, store.State().State, "invalid calls must not load the catalog")
}

func TestListDescriptors(t *testing.T) {
	server, _ := newTestServer(t, okFetcher)

	res, out, err := server.handleListDescriptors(context.Background(), &mcp.CallToolRequest{}, ListDescriptorsParams{
		Level: "Primaria",
		Grade: 1,
		Selections: []domain.ContentSelection{
			{Content: "Escribe cartas", Area: "Lenguajes"},
			{Content: "Lee cuentos", Area: "LENGUAJES"},
			{Content: "Lee cuentos", Area: domain.AreaSaberes},
		},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)

	result := out.(DescriptorsResult)
	assert.Equal(t, []string{"Firma la carta", "Identifica personajes.", "Resume la trama", "Usa saludos"}, result.Descriptors)
}

func TestListSubjectAreas(t *testing.T) {
	server, _ := newTestServer(t, okFetcher)

	res, out, err := server.handleListSubjectAreas(context.Background(), &mcp.CallToolRequest{}, ScopeParams{Level: "Primaria", Grade: 1})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, []domain.SubjectArea{domain.AreaLenguajes}, out.(SubjectAreasResult).SubjectAreas)

	res, out, err = server.handleListSubjectAreas(context.Background(), &mcp.CallToolRequest{}, ScopeParams{Level: "Primaria", Grade: 2})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Empty(t, out.(SubjectAreasResult).SubjectAreas)
}

func TestToolsReportUnavailableCatalog(t *testing.T) {
	server, store := newTestServer(t, func(context.Context) ([]byte, error) {
		return nil, errors.New("upstream down")
	})

	res, out, err := server.handleListSubjectAreas(context.Background(), &mcp.CallToolRequest{}, ScopeParams{Level: "Primaria", Grade: 1})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Nil(t, out)
	assert.Contains(t, resultText(t, res), "upstream down")
	assert.Equal(t, catalog.StateFailed, store.State().State)

	res, _, err = server.handleCatalogStatus(context.Background(), &mcp.CallToolRequest{}, StatusParams{})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Catalog is failed")
}

func TestReloadCatalog(t *testing.T) {
	server, store := newTestServer(t, okFetcher)
	require.NoError(t, store.Load(context.Background()))

	res, out, err := server.handleReloadCatalog(context.Background(), &mcp.CallToolRequest{}, StatusParams{})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, uint64(2), out.(catalog.StateSnapshot).Generation)
}

func TestSaveAndSearchLessonPlans(t *testing.T) {
	server, _ := newTestServer(t, okFetcher)
	ctx := context.Background()

	res, out, err := server.handleSaveLessonPlan(ctx, &mcp.CallToolRequest{}, SaveLessonPlanParams{
		Title:        "Cuentos de mi comunidad",
		Level:        "Primaria",
		Grade:        1,
		SubjectAreas: []string{"Lenguajes"},
		Contents:     []domain.ContentSelection{{Content: "Lee cuentos", Area: "Lenguajes"}},
		Descriptors:  []string{"Identifica personajes."},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, resultText(t, res))
	saved := out.(*lessonplan.LessonPlan)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, []domain.SubjectArea{domain.AreaLenguajes}, saved.SubjectAreas)

	res, _, err = server.handleSaveLessonPlan(ctx, &mcp.CallToolRequest{}, SaveLessonPlanParams{Title: "Sin nivel", Grade: 1})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Invalid lesson plan")

	res, out, err = server.handleSearchLessonPlans(ctx, &mcp.CallToolRequest{}, SearchLessonPlansParams{Search: "cuentos", Level: "primaria"})
	require.NoError(t, err)
	require.False(t, res.IsError)
	found := out.(SearchResult)
	require.Equal(t, 1, found.Count)
	assert.Equal(t, saved.ID, found.LessonPlans[0].ID)

	res, _, err = server.handleSearchLessonPlans(ctx, &mcp.CallToolRequest{}, SearchLessonPlansParams{Level: "Universidad"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
