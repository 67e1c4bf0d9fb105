package lessonplan

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-catalog-server/internal/domain"
)

var _ Store = (*SQLiteStore)(nil)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(tmpDir, "lesson-plans.db"))
	require.NoError(t, err)
	return store
}

func samplePlan(title string, level domain.EducationLevel, grade int, areas ...domain.SubjectArea) *LessonPlan {
	return &LessonPlan{
		Title:        title,
		Level:        level,
		Grade:        grade,
		SubjectAreas: areas,
		Contents: []domain.ContentSelection{
			{Content: "Lectura de cuentos", Area: domain.AreaLenguajes},
		},
		Descriptors: []string{"Identifica personajes."},
		Duration:    "2 sesiones",
		Objectives:  "Reconocer la estructura de un cuento",
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "lessonplan-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)

	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
	assert.Equal(t, dbPath, store.Path())
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	plan := samplePlan("Cuentos de mi comunidad", domain.Primaria, 3, "lenguajes", "De lo Humano y lo Comunitario")
	plan.EjeArticulador = "Inclusión"
	plan.Contents[0].Area = "Lenguajes"

	require.NoError(t, store.Create(ctx, plan))
	assert.NotEmpty(t, plan.ID)
	assert.False(t, plan.CreatedAt.IsZero())

	got, err := store.Get(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cuentos de mi comunidad", got.Title)
	assert.Equal(t, domain.Primaria, got.Level)
	assert.Equal(t, 3, got.Grade)
	assert.Equal(t, []domain.SubjectArea{domain.AreaLenguajes, domain.AreaHumanoComunitario}, got.SubjectAreas)
	assert.Equal(t, []domain.ContentSelection{{Content: "Lectura de cuentos", Area: domain.AreaLenguajes}}, got.Contents)
	assert.Equal(t, []string{"Identifica personajes."}, got.Descriptors)
	assert.Equal(t, "Inclusión", got.EjeArticulador)
	assert.Equal(t, "Primaria 3°", got.GradeLabel())
	assert.WithinDuration(t, plan.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLiteStore_CreateRejectsInvalidPlans(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	tests := []struct {
		name  string
		plan  *LessonPlan
		field string
	}{
		{"missing title", samplePlan("  ", domain.Primaria, 1), "title"},
		{"unknown level", samplePlan("Plan", "Bachillerato", 1), "level"},
		{"grade out of range", samplePlan("Plan", domain.Preescolar, 4), "grade"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.Create(ctx, tt.plan)
			var validationErr *domain.ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestSQLiteStore_Get_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	got, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, got)
}

func TestSQLiteStore_Update(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	plan := samplePlan("Borrador", domain.Secundaria, 2, domain.AreaSaberes)
	require.NoError(t, store.Create(ctx, plan))

	title := "Versión final"
	descriptors := []string{"Formula hipótesis.", "Registra observaciones."}
	updated, err := store.Update(ctx, plan.ID, Patch{Title: &title, Descriptors: &descriptors})
	require.NoError(t, err)
	assert.Equal(t, "Versión final", updated.Title)
	assert.Equal(t, descriptors, updated.Descriptors)
	assert.Equal(t, "Reconocer la estructura de un cuento", updated.Objectives, "unpatched fields are kept")

	got, err := store.Get(ctx, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "Versión final", got.Title)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	badGrade := 9
	_, err = store.Update(ctx, plan.ID, Patch{Grade: &badGrade})
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)

	_, err = store.Update(ctx, "missing", Patch{Title: &title})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ListFilters(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, samplePlan("Cuentos y leyendas", domain.Primaria, 3, domain.AreaLenguajes)))
	require.NoError(t, store.Create(ctx, samplePlan("Fracciones en la cocina", domain.Primaria, 3, domain.AreaSaberes)))
	require.NoError(t, store.Create(ctx, samplePlan("Ecosistemas locales", domain.Secundaria, 1, domain.AreaSaberes, domain.AreaEticaNaturaleza)))

	tests := []struct {
		name   string
		filter Filter
		titles []string
	}{
		{"no filter", Filter{}, []string{"Cuentos y leyendas", "Ecosistemas locales", "Fracciones en la cocina"}},
		{"search title case-insensitive", Filter{Search: "CUENTOS"}, []string{"Cuentos y leyendas"}},
		{"search subject area", Filter{Search: "lenguajes"}, []string{"Cuentos y leyendas"}},
		{"level and grade", Filter{Level: domain.Primaria, Grade: 3}, []string{"Cuentos y leyendas", "Fracciones en la cocina"}},
		{"subject area normalized", Filter{SubjectArea: "saberes y pensamiento científico"}, []string{"Ecosistemas locales", "Fracciones en la cocina"}},
		{"no match", Filter{Search: "astronomía"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plans, err := store.List(ctx, tt.filter, 10, 0)
			require.NoError(t, err)
			var titles []string
			for _, p := range plans {
				titles = append(titles, p.Title)
			}
			assert.ElementsMatch(t, tt.titles, titles)
		})
	}
}

func TestSQLiteStore_List_Pagination(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, store.Create(ctx, samplePlan("Plan", domain.Primaria, i, domain.AreaLenguajes)))
	}

	page1, err := store.List(ctx, Filter{}, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := store.List(ctx, Filter{}, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	all, err := store.List(ctx, Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5, "zero limit falls back to the default page size")
}

func TestSQLiteStore_Stats(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, samplePlan("A", domain.Primaria, 3, domain.AreaLenguajes)))
	require.NoError(t, store.Create(ctx, samplePlan("B", domain.Primaria, 3, domain.AreaLenguajes, domain.AreaSaberes)))
	require.NoError(t, store.Create(ctx, samplePlan("C", domain.Preescolar, 1)))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, map[string]int64{"Primaria 3°": 2, "Preescolar 1°": 1}, stats.ByGrade)
	assert.Equal(t, map[string]int64{string(domain.AreaLenguajes): 2, string(domain.AreaSaberes): 1}, stats.BySubjectArea)
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()
	ctx := context.Background()

	plan := samplePlan("Temporal", domain.Primaria, 1)
	require.NoError(t, store.Create(ctx, plan))

	require.NoError(t, store.Delete(ctx, plan.ID))
	_, err := store.Get(ctx, plan.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, plan.ID), ErrNotFound)
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	source := createTestStore(t)
	defer source.Close()
	ctx := context.Background()

	require.NoError(t, source.Create(ctx, samplePlan("Uno", domain.Primaria, 1, domain.AreaLenguajes)))
	require.NoError(t, source.Create(ctx, samplePlan("Dos", domain.Primaria, 2, domain.AreaSaberes)))

	var buf bytes.Buffer
	require.NoError(t, source.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"count": 2`)
	exported := buf.Bytes()

	target := createTestStore(t)
	defer target.Close()

	imported, skipped, err := target.ImportJSON(ctx, bytes.NewReader(exported))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	imported, skipped, err = target.ImportJSON(ctx, bytes.NewReader(exported))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped, "existing ids are skipped")

	_, _, err = target.ImportJSON(ctx, bytes.NewReader([]byte("{broken")))
	assert.Error(t, err)
}
