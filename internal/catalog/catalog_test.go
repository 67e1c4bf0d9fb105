package catalog

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curriculum-catalog-server/internal/domain"
)

func lessonCatalog() *Catalog {
	return New(OffsetStrategy{}, map[domain.GradeKey]map[domain.SubjectArea]AreaIndex{
		"4": {
			domain.AreaLenguajes: {
				Contents: []string{"Lee cuentos", "Escribe textos"},
				ByContent: map[string][]string{
					"Lee cuentos":    {"Resume la trama", "Identifica personajes"},
					"Escribe textos": {},
				},
			},
			domain.AreaSaberes: {
				Contents: []string{"Lee cuentos", "Cuenta objetos"},
				ByContent: map[string][]string{
					"Lee cuentos":    {"Relaciona números", "Identifica personajes"},
					"Cuenta objetos": {"Agrupa colecciones"},
				},
			},
		},
	})
}

func TestContentsForAreas(t *testing.T) {
	cat := lessonCatalog()

	got := cat.ContentsForAreas([]domain.SubjectArea{domain.AreaLenguajes}, domain.Primaria, 1)
	assert.Equal(t, []domain.ContentSelection{
		{Content: "Lee cuentos", Area: domain.AreaLenguajes},
		{Content: "Escribe textos", Area: domain.AreaLenguajes},
	}, got)

	// caller order of areas is kept and the shared text appears once per area
	got = cat.ContentsForAreas([]domain.SubjectArea{"saberes y pensamiento científico", domain.AreaLenguajes}, domain.Primaria, 1)
	assert.Equal(t, []domain.ContentSelection{
		{Content: "Lee cuentos", Area: domain.AreaSaberes},
		{Content: "Cuenta objetos", Area: domain.AreaSaberes},
		{Content: "Lee cuentos", Area: domain.AreaLenguajes},
		{Content: "Escribe textos", Area: domain.AreaLenguajes},
	}, got)
}

func TestDescriptorsForContents(t *testing.T) {
	cat := lessonCatalog()

	got := cat.DescriptorsForContents([]domain.ContentSelection{{Content: "Lee cuentos", Area: domain.AreaLenguajes}}, domain.Primaria, 1)
	assert.Equal(t, []string{"Identifica personajes", "Resume la trama"}, got)

	got = cat.DescriptorsForContents([]domain.ContentSelection{{Content: "Escribe textos", Area: domain.AreaLenguajes}}, domain.Primaria, 1)
	assert.Equal(t, []string{}, got)

	// content identity is scoped to the area
	got = cat.DescriptorsForContents([]domain.ContentSelection{{Content: "Cuenta objetos", Area: domain.AreaLenguajes}}, domain.Primaria, 1)
	assert.Equal(t, []string{}, got)
}

func TestDescriptorsForContentsIsSortedAndUnique(t *testing.T) {
	cat := lessonCatalog()
	selections := []domain.ContentSelection{
		{Content: "Cuenta objetos", Area: domain.AreaSaberes},
		{Content: "Lee cuentos", Area: domain.AreaSaberes},
		{Content: "Lee cuentos", Area: domain.AreaLenguajes},
		{Content: "Lee cuentos", Area: domain.AreaLenguajes},
	}

	got := cat.DescriptorsForContents(selections, domain.Primaria, 1)
	assert.True(t, sort.StringsAreSorted(got))
	assert.Equal(t, []string{"Agrupa colecciones", "Identifica personajes", "Relaciona números", "Resume la trama"}, got)
}

func TestQueriesOnAbsentKeysAreEmpty(t *testing.T) {
	cat := lessonCatalog()

	assert.Equal(t, []domain.ContentSelection{}, cat.ContentsForAreas([]domain.SubjectArea{domain.AreaLenguajes}, domain.Secundaria, 3))
	assert.Equal(t, []domain.ContentSelection{}, cat.ContentsForAreas([]domain.SubjectArea{"ARTES"}, domain.Primaria, 1))
	assert.Equal(t, []domain.ContentSelection{}, cat.ContentsForAreas([]domain.SubjectArea{domain.AreaLenguajes}, domain.Primaria, 9))
	assert.Equal(t, []string{}, cat.DescriptorsForContents([]domain.ContentSelection{{Content: "Nada", Area: domain.AreaLenguajes}}, domain.Primaria, 1))
	assert.Equal(t, []domain.SubjectArea{}, cat.SubjectAreas(domain.Preescolar, 7))
}

func TestCatalogMetadata(t *testing.T) {
	cat := lessonCatalog()

	assert.Equal(t, []domain.SubjectArea{domain.AreaLenguajes, domain.AreaSaberes}, cat.SubjectAreas(domain.Primaria, 1))
	assert.Equal(t, Stats{GradeKeys: 1, Areas: 2, Contents: 4, Descriptors: 5}, cat.Stats())

	lg, err := cat.Locate("4")
	assert.NoError(t, err)
	assert.Equal(t, domain.LevelGrade{Level: domain.Primaria, Grade: 1}, lg)
}

func TestNewDropsUnlistedDescriptorKeys(t *testing.T) {
	cat := New(OffsetStrategy{}, map[domain.GradeKey]map[domain.SubjectArea]AreaIndex{
		"1": {"lenguajes": {Contents: []string{"a"}, ByContent: map[string][]string{"a": {"x", "x"}, "b": {"y"}}}},
	})

	idx, ok := cat.Area("1", domain.AreaLenguajes)
	assert.True(t, ok)
	assert.Equal(t, map[string][]string{"a": {"x"}}, idx.ByContent)
}
