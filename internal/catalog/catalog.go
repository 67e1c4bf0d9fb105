// Package catalog ingests the external curriculum dataset and answers the
// cascading selection queries built on it: contents by subject area, then
// learning descriptors (PDA) by content.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/curriculum-catalog-server/internal/domain"
)

// AreaIndex holds the contents of one subject area under one grade key.
// Contents keeps source order and duplicates; ByContent has exactly one entry
// per distinct content with descriptors deduplicated in first-seen order.
type AreaIndex struct {
	Contents  []string            `json:"contents"`
	ByContent map[string][]string `json:"by_content"`
}

// ErrLevelMismatch is returned when a grade key exists but belongs to
// another education level.
var ErrLevelMismatch = errors.New("grade key belongs to another education level")

// Catalog is the canonical, immutable index built from one payload.
type Catalog struct {
	grades   map[domain.GradeKey]map[domain.SubjectArea]*AreaIndex
	strategy GradeKeyStrategy
	shape    PayloadShape
	// located is set for identity keyed catalogs, where one key could
	// belong to several levels.
	located map[domain.GradeKey]domain.LevelGrade
}

// Stats counts the entries of a catalog.
type Stats struct {
	GradeKeys   int `json:"grade_keys"`
	Areas       int `json:"areas"`
	Contents    int `json:"contents"`
	Descriptors int `json:"descriptors"`
}

// Strategy returns the grade key strategy queries are resolved with.
func (c *Catalog) Strategy() GradeKeyStrategy { return c.strategy }

// Shape returns the payload shape the catalog was built from.
func (c *Catalog) Shape() PayloadShape { return c.shape }

// GradeKeys returns every grade key, numeric keys first in numeric order.
func (c *Catalog) GradeKeys() []domain.GradeKey {
	keys := make([]domain.GradeKey, 0, len(c.grades))
	for k := range c.grades {
		keys = append(keys, k)
	}
	sortGradeKeys(keys)
	return keys
}

// Areas returns the subject areas stored under key, sorted.
func (c *Catalog) Areas(key domain.GradeKey) []domain.SubjectArea {
	areas := make([]domain.SubjectArea, 0, len(c.grades[key]))
	for a := range c.grades[key] {
		areas = append(areas, a)
	}
	sort.Slice(areas, func(i, j int) bool { return areas[i] < areas[j] })
	return areas
}

// Area returns the index for one (key, area) pair.
func (c *Catalog) Area(key domain.GradeKey, area domain.SubjectArea) (*AreaIndex, bool) {
	idx, ok := c.grades[key][domain.NormalizeSubjectArea(string(area))]
	return idx, ok
}

// Stats returns entry counts. Descriptors are counted once per content.
func (c *Catalog) Stats() Stats {
	var s Stats
	s.GradeKeys = len(c.grades)
	for _, areas := range c.grades {
		s.Areas += len(areas)
		for _, idx := range areas {
			s.Contents += len(idx.Contents)
			for _, d := range idx.ByContent {
				s.Descriptors += len(d)
			}
		}
	}
	return s
}

// Resolve maps a level-relative grade to this catalog's grade key. For an
// identity keyed catalog the key must also have been located at level.
func (c *Catalog) Resolve(level domain.EducationLevel, grade int) (domain.GradeKey, error) {
	key, err := c.strategy.ToKey(level, grade)
	if err != nil || c.located == nil {
		return key, err
	}
	if lg, ok := c.located[key]; !ok || lg.Level != level {
		return "", fmt.Errorf("%w: %s %d", ErrLevelMismatch, level, grade)
	}
	return key, nil
}

// Locate maps a grade key back to its level-relative grade.
func (c *Catalog) Locate(key domain.GradeKey) (domain.LevelGrade, error) {
	if lg, ok := c.located[key]; ok {
		return lg, nil
	}
	return c.strategy.FromKey(key, c.Areas(key))
}

// SubjectAreas returns the areas available for a level-relative grade.
func (c *Catalog) SubjectAreas(level domain.EducationLevel, grade int) []domain.SubjectArea {
	key, err := c.Resolve(level, grade)
	if err != nil {
		return []domain.SubjectArea{}
	}
	return c.Areas(key)
}

// ContentsForAreas lists every content of each requested area, in the order
// the areas were given and the contents appear in the catalog, tagged with the
// area they came from. The same text under two areas yields two selections.
func (c *Catalog) ContentsForAreas(areas []domain.SubjectArea, level domain.EducationLevel, grade int) []domain.ContentSelection {
	out := []domain.ContentSelection{}
	key, err := c.Resolve(level, grade)
	if err != nil {
		return out
	}
	byArea := c.grades[key]
	for _, raw := range areas {
		area := domain.NormalizeSubjectArea(string(raw))
		idx, ok := byArea[area]
		if !ok {
			continue
		}
		for _, content := range idx.Contents {
			out = append(out, domain.ContentSelection{Content: content, Area: area})
		}
	}
	return out
}

// DescriptorsForContents unions the descriptors of every selection, looked up
// under the selection's own area, and returns them sorted without duplicates.
func (c *Catalog) DescriptorsForContents(selections []domain.ContentSelection, level domain.EducationLevel, grade int) []string {
	out := []string{}
	key, err := c.Resolve(level, grade)
	if err != nil {
		return out
	}
	byArea := c.grades[key]
	seen := make(map[string]struct{})
	for _, sel := range selections {
		idx, ok := byArea[domain.NormalizeSubjectArea(string(sel.Area))]
		if !ok {
			continue
		}
		for _, d := range idx.ByContent[sel.Content] {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}

func sortGradeKeys(keys []domain.GradeKey) {
	sort.Slice(keys, func(i, j int) bool {
		a, aok := keys[i].Int()
		b, bok := keys[j].Int()
		switch {
		case aok && bok:
			return a < b
		case aok != bok:
			return aok
		default:
			return keys[i] < keys[j]
		}
	})
}

// builder accumulates a Catalog while enforcing the AreaIndex invariants.
type builder struct {
	grades  map[domain.GradeKey]map[domain.SubjectArea]*AreaIndex
	seen    map[*AreaIndex]map[string]map[string]struct{}
	located map[domain.GradeKey]domain.LevelGrade
}

func newBuilder() *builder {
	return &builder{
		grades: make(map[domain.GradeKey]map[domain.SubjectArea]*AreaIndex),
		seen:   make(map[*AreaIndex]map[string]map[string]struct{}),
	}
}

func (b *builder) area(key domain.GradeKey, area domain.SubjectArea) *AreaIndex {
	areas, ok := b.grades[key]
	if !ok {
		areas = make(map[domain.SubjectArea]*AreaIndex)
		b.grades[key] = areas
	}
	idx, ok := areas[area]
	if !ok {
		idx = &AreaIndex{Contents: []string{}, ByContent: make(map[string][]string)}
		areas[area] = idx
		b.seen[idx] = make(map[string]map[string]struct{})
	}
	return idx
}

// addContent appends content to the area and merges its descriptors.
func (b *builder) addContent(idx *AreaIndex, content string, descriptors []string) {
	idx.Contents = append(idx.Contents, content)
	b.mergeDescriptors(idx, content, descriptors)
}

// mergeDescriptors adds descriptors to an existing or new content entry
// without touching Contents. Duplicate descriptors are dropped.
func (b *builder) mergeDescriptors(idx *AreaIndex, content string, descriptors []string) {
	seen, ok := b.seen[idx][content]
	if !ok {
		seen = make(map[string]struct{})
		b.seen[idx][content] = seen
		idx.ByContent[content] = []string{}
	}
	for _, d := range descriptors {
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		idx.ByContent[content] = append(idx.ByContent[content], d)
	}
}

func (b *builder) hasContent(idx *AreaIndex, content string) bool {
	_, ok := b.seen[idx][content]
	return ok
}

func (b *builder) build(strategy GradeKeyStrategy, shape PayloadShape) *Catalog {
	return &Catalog{grades: b.grades, strategy: strategy, shape: shape, located: b.located}
}

// New builds a catalog directly from indexed data. Descriptor lists are
// deduplicated and by-content entries missing from contents are dropped.
func New(strategy GradeKeyStrategy, data map[domain.GradeKey]map[domain.SubjectArea]AreaIndex) *Catalog {
	b := newBuilder()
	for key, areas := range data {
		for area, src := range areas {
			idx := b.area(key, domain.NormalizeSubjectArea(string(area)))
			for _, content := range src.Contents {
				b.addContent(idx, content, src.ByContent[content])
			}
		}
	}
	return b.build(strategy, ShapeUnknown)
}

func gradeKeyString(n int) domain.GradeKey {
	return domain.GradeKey(strconv.Itoa(n))
}
