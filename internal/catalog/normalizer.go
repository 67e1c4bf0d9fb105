package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/curriculum-catalog-server/internal/domain"
)

// Normalizer turns a raw upstream payload into a Catalog.
type Normalizer struct {
	// Policy is "offset", "identity" or "auto".
	Policy    string
	AreaHints map[domain.EducationLevel][]domain.SubjectArea
	Observer  Observer
}

// NewNormalizer creates a Normalizer for a grade key policy
func NewNormalizer(policy string, observer Observer) *Normalizer {
	return &Normalizer{Policy: policy, Observer: observer}
}

// Normalize decodes and normalizes a payload with the offset policy and no
// observer.
func Normalize(raw []byte) (*Catalog, *Report, error) {
	return NewNormalizer(PolicyOffset, nil).Normalize(raw)
}

// Normalize decodes raw JSON and normalizes it.
func (n *Normalizer) Normalize(raw []byte) (*Catalog, *Report, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, nil, domain.NewMalformedCatalogError("invalid JSON", err)
	}
	return n.NormalizeValue(v)
}

// NormalizeValue normalizes an already decoded payload. It fails only when
// the top-level shape is unusable; irregular units are skipped and reported.
func (n *Normalizer) NormalizeValue(v any) (*Catalog, *Report, error) {
	if !ValidPolicy(n.policy()) {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, n.Policy)
	}

	shape := DetectShape(v)
	if shape == ShapeUnknown {
		return nil, nil, domain.NewMalformedCatalogError(malformedReason(v), nil)
	}

	rec := newRecorder(shape, n.Observer)
	var (
		cat *Catalog
		err error
	)
	switch shape {
	case ShapeFlatList:
		cat, err = n.normalizeFlatList(v.([]any), rec)
	default:
		cat, err = n.normalizeNested(v.(map[string]any), shape, rec)
	}
	if err != nil {
		return nil, nil, err
	}

	report := rec.done(cat.strategy)
	if len(cat.grades) == 0 {
		return nil, report, domain.NewMalformedCatalogError("no usable units", nil)
	}
	return cat, report, nil
}

func (n *Normalizer) policy() string {
	if n.Policy == "" {
		return PolicyOffset
	}
	return strings.ToLower(strings.TrimSpace(n.Policy))
}

// normalizeFlatList groups {level, grade, area, content, descriptors} records.
// Records for the same content are merged into one entry.
func (n *Normalizer) normalizeFlatList(records []any, rec *recorder) (*Catalog, error) {
	policy := n.policy()
	if policy == PolicyAuto {
		// Records carry their level, so the offset scheme never collides.
		policy = PolicyOffset
	}
	strategy, err := StrategyByName(policy, n.AreaHints)
	if err != nil {
		return nil, err
	}

	b := newBuilder()
	if _, ok := strategy.(IdentityStrategy); ok {
		b.located = make(map[domain.GradeKey]domain.LevelGrade)
	}
	for i, item := range records {
		record, ok := item.(map[string]any)
		if !ok {
			rec.skip("", "", i, "record is not an object")
			continue
		}

		key, lg, reason := flatGradeKey(record, strategy)
		if reason != "" {
			rec.skip("", "", i, reason)
			continue
		}
		areaName, _ := lookup(record, areaFields)
		areaStr, _ := areaName.(string)
		area := domain.NormalizeSubjectArea(areaStr)
		if area == "" {
			rec.skip(key, "", i, "missing subject area")
			continue
		}
		contentValue, _ := lookup(record, contentFields)
		content, _ := contentValue.(string)
		content = strings.TrimSpace(content)
		if content == "" {
			rec.skip(key, area, i, "missing content")
			continue
		}

		var descriptors []string
		if raw, ok := lookup(record, descriptorFields); ok {
			descriptors = SplitValue(raw)
		}

		if b.located != nil && lg.Level != "" {
			if prev, ok := b.located[key]; ok && prev.Level != lg.Level {
				rec.skip(key, area, i, fmt.Sprintf("grade key %s already holds %s", key, prev))
				continue
			}
			b.located[key] = lg
		}

		idx := b.area(key, area)
		if b.hasContent(idx, content) {
			b.mergeDescriptors(idx, content, descriptors)
			continue
		}
		b.addContent(idx, content, descriptors)
	}

	locateKeys(b, strategy, rec)
	n.reportBuilt(b, rec)
	return b.build(strategy, ShapeFlatList), nil
}

// flatGradeKey resolves the grade key of a flat record. Records with a level
// are mapped through the strategy; records without one carry a raw key and
// an empty LevelGrade.
func flatGradeKey(record map[string]any, strategy GradeKeyStrategy) (domain.GradeKey, domain.LevelGrade, string) {
	gradeValue, ok := lookup(record, gradeFields)
	if !ok {
		return "", domain.LevelGrade{}, "missing grade"
	}
	grade, ok := gradeNumber(gradeValue)
	if !ok {
		return "", domain.LevelGrade{}, fmt.Sprintf("invalid grade %v", gradeValue)
	}

	levelValue, ok := lookup(record, levelFields)
	if !ok {
		return gradeKeyString(grade), domain.LevelGrade{}, ""
	}
	levelStr, _ := levelValue.(string)
	level, err := domain.ParseEducationLevel(levelStr)
	if err != nil {
		return "", domain.LevelGrade{}, err.Error()
	}
	key, err := strategy.ToKey(level, grade)
	if err != nil {
		return "", domain.LevelGrade{}, err.Error()
	}
	return key, domain.LevelGrade{Level: level, Grade: grade}, ""
}

func gradeNumber(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int(val), true
	case string:
		g, err := domain.ParseGrade(val)
		return g, err == nil
	default:
		return 0, false
	}
}

// unitFunc fills one nested (grade, area) unit from its contents list.
type unitFunc func(b *builder, idx *AreaIndex, unit map[string]any, contents []string, positions []int, emit skipFunc)

type skipFunc func(index int, reason string)

// normalizeNested walks {gradeKey: {area: unit}} and hands each unit to the
// normalizer registered for the detected shape. Raw keys that normalize to
// the same grade key ("4" and "4°") are merged in raw key order.
func (n *Normalizer) normalizeNested(grades map[string]any, shape PayloadShape, rec *recorder) (*Catalog, error) {
	fill := nestedUnits[shape]

	keys := make([]domain.GradeKey, 0, len(grades))
	rawKeys := make(map[domain.GradeKey][]string, len(grades))
	for raw := range grades {
		key := normalizeGradeKey(raw)
		if _, ok := key.Int(); !ok {
			rec.skip(domain.GradeKey(raw), "", -1, "grade key is not numeric")
			continue
		}
		if _, seen := rawKeys[key]; !seen {
			keys = append(keys, key)
		}
		rawKeys[key] = append(rawKeys[key], raw)
	}
	sortGradeKeys(keys)

	b := newBuilder()
	for _, key := range keys {
		raws := rawKeys[key]
		sort.Strings(raws)
		for _, raw := range raws {
			areas, ok := grades[raw].(map[string]any)
			if !ok {
				rec.skip(key, "", -1, "grade value is not an object")
				continue
			}
			fillGrade(b, key, areas, fill, rec)
		}
	}

	strategy, err := n.nestedStrategy(keys)
	if err != nil {
		return nil, err
	}
	locateKeys(b, strategy, rec)
	n.reportBuilt(b, rec)
	return b.build(strategy, shape), nil
}

func fillGrade(b *builder, key domain.GradeKey, areas map[string]any, fill unitFunc, rec *recorder) {
	areaNames := make([]string, 0, len(areas))
	for name := range areas {
		areaNames = append(areaNames, name)
	}
	sort.Strings(areaNames)

	for _, name := range areaNames {
		area := domain.NormalizeSubjectArea(name)
		if area == "" {
			rec.skip(key, "", -1, "empty subject area name")
			continue
		}
		unit, ok := areas[name].(map[string]any)
		if !ok {
			rec.skip(key, area, -1, "area value is not an object")
			continue
		}
		list, ok := lookupSlice(unit, contentListFields)
		if !ok {
			rec.skip(key, area, -1, "missing contents list")
			continue
		}

		contents := make([]string, 0, len(list))
		positions := make([]int, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if s = strings.TrimSpace(s); !ok || s == "" {
				rec.skip(key, area, i, "content is not a non-empty string")
				continue
			}
			contents = append(contents, s)
			positions = append(positions, i)
		}

		idx := b.area(key, area)
		fill(b, idx, unit, contents, positions, func(index int, reason string) {
			rec.skip(key, area, index, reason)
		})
	}
}

// locateKeys pins every grade key of an identity keyed catalog to one level.
// Keys already located from record levels are kept; the rest are resolved
// from their subject areas. Keys that stay ambiguous are dropped and reported.
func locateKeys(b *builder, strategy GradeKeyStrategy, rec *recorder) {
	if _, ok := strategy.(IdentityStrategy); !ok {
		return
	}
	if b.located == nil {
		b.located = make(map[domain.GradeKey]domain.LevelGrade)
	}

	keys := make([]domain.GradeKey, 0, len(b.grades))
	for k := range b.grades {
		keys = append(keys, k)
	}
	sortGradeKeys(keys)

	for _, key := range keys {
		if _, ok := b.located[key]; ok {
			continue
		}
		areas := make([]domain.SubjectArea, 0, len(b.grades[key]))
		for a := range b.grades[key] {
			areas = append(areas, a)
		}
		lg, err := strategy.FromKey(key, areas)
		if err != nil {
			rec.skip(key, "", -1, err.Error())
			delete(b.grades, key)
			continue
		}
		b.located[key] = lg
	}
}

func (n *Normalizer) nestedStrategy(keys []domain.GradeKey) (GradeKeyStrategy, error) {
	if n.policy() == PolicyAuto {
		return DetectStrategy(keys, n.AreaHints), nil
	}
	return StrategyByName(n.policy(), n.AreaHints)
}

var nestedUnits = map[PayloadShape]unitFunc{
	ShapeNestedParallel:  fillParallel,
	ShapeNestedMixed:     fillMixed,
	ShapeNestedPreJoined: fillPreJoined,
}

// fillParallel binds pda[i] (a packed string) to contents[i]. Missing slots
// give the content an empty descriptor list.
func fillParallel(b *builder, idx *AreaIndex, unit map[string]any, contents []string, positions []int, emit skipFunc) {
	slots, _ := lookupSlice(unit, descriptorFields)
	for i, content := range contents {
		var descriptors []string
		if pos := positions[i]; pos < len(slots) {
			switch slot := slots[pos].(type) {
			case string:
				descriptors = Split(slot)
			case nil:
			default:
				emit(pos, "descriptor slot is not a string")
			}
		}
		b.addContent(idx, content, descriptors)
	}
}

// fillMixed is fillParallel where every slot may be a packed string or an
// already split array.
func fillMixed(b *builder, idx *AreaIndex, unit map[string]any, contents []string, positions []int, emit skipFunc) {
	slots, _ := lookupSlice(unit, descriptorFields)
	for i, content := range contents {
		var descriptors []string
		if pos := positions[i]; pos < len(slots) {
			switch slot := slots[pos].(type) {
			case string, []any:
				descriptors = SplitValue(slot)
			case nil:
			default:
				emit(pos, "descriptor slot is neither a string nor an array")
			}
		}
		b.addContent(idx, content, descriptors)
	}
}

// fillPreJoined takes descriptor lists from the by-content map as atomic
// strings. Map keys that are not in contents are dropped.
func fillPreJoined(b *builder, idx *AreaIndex, unit map[string]any, contents []string, _ []int, emit skipFunc) {
	joined, ok := lookupMap(unit, byContentFields)
	if !ok {
		fillMixed(b, idx, unit, contents, identityPositions(len(contents)), emit)
		return
	}

	listed := make(map[string]bool, len(contents))
	for _, content := range contents {
		listed[content] = true
	}

	trimmed := make(map[string]any, len(joined))
	for k, v := range joined {
		trimmed[strings.TrimSpace(k)] = v
	}

	for _, content := range contents {
		var descriptors []string
		switch v := trimmed[content].(type) {
		case []any:
			descriptors = SplitValue(v)
		case string:
			if s := strings.TrimSpace(v); s != "" {
				descriptors = []string{s}
			}
		}
		b.addContent(idx, content, descriptors)
	}

	orphans := make([]string, 0)
	for k := range trimmed {
		if !listed[k] {
			orphans = append(orphans, k)
		}
	}
	sort.Strings(orphans)
	for _, k := range orphans {
		emit(-1, fmt.Sprintf("descriptor entry for unlisted content %q", k))
	}
}

func identityPositions(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func normalizeGradeKey(raw string) domain.GradeKey {
	return domain.GradeKey(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "°")))
}

// reportBuilt emits per-grade and per-area counts in deterministic order.
func (n *Normalizer) reportBuilt(b *builder, rec *recorder) {
	keys := make([]domain.GradeKey, 0, len(b.grades))
	for k := range b.grades {
		keys = append(keys, k)
	}
	sortGradeKeys(keys)

	for _, key := range keys {
		areas := b.grades[key]
		names := make([]domain.SubjectArea, 0, len(areas))
		for a := range areas {
			names = append(names, a)
		}
		sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

		rec.grade(key, len(areas))
		for _, area := range names {
			idx := areas[area]
			descriptors := 0
			for _, d := range idx.ByContent {
				descriptors += len(d)
			}
			rec.area(key, area, len(idx.Contents), descriptors)
		}
	}
}
