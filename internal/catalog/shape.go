package catalog

// PayloadShape identifies which upstream layout a decoded payload follows.
type PayloadShape string

const (
	ShapeUnknown         PayloadShape = "unknown"
	ShapeFlatList        PayloadShape = "flat_list"
	ShapeNestedParallel  PayloadShape = "nested_parallel"
	ShapeNestedPreJoined PayloadShape = "nested_pre_joined"
	ShapeNestedMixed     PayloadShape = "nested_mixed"
)

// Field aliases observed across upstream revisions.
var (
	levelFields       = []string{"nivel", "level"}
	gradeFields       = []string{"grado", "grade", "gradeKey"}
	areaFields        = []string{"campoFormativo", "subjectArea", "campo"}
	contentFields     = []string{"contenido", "content"}
	descriptorFields  = []string{"pda", "descriptors", "pdas"}
	contentListFields = []string{"contents", "contenidos"}
	byContentFields   = []string{"byContenido", "byContent", "by_content"}
)

// DetectShape inspects the structure of a decoded JSON payload.
//
// An array with at least one object element is a flat list. An object with at
// least one object value is nested by grade; it is pre-joined when any unit
// carries a by-content map, mixed when any descriptor slot is an array, and
// parallel otherwise. Everything else is ShapeUnknown.
func DetectShape(v any) PayloadShape {
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if _, ok := item.(map[string]any); ok {
				return ShapeFlatList
			}
		}
		return ShapeUnknown
	case map[string]any:
		return detectNested(val)
	default:
		return ShapeUnknown
	}
}

func detectNested(grades map[string]any) PayloadShape {
	nested := false
	mixed := false
	for _, gradeValue := range grades {
		areas, ok := gradeValue.(map[string]any)
		if !ok {
			continue
		}
		nested = true
		for _, areaValue := range areas {
			unit, ok := areaValue.(map[string]any)
			if !ok {
				continue
			}
			if _, ok := lookupMap(unit, byContentFields); ok {
				return ShapeNestedPreJoined
			}
			if slots, ok := lookupSlice(unit, descriptorFields); ok {
				for _, slot := range slots {
					if _, isArray := slot.([]any); isArray {
						mixed = true
					}
				}
			}
		}
	}
	switch {
	case !nested:
		return ShapeUnknown
	case mixed:
		return ShapeNestedMixed
	default:
		return ShapeNestedParallel
	}
}

// malformedReason explains why a payload has no usable top-level shape.
func malformedReason(v any) string {
	switch val := v.(type) {
	case []any:
		if len(val) == 0 {
			return "empty array"
		}
		return "array has no record elements"
	case map[string]any:
		if len(val) == 0 {
			return "empty object"
		}
		return "object has no grade objects"
	case nil:
		return "null payload"
	default:
		return "top-level value is a scalar"
	}
}

func lookup(m map[string]any, names []string) (any, bool) {
	for _, name := range names {
		if v, ok := m[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupMap(m map[string]any, names []string) (map[string]any, bool) {
	v, ok := lookup(m, names)
	if !ok {
		return nil, false
	}
	out, ok := v.(map[string]any)
	return out, ok
}

func lookupSlice(m map[string]any, names []string) ([]any, bool) {
	v, ok := lookup(m, names)
	if !ok {
		return nil, false
	}
	out, ok := v.([]any)
	return out, ok
}
