package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/curriculum-catalog-server/internal/domain"
)

var (
	ErrInvalidGrade      = domain.ErrInvalidGrade
	ErrUnknownLevel      = domain.ErrUnknownLevel
	ErrInvalidGradeKey   = errors.New("invalid grade key")
	ErrAmbiguousGradeKey = errors.New("grade key matches more than one education level")
	ErrUnknownStrategy   = errors.New("unknown grade key strategy")
	ErrNotReady          = errors.New("catalog not ready")
)

// Grade key policy names accepted by StrategyByName and the store.
const (
	PolicyOffset   = "offset"
	PolicyIdentity = "identity"
	PolicyAuto     = "auto"
)

// GradeKeyStrategy maps level-relative grades to the catalog's grade keys and
// back. Which strategy is correct depends on the upstream payload in use.
type GradeKeyStrategy interface {
	Name() string
	ToKey(level domain.EducationLevel, grade int) (domain.GradeKey, error)
	// FromKey resolves a key. areas lists the subject areas stored under the
	// key and is only consulted when the key alone is ambiguous.
	FromKey(key domain.GradeKey, areas []domain.SubjectArea) (domain.LevelGrade, error)
}

var levelOffsets = map[domain.EducationLevel]int{
	domain.Preescolar: 0,
	domain.Primaria:   3,
	domain.Secundaria: 9,
}

// OffsetStrategy numbers grades 1-12 across levels: Preescolar 1-3,
// Primaria 4-9, Secundaria 10-12.
type OffsetStrategy struct{}

func (OffsetStrategy) Name() string { return PolicyOffset }

func (OffsetStrategy) ToKey(level domain.EducationLevel, grade int) (domain.GradeKey, error) {
	if err := checkGrade(level, grade); err != nil {
		return "", err
	}
	return domain.GradeKey(strconv.Itoa(grade + levelOffsets[level])), nil
}

func (OffsetStrategy) FromKey(key domain.GradeKey, _ []domain.SubjectArea) (domain.LevelGrade, error) {
	n, ok := key.Int()
	if !ok {
		return domain.LevelGrade{}, fmt.Errorf("%w: %q", ErrInvalidGradeKey, key)
	}
	for _, level := range domain.Levels {
		if grade := n - levelOffsets[level]; level.ValidGrade(grade) {
			return domain.LevelGrade{Level: level, Grade: grade}, nil
		}
	}
	return domain.LevelGrade{}, fmt.Errorf("%w: %q out of range", ErrInvalidGradeKey, key)
}

// IdentityStrategy uses the level-relative grade as the key. Keys 1-3 exist in
// every level, so the inverse needs the subject areas found under the key.
type IdentityStrategy struct {
	// AreaHints lists subject areas that only appear under a given level.
	AreaHints map[domain.EducationLevel][]domain.SubjectArea
}

func (IdentityStrategy) Name() string { return PolicyIdentity }

func (IdentityStrategy) ToKey(level domain.EducationLevel, grade int) (domain.GradeKey, error) {
	if err := checkGrade(level, grade); err != nil {
		return "", err
	}
	return domain.GradeKey(strconv.Itoa(grade)), nil
}

func (s IdentityStrategy) FromKey(key domain.GradeKey, areas []domain.SubjectArea) (domain.LevelGrade, error) {
	n, ok := key.Int()
	if !ok {
		return domain.LevelGrade{}, fmt.Errorf("%w: %q", ErrInvalidGradeKey, key)
	}

	var candidates []domain.EducationLevel
	for _, level := range domain.Levels {
		if level.ValidGrade(n) {
			candidates = append(candidates, level)
		}
	}
	switch len(candidates) {
	case 0:
		return domain.LevelGrade{}, fmt.Errorf("%w: %q out of range", ErrInvalidGradeKey, key)
	case 1:
		return domain.LevelGrade{Level: candidates[0], Grade: n}, nil
	}

	var matched []domain.EducationLevel
	for _, level := range candidates {
		if s.hintsMatch(level, areas) {
			matched = append(matched, level)
		}
	}
	if len(matched) == 1 {
		return domain.LevelGrade{Level: matched[0], Grade: n}, nil
	}
	return domain.LevelGrade{}, fmt.Errorf("%w: %q", ErrAmbiguousGradeKey, key)
}

func (s IdentityStrategy) hintsMatch(level domain.EducationLevel, areas []domain.SubjectArea) bool {
	for _, hint := range s.AreaHints[level] {
		hint = domain.NormalizeSubjectArea(string(hint))
		for _, area := range areas {
			if domain.NormalizeSubjectArea(string(area)) == hint {
				return true
			}
		}
	}
	return false
}

// StrategyByName returns the strategy for a fixed policy name. "auto" is not
// a strategy by itself; callers resolve it with DetectStrategy.
func StrategyByName(name string, hints map[domain.EducationLevel][]domain.SubjectArea) (GradeKeyStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", PolicyOffset:
		return OffsetStrategy{}, nil
	case PolicyIdentity:
		return IdentityStrategy{AreaHints: hints}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// ParseAreaHints converts configured hints, keyed by level name, into the
// form IdentityStrategy uses.
func ParseAreaHints(raw map[string][]string) (map[domain.EducationLevel][]domain.SubjectArea, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	hints := make(map[domain.EducationLevel][]domain.SubjectArea, len(raw))
	for name, areas := range raw {
		level, err := domain.ParseEducationLevel(name)
		if err != nil {
			return nil, fmt.Errorf("area hints: %w", err)
		}
		for _, a := range areas {
			if area := domain.NormalizeSubjectArea(a); area != "" {
				hints[level] = append(hints[level], area)
			}
		}
	}
	return hints, nil
}

// ValidPolicy reports whether name is an accepted grade key policy.
func ValidPolicy(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case PolicyOffset, PolicyIdentity, PolicyAuto:
		return true
	default:
		return false
	}
}

// DetectStrategy guesses the strategy from the keys of a nested payload.
// Identity keys never exceed 6, the largest Primaria grade.
func DetectStrategy(keys []domain.GradeKey, hints map[domain.EducationLevel][]domain.SubjectArea) GradeKeyStrategy {
	for _, key := range keys {
		if n, ok := key.Int(); ok && n > domain.Primaria.GradeCount() {
			return OffsetStrategy{}
		}
	}
	return IdentityStrategy{AreaHints: hints}
}

func checkGrade(level domain.EducationLevel, grade int) error {
	if !level.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	if !level.ValidGrade(grade) {
		return fmt.Errorf("%w: %s %d", ErrInvalidGrade, level, grade)
	}
	return nil
}
