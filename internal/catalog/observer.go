package catalog

import (
	"github.com/sirupsen/logrus"

	"github.com/curriculum-catalog-server/internal/domain"
)

// Observer receives data-quality events while a payload is normalized.
// Implementations must not retain the Report passed to Completed beyond the
// call unless they copy it.
type Observer interface {
	GradeProcessed(key domain.GradeKey, areas int)
	AreaProcessed(key domain.GradeKey, area domain.SubjectArea, contents, descriptors int)
	UnitSkipped(skip Skip)
	Completed(report *Report)
}

// Skip describes one irregular unit that was dropped during normalization.
type Skip struct {
	GradeKey domain.GradeKey    `json:"grade_key,omitempty"`
	Area     domain.SubjectArea `json:"area,omitempty"`
	Index    int                `json:"index"`
	Reason   string             `json:"reason"`
}

// Report summarises one normalization run.
type Report struct {
	Shape         PayloadShape            `json:"shape"`
	Strategy      string                  `json:"strategy"`
	GradeKeys     int                     `json:"grade_keys"`
	Areas         int                     `json:"areas"`
	Contents      int                     `json:"contents"`
	Descriptors   int                     `json:"descriptors"`
	AreasPerGrade map[domain.GradeKey]int `json:"areas_per_grade"`
	UnknownAreas  []domain.SubjectArea    `json:"unknown_areas,omitempty"`
	Skips         []Skip                  `json:"skips,omitempty"`
}

func newReport(shape PayloadShape) *Report {
	return &Report{
		Shape:         shape,
		AreasPerGrade: make(map[domain.GradeKey]int),
	}
}

// NopObserver discards every event.
type NopObserver struct{}

func (NopObserver) GradeProcessed(domain.GradeKey, int) {}
func (NopObserver) AreaProcessed(domain.GradeKey, domain.SubjectArea, int, int) {}
func (NopObserver) UnitSkipped(Skip) {}
func (NopObserver) Completed(*Report) {}

// LogObserver writes normalization events through logrus. Per-grade and
// per-area counts are logged at debug level, skips at warn, the summary at info.
type LogObserver struct {
	Logger *logrus.Logger
}

// NewLogObserver creates a LogObserver
func NewLogObserver(logger *logrus.Logger) *LogObserver {
	return &LogObserver{Logger: logger}
}

func (o *LogObserver) GradeProcessed(key domain.GradeKey, areas int) {
	o.Logger.WithFields(logrus.Fields{
		"grade_key": key,
		"areas":     areas,
	}).Debug("Catalog grade processed")
}

func (o *LogObserver) AreaProcessed(key domain.GradeKey, area domain.SubjectArea, contents, descriptors int) {
	entry := o.Logger.WithFields(logrus.Fields{
		"grade_key":   key,
		"area":        area,
		"contents":    contents,
		"descriptors": descriptors,
	})
	if !area.IsKnown() {
		entry.Debug("Catalog area outside the known campos formativos")
	}
	entry.Debug("Catalog area processed")
}

func (o *LogObserver) UnitSkipped(skip Skip) {
	o.Logger.WithFields(logrus.Fields{
		"grade_key": skip.GradeKey,
		"area":      skip.Area,
		"index":     skip.Index,
		"reason":    skip.Reason,
	}).Warn("Catalog unit skipped")
}

func (o *LogObserver) Completed(report *Report) {
	entry := o.Logger.WithFields(logrus.Fields{
		"shape":       report.Shape,
		"strategy":    report.Strategy,
		"grade_keys":  report.GradeKeys,
		"areas":       report.Areas,
		"contents":    report.Contents,
		"descriptors": report.Descriptors,
		"skipped":     len(report.Skips),
	})
	if len(report.Skips) > 0 {
		entry.Warn("Catalog normalized with skipped units")
		return
	}
	entry.Info("Catalog normalized")
}

// recorder keeps the Report in step with the events sent to an Observer.
type recorder struct {
	report   *Report
	observer Observer
	unknown  map[domain.SubjectArea]bool
}

func newRecorder(shape PayloadShape, observer Observer) *recorder {
	if observer == nil {
		observer = NopObserver{}
	}
	return &recorder{
		report:   newReport(shape),
		observer: observer,
		unknown:  make(map[domain.SubjectArea]bool),
	}
}

func (r *recorder) grade(key domain.GradeKey, areas int) {
	r.report.GradeKeys++
	r.report.AreasPerGrade[key] = areas
	r.observer.GradeProcessed(key, areas)
}

func (r *recorder) area(key domain.GradeKey, area domain.SubjectArea, contents, descriptors int) {
	r.report.Areas++
	r.report.Contents += contents
	r.report.Descriptors += descriptors
	if !area.IsKnown() && !r.unknown[area] {
		r.unknown[area] = true
		r.report.UnknownAreas = append(r.report.UnknownAreas, area)
	}
	r.observer.AreaProcessed(key, area, contents, descriptors)
}

func (r *recorder) skip(key domain.GradeKey, area domain.SubjectArea, index int, reason string) {
	s := Skip{GradeKey: key, Area: area, Index: index, Reason: reason}
	r.report.Skips = append(r.report.Skips, s)
	r.observer.UnitSkipped(s)
}

func (r *recorder) done(strategy GradeKeyStrategy) *Report {
	r.report.Strategy = strategy.Name()
	r.observer.Completed(r.report)
	return r.report
}
