package lessonplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// dialect captures the SQL differences between SQLite and PostgreSQL.
type dialect struct {
	placeholder func(n int) string
	// jsonText renders a JSON column as text for LIKE matching.
	jsonText func(column string) string
}

var sqliteDialect = dialect{
	placeholder: func(int) string { return "?" },
	jsonText:    func(column string) string { return column },
}

var postgresDialect = dialect{
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	jsonText:    func(column string) string { return column + "::text" },
}

// query accumulates positional arguments for a dialect.
type query struct {
	d    dialect
	args []interface{}
}

func (q *query) arg(v interface{}) string {
	q.args = append(q.args, v)
	return q.d.placeholder(len(q.args))
}

// sqlStore implements Store on database/sql. SQLiteStore and PostgresStore
// embed it and only differ in how the connection and schema are set up.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

const defaultListLimit = 50

// Create stores a new lesson plan.
func (s *sqlStore) Create(ctx context.Context, plan *LessonPlan) error {
	if err := prepareCreate(plan); err != nil {
		return err
	}
	lists, err := encodeLists(plan)
	if err != nil {
		return err
	}

	q := &query{d: s.dialect}
	values := []string{
		q.arg(plan.ID), q.arg(plan.Title), q.arg(string(plan.Level)), q.arg(plan.Grade),
		q.arg(lists.subjectAreas), q.arg(plan.EjeArticulador), q.arg(lists.contents), q.arg(lists.descriptors),
		q.arg(plan.Duration), q.arg(plan.Objectives), q.arg(plan.Activities), q.arg(plan.Materials),
		q.arg(plan.Evaluation), q.arg(plan.InclusiveAdaptations), q.arg(plan.Notes), q.arg(plan.GeneratedContent),
		q.arg(plan.CreatedAt), q.arg(plan.UpdatedAt),
	}

	stmt := fmt.Sprintf(`INSERT INTO lesson_plans (%s) VALUES (%s)`, selectColumns, strings.Join(values, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, q.args...); err != nil {
		return fmt.Errorf("failed to insert lesson plan: %w", err)
	}
	return nil
}

// Update applies patch to the stored plan with the given id.
func (s *sqlStore) Update(ctx context.Context, id string, patch Patch) (*LessonPlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	plan.Apply(patch)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	plan.UpdatedAt = time.Now().UTC()

	lists, err := encodeLists(plan)
	if err != nil {
		return nil, err
	}

	q := &query{d: s.dialect}
	stmt := fmt.Sprintf(`
		UPDATE lesson_plans SET
			title = %s, level = %s, grade = %s, subject_areas = %s,
			eje_articulador = %s, contents = %s, descriptors = %s,
			duration = %s, objectives = %s, activities = %s, materials = %s,
			evaluation = %s, inclusive_adaptations = %s, notes = %s,
			generated_content = %s, updated_at = %s
		WHERE id = %s`,
		q.arg(plan.Title), q.arg(string(plan.Level)), q.arg(plan.Grade), q.arg(lists.subjectAreas),
		q.arg(plan.EjeArticulador), q.arg(lists.contents), q.arg(lists.descriptors),
		q.arg(plan.Duration), q.arg(plan.Objectives), q.arg(plan.Activities), q.arg(plan.Materials),
		q.arg(plan.Evaluation), q.arg(plan.InclusiveAdaptations), q.arg(plan.Notes),
		q.arg(plan.GeneratedContent), q.arg(plan.UpdatedAt),
		q.arg(id),
	)

	result, err := s.db.ExecContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update lesson plan: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("lesson plan %s: %w", id, ErrNotFound)
	}
	return plan, nil
}

// Get retrieves a lesson plan by id.
func (s *sqlStore) Get(ctx context.Context, id string) (*LessonPlan, error) {
	q := &query{d: s.dialect}
	stmt := fmt.Sprintf(`SELECT %s FROM lesson_plans WHERE id = %s`, selectColumns, q.arg(id))

	plan, err := scanPlan(s.db.QueryRowContext(ctx, stmt, q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lesson plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lesson plan: %w", err)
	}
	return plan, nil
}

// List returns lesson plans matching filter with pagination.
func (s *sqlStore) List(ctx context.Context, filter Filter, limit, offset int) ([]*LessonPlan, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	q := &query{d: s.dialect}
	where := s.where(q, filter)
	stmt := fmt.Sprintf(`SELECT %s FROM lesson_plans%s ORDER BY created_at DESC, id LIMIT %s OFFSET %s`,
		selectColumns, where, q.arg(limit), q.arg(offset))

	rows, err := s.db.QueryContext(ctx, stmt, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson plans: %w", err)
	}
	defer rows.Close()

	result := []*LessonPlan{}
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, plan)
	}
	return result, rows.Err()
}

func (s *sqlStore) where(q *query, filter Filter) string {
	var clauses []string
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := searchPattern(search)
		clauses = append(clauses, fmt.Sprintf(`(LOWER(title) LIKE %s ESCAPE '\' OR LOWER(%s) LIKE %s ESCAPE '\')`,
			q.arg(pattern), s.dialect.jsonText("subject_areas"), q.arg(pattern)))
	}
	if filter.Level != "" {
		clauses = append(clauses, "level = "+q.arg(string(filter.Level)))
	}
	if filter.Grade > 0 {
		clauses = append(clauses, "grade = "+q.arg(filter.Grade))
	}
	if filter.SubjectArea != "" {
		clauses = append(clauses, fmt.Sprintf(`%s LIKE %s ESCAPE '\'`,
			s.dialect.jsonText("subject_areas"), q.arg(areaPattern(filter.SubjectArea))))
	}
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// Delete removes a lesson plan by id.
func (s *sqlStore) Delete(ctx context.Context, id string) error {
	q := &query{d: s.dialect}
	result, err := s.db.ExecContext(ctx, "DELETE FROM lesson_plans WHERE id = "+q.arg(id), q.args...)
	if err != nil {
		return fmt.Errorf("failed to delete lesson plan: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("lesson plan %s: %w", id, ErrNotFound)
	}
	return nil
}

// Stats counts plans by grade label and subject area.
func (s *sqlStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT level, grade, subject_areas FROM lesson_plans")
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var level, areas string
		var grade int
		if err := rows.Scan(&level, &grade, &areas); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if err := acc.add(level, grade, areas); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return acc.stats, nil
}

// ExportJSON exports all lesson plans to a JSON writer.
func (s *sqlStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, Filter{}, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list lesson plans: %w", err)
	}

	export := &Export{
		Version:     "1.0",
		ExportedAt:  time.Now(),
		Count:       len(all),
		LessonPlans: all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// ImportJSON imports lesson plans from a JSON reader.
func (s *sqlStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, plan := range export.LessonPlans {
		if plan == nil {
			continue
		}
		if plan.ID != "" {
			_, err := s.Get(ctx, plan.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, ErrNotFound) {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
		}

		if err := s.Create(ctx, plan); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}

// Close closes the store and releases resources.
func (s *sqlStore) Close() error {
	return s.db.Close()
}
