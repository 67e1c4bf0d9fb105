package lessonplan

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curriculum-catalog-server/internal/domain"
)

var _ Store = (*PostgresStore)(nil)

var planColumns = []string{
	"id", "title", "level", "grade", "subject_areas", "eje_articulador",
	"contents", "descriptors", "duration", "objectives", "activities", "materials",
	"evaluation", "inclusive_adaptations", "notes", "generated_content",
	"created_at", "updated_at",
}

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return store, mock
}

func planRow(id, title string, created time.Time) []driver.Value {
	return []driver.Value{
		id, title, "Primaria", int64(4), `["LENGUAJES"]`, "Inclusión",
		`[{"content":"Lectura de cuentos","area":"LENGUAJES"}]`, `["Identifica personajes."]`,
		"1 semana", "", "", "", "", "", "", "",
		created, created,
	}
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestNewPostgresStore_RequiresDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`INSERT INTO lesson_plans \(id, title, .*\) VALUES \(\$1, \$2, .*\$18\)`).
		WithArgs(anyArgs(18)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan := &LessonPlan{Title: "Cuentos", Level: domain.Primaria, Grade: 4, SubjectAreas: []domain.SubjectArea{"lenguajes"}}
	require.NoError(t, store.Create(context.Background(), plan))
	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, []domain.SubjectArea{domain.AreaLenguajes}, plan.SubjectAreas)
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := setupMockStore(t)
	created := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM lesson_plans WHERE id = \$1`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows(planColumns).AddRow(planRow("plan-1", "Cuentos", created)...))

	plan, err := store.Get(context.Background(), "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "Cuentos", plan.Title)
	assert.Equal(t, domain.Primaria, plan.Level)
	assert.Equal(t, 4, plan.Grade)
	assert.Equal(t, []domain.ContentSelection{{Content: "Lectura de cuentos", Area: domain.AreaLenguajes}}, plan.Contents)
	assert.Equal(t, []string{"Identifica personajes."}, plan.Descriptors)
	assert.Equal(t, created, plan.CreatedAt)
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT .* FROM lesson_plans WHERE id = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(planColumns))

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_ListBuildsFilter(t *testing.T) {
	store, mock := setupMockStore(t)
	created := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE \(LOWER\(title\) LIKE \$1 ESCAPE '\\' OR LOWER\(subject_areas::text\) LIKE \$2 ESCAPE '\\'\) AND grade = \$3 AND subject_areas::text LIKE \$4 ESCAPE '\\' ORDER BY created_at DESC, id LIMIT \$5 OFFSET \$6`).
		WithArgs("%cuento\\_%", "%cuento\\_%", 4, `%"LENGUAJES"%`, 10, 20).
		WillReturnRows(sqlmock.NewRows(planColumns).AddRow(planRow("plan-1", "Cuento_s", created)...))

	plans, err := store.List(context.Background(), Filter{Search: "Cuento_", Grade: 4, SubjectArea: "Lenguajes"}, 10, 20)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "plan-1", plans[0].ID)
}

func TestPostgresStore_Update(t *testing.T) {
	store, mock := setupMockStore(t)
	created := time.Date(2024, 9, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT .* FROM lesson_plans WHERE id = \$1`).
		WithArgs("plan-1").
		WillReturnRows(sqlmock.NewRows(planColumns).AddRow(planRow("plan-1", "Cuentos", created)...))
	mock.ExpectExec(`UPDATE lesson_plans SET .* WHERE id = \$17`).
		WithArgs(append(anyArgs(16), "plan-1")...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	notes := "Revisar con el grupo"
	plan, err := store.Update(context.Background(), "plan-1", Patch{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, plan.Notes)
	assert.Equal(t, "Cuentos", plan.Title)
	assert.True(t, plan.UpdatedAt.After(created))
}

func TestPostgresStore_Delete(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectExec(`DELETE FROM lesson_plans WHERE id = \$1`).
		WithArgs("plan-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM lesson_plans WHERE id = \$1`).
		WithArgs("plan-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.Delete(context.Background(), "plan-1"))
	assert.ErrorIs(t, store.Delete(context.Background(), "plan-2"), ErrNotFound)
}

func TestPostgresStore_Stats(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT level, grade, subject_areas FROM lesson_plans`).
		WillReturnRows(sqlmock.NewRows([]string{"level", "grade", "subject_areas"}).
			AddRow("Primaria", int64(4), `["LENGUAJES", "SABERES Y PENSAMIENTO CIENTÍFICO"]`).
			AddRow("Primaria", int64(4), `["LENGUAJES"]`).
			AddRow("Secundaria", int64(1), `[]`))

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(2), stats.ByGrade["Primaria 4°"])
	assert.Equal(t, int64(1), stats.ByGrade["Secundaria 1°"])
	assert.Equal(t, int64(2), stats.BySubjectArea["LENGUAJES"])
	assert.Equal(t, int64(1), stats.BySubjectArea["SABERES Y PENSAMIENTO CIENTÍFICO"])
}

func TestPostgresStore_QueryError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery(`SELECT level, grade, subject_areas FROM lesson_plans`).
		WillReturnError(sql.ErrConnDone)

	_, err := store.Stats(context.Background())
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
