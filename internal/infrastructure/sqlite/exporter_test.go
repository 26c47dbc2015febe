package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/foodbase/etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() *domain.FoodTable {
	return &domain.FoodTable{
		Columns: []domain.Column{
			domain.StandardColumn(domain.ColRecordID),
			domain.StandardColumn(domain.ColProductID),
			domain.StandardColumn(domain.ColName),
			domain.StandardColumn("PROTEIN(G)"),
			domain.StandardColumn("ENERGY(KCAL)"),
		},
		Rows: []domain.FoodRow{
			{Cells: []domain.Cell{domain.TextCell("10"), domain.TextCell("000111"), domain.TextCell(`BAR "CLASSIC"`), domain.NumberCell(12.5), domain.Missing()}},
			{Cells: []domain.Cell{domain.TextCell("20"), domain.TextCell("000222"), domain.TextCell("OAT MILK"), domain.NumberCell(1), domain.NumberCell(46)}},
		},
	}
}

func openDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foods.sqlite")
	require.NoError(t, NewExporter().Export(context.Background(), path, sampleTable()))

	db := openDB(t, path)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM branded_food`).Scan(&count))
	assert.Equal(t, 2, count)

	var name string
	var protein float64
	var energy sql.NullFloat64
	err := db.QueryRow(`SELECT "FOOD_NAME", "PROTEIN(G)", "ENERGY(KCAL)" FROM branded_food WHERE "FOOD_RECORD_ID" = ?`, "10").
		Scan(&name, &protein, &energy)
	require.NoError(t, err)
	assert.Equal(t, `BAR "CLASSIC"`, name)
	assert.Equal(t, 12.5, protein)
	assert.False(t, energy.Valid, "missing cell is stored as NULL")

	var indexes int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = 'branded_food'`).Scan(&indexes))
	assert.Equal(t, 2, indexes)
}

func TestExport_ReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foods.sqlite")
	require.NoError(t, os.WriteFile(path, []byte("not a database"), 0644))

	require.NoError(t, NewExporter().Export(context.Background(), path, sampleTable()))
	require.NoError(t, NewExporter().Export(context.Background(), path, sampleTable()))

	var count int
	require.NoError(t, openDB(t, path).QueryRow(`SELECT COUNT(*) FROM branded_food`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestExport_RaggedRow(t *testing.T) {
	table := sampleTable()
	table.Rows[1].Cells = table.Rows[1].Cells[:2]

	dir := t.TempDir()
	err := NewExporter().Export(context.Background(), filepath.Join(dir, "foods.sqlite"), table)
	assert.ErrorIs(t, err, domain.ErrMalformedTable)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed export left files behind")
}

func TestExport_FailureKeepsPreviousDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foods.sqlite")
	require.NoError(t, NewExporter().Export(context.Background(), path, sampleTable()))

	table := sampleTable()
	table.Rows[0].Cells = table.Rows[0].Cells[:1]
	err := NewExporter().Export(context.Background(), path, table)
	require.ErrorIs(t, err, domain.ErrMalformedTable)

	var count int
	require.NoError(t, openDB(t, path).QueryRow(`SELECT COUNT(*) FROM branded_food`).Scan(&count))
	assert.Equal(t, 2, count)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"VITAMIN A, IU(IU)"`, quoteIdent("VITAMIN A, IU(IU)"))
	assert.Equal(t, `"A""B"`, quoteIdent(`A"B`))
}
