// Package sqlite exports the denormalized food table to a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/foodbase/etl/internal/domain"
	_ "modernc.org/sqlite"
)

// DefaultTableName is the table the food rows are written to
const DefaultTableName = "branded_food"

// Exporter writes a FoodTable into a fresh SQLite database file
type Exporter struct {
	tableName string
}

// NewExporter creates a new exporter writing to DefaultTableName
func NewExporter() *Exporter {
	return &Exporter{tableName: DefaultTableName}
}

// Export replaces the database at path with one holding table.
// Nutrient columns are REAL, everything else TEXT; missing cells are NULL.
// The database is built in a temp file next to path and renamed into place,
// so a failed export leaves any previous database untouched.
func (e *Exporter) Export(ctx context.Context, path string, table *domain.FoodTable) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp database: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := e.build(ctx, tmpName, table); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move database into place: %w", err)
	}

	log.Printf("[SQLITE] Exported %d rows to %s", len(table.Rows), path)
	return nil
}

// build writes table into a new database at path
func (e *Exporter) build(ctx context.Context, path string, table *domain.FoodTable) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	defs := make([]string, len(table.Columns))
	names := make([]string, len(table.Columns))
	for i, c := range table.Columns {
		names[i] = quoteIdent(c.Label)
		defs[i] = names[i] + " " + columnType(c)
	}

	tbl := quoteIdent(e.tableName)
	if _, err := db.ExecContext(ctx, "CREATE TABLE "+tbl+" ("+strings.Join(defs, ", ")+")"); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimRight(strings.Repeat("?,", len(names)), ",")
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO "+tbl+" ("+strings.Join(names, ", ")+") VALUES ("+placeholders+")")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(table.Columns))
	for n, row := range table.Rows {
		if len(row.Cells) != len(table.Columns) {
			return fmt.Errorf("%w: row %d has %d cells, want %d", domain.ErrMalformedTable, n, len(row.Cells), len(table.Columns))
		}
		for i, c := range table.Columns {
			args[i] = cellValue(c, row.Cells[i])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", n, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	for _, label := range []string{domain.ColRecordID, domain.ColProductID} {
		if table.ColumnIndex(label) < 0 {
			continue
		}
		idx := quoteIdent(fmt.Sprintf("idx_%s_%s", e.tableName, strings.ToLower(label)))
		if _, err := db.ExecContext(ctx, "CREATE INDEX "+idx+" ON "+tbl+" ("+quoteIdent(label)+")"); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	return nil
}

func columnType(c domain.Column) string {
	if c.IsText() {
		return "TEXT"
	}
	return "REAL"
}

func cellValue(c domain.Column, cell domain.Cell) any {
	if !cell.Valid {
		return nil
	}
	if c.IsText() {
		return cell.Text
	}
	return cell.Num
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
