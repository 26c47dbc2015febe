package csvtable

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// Writer writes a FoodTable as comma-separated text. Text cells and headers are
// always quoted, numbers never are, and a missing number is an empty field.
type Writer struct{}

// NewWriter creates a new table writer
func NewWriter() *Writer {
	return &Writer{}
}

// WriteTable writes table to path. The file is written under a temporary name
// in the same directory and renamed into place once complete.
func (w *Writer) WriteTable(ctx context.Context, path string, table *domain.FoodTable) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buf := bufio.NewWriterSize(tmp, 1<<20)
	if err := Encode(ctx, buf, table); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move output file into place: %w", err)
	}
	committed = true

	log.Printf("[WRITER] Wrote %d rows x %d columns to %s", len(table.Rows), len(table.Columns), path)
	return nil
}

// Encode writes table to out
func Encode(ctx context.Context, out io.Writer, table *domain.FoodTable) error {
	w := bufio.NewWriter(out)

	for i, col := range table.Columns {
		if i > 0 {
			w.WriteByte(',')
		}
		writeQuoted(w, col.Label)
	}
	w.WriteByte('\n')

	for r, row := range table.Rows {
		if r%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if len(row.Cells) != len(table.Columns) {
			return fmt.Errorf("%w: row %d has %d cells for %d columns", domain.ErrMalformedTable, r, len(row.Cells), len(table.Columns))
		}
		for i, cell := range row.Cells {
			if i > 0 {
				w.WriteByte(',')
			}
			switch {
			case table.Columns[i].IsText():
				writeQuoted(w, cell.Text)
			case cell.Valid:
				w.WriteString(FormatNumber(cell.Num))
			}
		}
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func writeQuoted(w *bufio.Writer, s string) {
	w.WriteByte('"')
	w.WriteString(strings.ReplaceAll(s, `"`, `""`))
	w.WriteByte('"')
}
