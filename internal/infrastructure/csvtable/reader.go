package csvtable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/foodbase/etl/internal/domain"
)

// Reader loads a food table written by Writer. Column roles are recovered
// from the header labels.
type Reader struct{}

// NewReader creates a new table reader
func NewReader() *Reader {
	return &Reader{}
}

// ReadTable reads the food table at path
func (r *Reader) ReadTable(ctx context.Context, path string) (*domain.FoodTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMalformedTable, err)
	}
	defer file.Close()

	table, err := Decode(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// Decode parses a food table from in
func Decode(ctx context.Context, in io.Reader) (*domain.FoodTable, error) {
	reader := newReader(in)
	reader.ReuseRecord = false

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty table", domain.ErrMalformedTable)
		}
		return nil, fmt.Errorf("%w: header: %w", domain.ErrMalformedTable, err)
	}

	table := &domain.FoodTable{Columns: make([]domain.Column, len(header))}
	for i, label := range header {
		table.Columns[i] = domain.StandardColumn(strings.TrimPrefix(label, "\ufeff"))
	}

	unparsed := 0
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", domain.ErrMalformedTable, line, err)
		}
		if line%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row := domain.FoodRow{Cells: make([]domain.Cell, len(table.Columns))}
		for i, col := range table.Columns {
			if i >= len(record) {
				break
			}
			if col.IsText() {
				row.Cells[i] = domain.TextCell(record[i])
				continue
			}
			if strings.TrimSpace(record[i]) == "" {
				continue
			}
			if v, ok := parseNumber(record[i]); ok {
				row.Cells[i] = domain.NumberCell(v)
			} else {
				unparsed++
			}
		}
		table.Rows = append(table.Rows, row)
	}

	if unparsed > 0 {
		log.Printf("[READER] %d nutrient cells were not numeric and read as missing", unparsed)
	}
	return table, nil
}
