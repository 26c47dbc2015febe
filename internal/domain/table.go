package domain

// ColumnRole tags what a column of the food table holds
type ColumnRole int

const (
	RoleIdentifier ColumnRole = iota
	RoleDescriptive
	RoleNutrient
)

func (r ColumnRole) String() string {
	switch r {
	case RoleIdentifier:
		return "identifier"
	case RoleDescriptive:
		return "descriptive"
	case RoleNutrient:
		return "nutrient"
	}
	return "unknown"
}

// Canonical column labels of the denormalized food table
const (
	ColRecordID    = "FOOD_RECORD_ID"
	ColProductID   = "FOOD_ID"
	ColName        = "FOOD_NAME"
	ColServingSize = "FOOD_SERVING_SIZE"
	ColIngredients = "FOOD_INGREDIENTS"
	ColBrandOwner  = "FOOD_BRAND_OWNER"
	ColCategory    = "FOOD_CATEGORY"
)

// Column describes one column of a FoodTable
type Column struct {
	Label    string
	Role     ColumnRole
	LongForm bool // free text that only gets whitespace collapsed
}

// IsText reports whether the column holds text cells
func (c Column) IsText() bool {
	return c.Role != RoleNutrient
}

// StandardColumn returns the column definition for a canonical label.
// Unknown labels are nutrient columns.
func StandardColumn(label string) Column {
	switch label {
	case ColRecordID, ColProductID:
		return Column{Label: label, Role: RoleIdentifier}
	case ColIngredients:
		return Column{Label: label, Role: RoleDescriptive, LongForm: true}
	case ColName, ColServingSize, ColBrandOwner, ColCategory:
		return Column{Label: label, Role: RoleDescriptive}
	}
	return Column{Label: label, Role: RoleNutrient}
}

// Cell is a single value of a FoodTable: text, number or missing
type Cell struct {
	Text  string
	Num   float64
	Valid bool
}

// TextCell returns a text cell; empty text is missing
func TextCell(s string) Cell {
	return Cell{Text: s, Valid: s != ""}
}

// NumberCell returns a numeric cell
func NumberCell(v float64) Cell {
	return Cell{Num: v, Valid: true}
}

// Missing returns a missing cell
func Missing() Cell {
	return Cell{}
}

// FoodRow is one row of a FoodTable, cells aligned with the table's columns
type FoodRow struct {
	Cells []Cell
}

// FoodTable is a column-tagged table; stages select columns by role, not position
type FoodTable struct {
	Columns []Column
	Rows    []FoodRow
}

// ColumnIndex returns the position of the column with label, or -1
func (t *FoodTable) ColumnIndex(label string) int {
	for i, c := range t.Columns {
		if c.Label == label {
			return i
		}
	}
	return -1
}

// ColumnsWithRole returns the positions of all columns with the given role
func (t *FoodTable) ColumnsWithRole(role ColumnRole) []int {
	var idx []int
	for i, c := range t.Columns {
		if c.Role == role {
			idx = append(idx, i)
		}
	}
	return idx
}

// Value returns the cell of row under label, or a missing cell when there is no such column
func (t *FoodTable) Value(row FoodRow, label string) Cell {
	i := t.ColumnIndex(label)
	if i < 0 || i >= len(row.Cells) {
		return Missing()
	}
	return row.Cells[i]
}

// MissingNutrients counts the missing nutrient cells of a row
func (t *FoodTable) MissingNutrients(row FoodRow) int {
	n := 0
	for _, i := range t.ColumnsWithRole(RoleNutrient) {
		if !row.Cells[i].Valid {
			n++
		}
	}
	return n
}
