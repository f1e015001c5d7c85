package querybuilder

// InsertRows holds one value slice per inserted row
type InsertRows [][]interface{}

// Width is the number of values in the first row
func (rows InsertRows) Width() int {
	if len(rows) == 0 {
		return 0
	}
	return len(rows[0])
}
