package tile

import "slices"

// Record is a read-only view of one row of a tile section. It never copies
// column data; an optional cell id is exposed under its own column name.
type Record struct {
	cols       *Columns
	row        int
	cellColumn string
	cell       string
}

func (c *Columns) Record(row int) Record {
	return Record{cols: c, row: row}
}

// WithCell attaches a cell id readable under column.
func (r Record) WithCell(column, id string) Record {
	r.cellColumn, r.cell = column, id
	return r
}

func (r Record) Row() int     { return r.row }
func (r Record) Cell() string { return r.cell }

func (r Record) Get(name string) (any, bool) {
	if r.cellColumn != "" && name == r.cellColumn {
		return r.cell, true
	}
	if r.cols == nil {
		return nil, false
	}
	return r.cols.Get(r.row, name)
}

func (r Record) Number(name string) (float64, bool) {
	if r.cellColumn != "" && name == r.cellColumn {
		return 0, false
	}
	if r.cols == nil {
		return 0, false
	}
	return r.cols.Number(r.row, name)
}

func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

func (r Record) Keys() []string {
	var keys []string
	if r.cols != nil {
		keys = r.cols.Keys(r.row)
	}
	if r.cellColumn != "" && !slices.Contains(keys, r.cellColumn) {
		keys = append(keys, r.cellColumn)
	}
	return keys
}

// Map materializes the record. Used only at output boundaries.
func (r Record) Map() map[string]any {
	keys := r.Keys()
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		v, _ := r.Get(k)
		out[k] = v
	}
	return out
}
