// Package dataset provides the columnar table that pipeline stages exchange:
// raw weekly snapshots, engineered feature tables and training frames. Columns
// are ordered and nullable so "no data" stays distinct from "zero value" until
// the late imputation step right before model fitting.
package dataset

import (
	"fmt"
)

type Kind string

const (
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Column holds one named, typed, nullable column.
type Column struct {
	Name    string    `json:"name"`
	Kind    Kind      `json:"kind"`
	Floats  []float64 `json:"floats,omitempty"`
	Strings []string  `json:"strings,omitempty"`
	Null    []bool    `json:"null"`
}

// Frame is an ordered collection of equal-length columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	rows  int
}

func NewFrame() *Frame {
	return &Frame{index: make(map[string]int)}
}

func (f *Frame) NumRows() int { return f.rows }

// Columns returns column names in declaration order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

func (f *Frame) HasColumn(name string) bool {
	_, ok := f.index[name]
	return ok
}

func (f *Frame) column(name string) *Column {
	if i, ok := f.index[name]; ok {
		return f.cols[i]
	}
	return nil
}

func (f *Frame) addColumn(c *Column) error {
	n := len(c.Null)
	if len(f.cols) == 0 {
		f.rows = n
	} else if n != f.rows {
		return fmt.Errorf("column %q has %d rows, frame has %d", c.Name, n, f.rows)
	}
	if _, exists := f.index[c.Name]; exists {
		return fmt.Errorf("column %q already exists", c.Name)
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// AddFloats adds a float column. A nil null mask means all values are valid.
func (f *Frame) AddFloats(name string, values []float64, null []bool) error {
	if null == nil {
		null = make([]bool, len(values))
	}
	if len(values) != len(null) {
		return fmt.Errorf("column %q: values/null length mismatch", name)
	}
	return f.addColumn(&Column{Name: name, Kind: KindFloat, Floats: values, Null: null})
}

// AddStrings adds a string column. A nil null mask means all values are valid.
func (f *Frame) AddStrings(name string, values []string, null []bool) error {
	if null == nil {
		null = make([]bool, len(values))
	}
	if len(values) != len(null) {
		return fmt.Errorf("column %q: values/null length mismatch", name)
	}
	return f.addColumn(&Column{Name: name, Kind: KindString, Strings: values, Null: null})
}

// FloatAt returns the float value at row i, with ok=false for nulls,
// missing columns and string columns.
func (f *Frame) FloatAt(name string, i int) (float64, bool) {
	c := f.column(name)
	if c == nil || c.Kind != KindFloat || i < 0 || i >= f.rows || c.Null[i] {
		return 0, false
	}
	return c.Floats[i], true
}

// StringAt returns the string value at row i, with ok=false for nulls and
// missing columns.
func (f *Frame) StringAt(name string, i int) (string, bool) {
	c := f.column(name)
	if c == nil || c.Kind != KindString || i < 0 || i >= f.rows || c.Null[i] {
		return "", false
	}
	return c.Strings[i], true
}

// Rename changes a column's name in place. Renaming a missing column is a
// no-op; renaming onto an existing name is an error.
func (f *Frame) Rename(old, new string) error {
	i, ok := f.index[old]
	if !ok {
		return nil
	}
	if _, exists := f.index[new]; exists {
		return fmt.Errorf("cannot rename %q to existing column %q", old, new)
	}
	delete(f.index, old)
	f.index[new] = i
	f.cols[i].Name = new
	return nil
}

// Select returns a new frame holding only the named columns, in the given
// order. Columns absent from the frame are silently skipped.
func (f *Frame) Select(names []string) *Frame {
	out := NewFrame()
	for _, name := range names {
		c := f.column(name)
		if c == nil {
			continue
		}
		cp := &Column{Name: c.Name, Kind: c.Kind, Null: append([]bool(nil), c.Null...)}
		if c.Kind == KindFloat {
			cp.Floats = append([]float64(nil), c.Floats...)
		} else {
			cp.Strings = append([]string(nil), c.Strings...)
		}
		// addColumn cannot fail here: names are unique and lengths match
		_ = out.addColumn(cp)
	}
	return out
}

// FilterRows returns a new frame with only the rows where keep returns true.
func (f *Frame) FilterRows(keep func(i int) bool) *Frame {
	var idx []int
	for i := 0; i < f.rows; i++ {
		if keep(i) {
			idx = append(idx, i)
		}
	}
	out := NewFrame()
	for _, c := range f.cols {
		cp := &Column{Name: c.Name, Kind: c.Kind, Null: make([]bool, len(idx))}
		if c.Kind == KindFloat {
			cp.Floats = make([]float64, len(idx))
			for j, i := range idx {
				cp.Floats[j] = c.Floats[i]
				cp.Null[j] = c.Null[i]
			}
		} else {
			cp.Strings = make([]string, len(idx))
			for j, i := range idx {
				cp.Strings[j] = c.Strings[i]
				cp.Null[j] = c.Null[i]
			}
		}
		_ = out.addColumn(cp)
	}
	return out
}

// Matrix extracts the named columns as a dense row-major matrix, in exactly
// the given column order. Missing columns and string columns are synthesized
// as 0.0, and nulls are filled with 0.0. This is the single late-stage
// null-as-zero imputation point shared by training and inference.
func (f *Frame) Matrix(names []string) [][]float64 {
	out := make([][]float64, f.rows)
	for i := range out {
		out[i] = make([]float64, len(names))
	}
	for j, name := range names {
		c := f.column(name)
		if c == nil || c.Kind != KindFloat {
			continue
		}
		for i := 0; i < f.rows; i++ {
			if !c.Null[i] {
				out[i][j] = c.Floats[i]
			}
		}
	}
	return out
}

// FloatVector extracts a single float column with nulls filled as 0.0.
func (f *Frame) FloatVector(name string) []float64 {
	out := make([]float64, f.rows)
	c := f.column(name)
	if c == nil || c.Kind != KindFloat {
		return out
	}
	for i := 0; i < f.rows; i++ {
		if !c.Null[i] {
			out[i] = c.Floats[i]
		}
	}
	return out
}

// NonNullCount returns how many rows carry a value for the named column.
func (f *Frame) NonNullCount(name string) int {
	c := f.column(name)
	if c == nil {
		return 0
	}
	n := 0
	for _, isNull := range c.Null {
		if !isNull {
			n++
		}
	}
	return n
}

// Concat stacks frames vertically. The output column set is the union of all
// input columns in first-seen order; rows from frames lacking a column get
// nulls there. Column kinds must agree across frames.
func Concat(frames []*Frame) (*Frame, error) {
	total := 0
	var order []string
	kinds := make(map[string]Kind)
	for _, fr := range frames {
		total += fr.rows
		for _, c := range fr.cols {
			if k, seen := kinds[c.Name]; seen {
				if k != c.Kind {
					return nil, fmt.Errorf("column %q has conflicting kinds %s and %s", c.Name, k, c.Kind)
				}
				continue
			}
			kinds[c.Name] = c.Kind
			order = append(order, c.Name)
		}
	}

	out := NewFrame()
	for _, name := range order {
		kind := kinds[name]
		col := &Column{Name: name, Kind: kind, Null: make([]bool, total)}
		if kind == KindFloat {
			col.Floats = make([]float64, total)
		} else {
			col.Strings = make([]string, total)
		}
		off := 0
		for _, fr := range frames {
			src := fr.column(name)
			for i := 0; i < fr.rows; i++ {
				if src == nil {
					col.Null[off+i] = true
					continue
				}
				col.Null[off+i] = src.Null[i]
				if kind == KindFloat {
					col.Floats[off+i] = src.Floats[i]
				} else {
					col.Strings[off+i] = src.Strings[i]
				}
			}
			off += fr.rows
		}
		_ = out.addColumn(col)
	}
	return out, nil
}
