package datasets

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Table is a numeric table with named columns and an optional row index.
type Table struct {
	Columns []string
	Index   []string
	Data    *mat.Dense
}

// Col returns the values of the named column.
func (t *Table) Col(name string) ([]float64, bool) {
	j := slices.Index(t.Columns, name)
	if j < 0 {
		return nil, false
	}
	return mat.Col(nil, j, t.Data), true
}

// Select returns a new table with the named columns in the given order.
func (t *Table) Select(names ...string) (*Table, error) {
	rows, _ := t.Data.Dims()
	out := mat.NewDense(rows, len(names), nil)
	for k, name := range names {
		col, ok := t.Col(name)
		if !ok {
			return nil, errors.NewValueError("Table.Select", fmt.Sprintf("no column %q", name))
		}
		out.SetCol(k, col)
	}
	return &Table{Columns: slices.Clone(names), Index: slices.Clone(t.Index), Data: out}, nil
}

// readCSV reads a CSV with a header row. The first column is the row index;
// every other column must be numeric. Empty cells become NaN.
func readCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open table")
	}
	defer file.Close()
	return parseCSV(file)
}

func parseCSV(r io.Reader) (*Table, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "parse table")
	}
	if len(records) < 2 || len(records[0]) < 2 {
		return nil, errors.NewModelError("parseCSV", "empty data", errors.ErrEmptyData)
	}

	header, rows := records[0], records[1:]
	data := make([]float64, 0, len(rows)*(len(header)-1))
	for i, rec := range rows {
		for j, cell := range rec[1:] {
			if cell == "" {
				data = append(data, math.NaN())
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %q", i+1, header[j+1])
			}
			data = append(data, v)
		}
	}
	return &Table{
		Columns: slices.Clone(header[1:]),
		Index:   lo.Map(rows, func(rec []string, _ int) string { return rec[0] }),
		Data:    mat.NewDense(len(rows), len(header)-1, data),
	}, nil
}
