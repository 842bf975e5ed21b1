package raster

import (
	"context"
	"fmt"
	"reflect"
	"slices"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
	"github.com/samber/lo"
)

// VariableDim is the band dimension created when a Dataset is stacked.
const VariableDim = "variable"

// Variable is a named single-band layer of a Dataset.
type Variable struct {
	Name  string
	Data  Source
	Attrs Attrs
}

// FillValue returns the variable's _FillValue attribute.
func (v Variable) FillValue() (float64, bool) { return v.Attrs.FillValue() }

// Dataset is a collection of single-band variables on a shared (y, x) grid.
// Variable order is preserved and defines band order when stacked.
type Dataset struct {
	meta
	vars []Variable
}

// NewDataset creates a dataset. All variables must be single-band with the
// same height and width, and names must be unique. WithBandDim names the
// dimension used by ToDataArray (default "variable").
func NewDataset(vars []Variable, opts ...Option) (*Dataset, error) {
	m := newMeta(append([]Option{WithBandDim(VariableDim)}, opts...))
	return newDataset(vars, m)
}

func newDataset(vars []Variable, m meta) (*Dataset, error) {
	if len(vars) == 0 {
		return nil, errors.NewModelError("NewDataset", "empty data", errors.ErrEmptyData)
	}
	names := lo.Map(vars, func(v Variable, _ int) string { return v.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return nil, errors.NewValueError("NewDataset", fmt.Sprintf("duplicate variable names %q", dups))
	}

	_, height, width := vars[0].Data.Shape()
	out := make([]Variable, len(vars))
	for i, v := range vars {
		bands, h, w := v.Data.Shape()
		if bands != 1 {
			return nil, errors.NewValueError("NewDataset",
				fmt.Sprintf("variable %q has %d bands, expected 1", v.Name, bands))
		}
		if h != height {
			return nil, errors.NewDimensionError("NewDataset", height, h, 0)
		}
		if w != width {
			return nil, errors.NewDimensionError("NewDataset", width, w, 1)
		}
		out[i] = Variable{Name: v.Name, Data: v.Data, Attrs: v.Attrs.clone()}
	}
	if err := m.validateCoords("NewDataset", height, width); err != nil {
		return nil, err
	}
	m.bands = nil
	return &Dataset{meta: m, vars: out}, nil
}

func (a Attrs) clone() Attrs {
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Names returns the variable names in order.
func (ds *Dataset) Names() []string {
	return lo.Map(ds.vars, func(v Variable, _ int) string { return v.Name })
}

// Vars returns the variables in order.
func (ds *Dataset) Vars() []Variable { return slices.Clone(ds.vars) }

// Var returns the variable called name.
func (ds *Dataset) Var(name string) (Variable, bool) {
	return lo.Find(ds.vars, func(v Variable) bool { return v.Name == name })
}

// Shape returns (variables, height, width).
func (ds *Dataset) Shape() (int, int, int) {
	_, h, w := ds.vars[0].Data.Shape()
	return len(ds.vars), h, w
}

// Chunk returns a lazy copy of ds with the given chunk size.
func (ds *Dataset) Chunk(y, x int) *Dataset {
	c := &Dataset{meta: ds.meta.clone(), vars: slices.Clone(ds.vars)}
	c.chunks = Chunks{Y: y, X: x}
	return c
}

// ToDataArray stacks the variables along the band dimension. Band labels are
// the variable names; dataset attributes become the array's attributes.
// The result is lazy if ds is.
func (ds *Dataset) ToDataArray() *DataArray {
	srcs := lo.Map(ds.vars, func(v Variable, _ int) Source { return v.Data })
	m := ds.meta.clone()
	m.bands = ds.Names()
	return &DataArray{meta: m, src: &stackSource{srcs: srcs}}
}

// Compute returns an in-memory, unchunked copy of ds. Variables split from
// the same multi-band source are computed together.
func (ds *Dataset) Compute(ctx context.Context, opts ...ComputeOption) (*Dataset, error) {
	parents := make(map[Source]*Array)
	vars := make([]Variable, len(ds.vars))
	for i, v := range ds.vars {
		var arr *Array
		if bs, ok := v.Data.(*bandSource); ok && reflect.TypeOf(bs.src).Comparable() {
			parent, seen := parents[bs.src]
			if !seen {
				var err error
				parent, err = Compute(ctx, bs.src, ds.chunks, opts...)
				if err != nil {
					return nil, errors.Wrapf(err, "compute variable %q", v.Name)
				}
				parents[bs.src] = parent
			}
			arr = parent.SelectBand(bs.band)
		} else {
			var err error
			arr, err = Compute(ctx, v.Data, ds.chunks, opts...)
			if err != nil {
				return nil, errors.Wrapf(err, "compute variable %q", v.Name)
			}
		}
		vars[i] = Variable{Name: v.Name, Data: arr, Attrs: v.Attrs.clone()}
	}
	m := ds.meta.clone()
	m.chunks = Chunks{}
	return &Dataset{meta: m, vars: vars}, nil
}
