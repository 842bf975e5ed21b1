package raster

import "golang.org/x/exp/constraints"

// DType records the sample type an image was created from. Samples are always
// stored as float64; the DType decides whether NaN can occur in the data and
// therefore whether a NoData mask is needed.
type DType int

const (
	Float64 DType = iota
	Float32
	Uint8
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Uint64
	Int64
)

// IsFloat reports whether the type is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float64 || d == Float32
}

func (d DType) String() string {
	switch d {
	case Float64:
		return "float64"
	case Float32:
		return "float32"
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Uint64:
		return "uint64"
	case Int64:
		return "int64"
	default:
		return "unknown"
	}
}

// Number is the set of sample types accepted by NewArrayOf.
type Number interface {
	constraints.Integer | constraints.Float
}

func dtypeOf[T Number]() DType {
	var zero T
	switch any(zero).(type) {
	case float32:
		return Float32
	case uint8:
		return Uint8
	case int8:
		return Int8
	case uint16:
		return Uint16
	case int16:
		return Int16
	case uint32:
		return Uint32
	case int32:
		return Int32
	case uint64, uint, uintptr:
		return Uint64
	case int64, int:
		return Int64
	default:
		return Float64
	}
}

// promote returns the common type of a and b. Mixed types fall back to Float64.
func promote(a, b DType) DType {
	if a == b {
		return a
	}
	return Float64
}
