package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModelError(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		kind    string
		err     error
		wantMsg string
	}{
		{
			name:    "with original error",
			op:      "Fit",
			kind:    "invalid input",
			err:     fmt.Errorf("test error"),
			wantMsg: "spatial: Fit: invalid input: test error",
		},
		{
			name:    "without original error",
			op:      "Predict",
			kind:    "not fitted",
			err:     nil,
			wantMsg: "spatial: Predict: not fitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewModelError(tt.op, tt.kind, tt.err)
			assert.Equal(t, tt.wantMsg, err.Error())

			// スタックトレースの存在確認
			assert.Contains(t, fmt.Sprintf("%+v", err), "errors_test.go")

			var modelErr *ModelError
			assert.True(t, As(err, &modelErr))
		})
	}
}

func TestNewDimensionError(t *testing.T) {
	err := NewDimensionError("Unflatten", 16, 12, 0)
	assert.Equal(t, "spatial: Unflatten: dimension mismatch on axis 0 (rows). Expected 16, got 12", err.Error())

	var dimErr *DimensionError
	require.True(t, As(err, &dimErr))
	assert.Equal(t, 16, dimErr.Expected)
	assert.Equal(t, 12, dimErr.Got)
}

func TestNoDataErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "type",
			err:  NewNoDataTypeError("string"),
			want: "Invalid type `string` for `nodata_vals`. Provide a single number to apply to all bands, a sequence of numbers, or None.",
		},
		{
			name: "length",
			err:  NewNoDataLengthError(3, 1),
			want: "Expected 3 NoData values but got 1. The length of `nodata_vals` must match the number of bands.",
		},
		{
			name: "unsupported image",
			err:  NewUnsupportedImageTypeError("[][]float64"),
			want: "Unsupported image type `[][]float64`.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(NewNoDataLengthError(4, 2), "wrap image")

	var lenErr *NoDataLengthError
	require.True(t, As(err, &lenErr))
	assert.Equal(t, 4, lenErr.Expected)
	assert.True(t, strings.HasPrefix(err.Error(), "wrap image: "))
}

func TestWarn(t *testing.T) {
	var got []error
	SetWarningHandler(func(w error) { got = append(got, w) })
	defer SetWarningHandler(nil)

	Warn(NewDataConversionWarning("int16", "float64", "NoData mask applied"))
	require.Len(t, got, 1)
	assert.Equal(t, "data converted from int16 to float64. Reason: NoData mask applied", got[0].Error())

	SetWarningHandler(nil)
	Warn(NewDataConversionWarning("a", "b", "c"))
	assert.Len(t, got, 1)
}

func TestRecover(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		err := SafeExecute("chunk", func() error { panic("boom") })
		var panicErr *PanicError
		require.True(t, As(err, &panicErr))
		assert.Equal(t, "panic in chunk: boom", panicErr.Error())
		assert.NotEmpty(t, panicErr.StackTrace)
	})

	t.Run("no panic", func(t *testing.T) {
		assert.NoError(t, SafeExecute("chunk", func() error { return nil }))
	})

	t.Run("existing error", func(t *testing.T) {
		original := fmt.Errorf("original")
		fn := func() (err error) {
			defer Recover(&err, "chunk")
			err = original
			panic("late")
		}
		err := fn()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panic in chunk: late")
		assert.ErrorIs(t, err, original)
	})
}
