package preprocessing

import (
	"fmt"
	"math"
	"reflect"

	"github.com/YuminosukeSato/scigo-spatial/pkg/errors"
)

// ValidateNoData はユーザー指定の NoData をバンドごとの値に正規化する。
//
// 受け付ける形式:
//   - nil: NoData なし (nil を返す)
//   - 数値スカラー: 全バンドに同じ値を適用する
//   - 数値のスライスまたは配列: 長さは nBands と一致すること
//
// スライス要素の nil はそのバンドに NoData がないことを表し、NaN になる。
// NaN は比較で一致しないため、マスクには影響しない。
//
// 長さの不一致は要素の型より先に検査され *errors.NoDataLengthError を返す。
// bool・文字列・マップなどは *errors.NoDataTypeError を返す。
func ValidateNoData(nodata any, nBands int) ([]float64, error) {
	if nodata == nil {
		return nil, nil
	}

	if v, ok := numeric(reflect.ValueOf(nodata)); ok {
		vals := make([]float64, nBands)
		for i := range vals {
			vals[i] = v
		}
		return vals, nil
	}

	rv := reflect.ValueOf(nodata)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errors.NewNoDataTypeError(typeName(nodata))
	}

	if rv.Len() != nBands {
		return nil, errors.NewNoDataLengthError(nBands, rv.Len())
	}
	vals := make([]float64, rv.Len())
	for i := range vals {
		elem := rv.Index(i)
		if elem.Kind() == reflect.Interface {
			if elem.IsNil() {
				vals[i] = math.NaN()
				continue
			}
			elem = elem.Elem()
		}
		v, ok := numeric(elem)
		if !ok {
			return nil, errors.NewNoDataTypeError(typeName(nodata))
		}
		vals[i] = v
	}
	return vals, nil
}

// numeric converts integer and floating point kinds. bool is rejected.
func numeric(v reflect.Value) (float64, bool) {
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(v.Uint()), true
	case reflect.Float32, reflect.Float64:
		return v.Float(), true
	default:
		return 0, false
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
