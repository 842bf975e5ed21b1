// Package errors はプロジェクト全体のエラーハンドリングと警告システムを提供します。
// 画像の前処理・推定器の適用で発生するエラーを構造化された型として表現し、
// cockroachdb/errors によるスタックトレースを付与します。
package errors

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// ===========================================================================
//
//	グローバル警告ハンドリング
//
// ===========================================================================
var (
	warningMutex   sync.Mutex
	warningHandler func(w error)
)

// SetWarningHandler はライブラリ全体の警告ハンドラを設定します。
// nil を渡すと警告は破棄されます。
func SetWarningHandler(handler func(w error)) {
	warningMutex.Lock()
	defer warningMutex.Unlock()
	warningHandler = handler
}

// Warn は警告を発生させます。
func Warn(w error) {
	warningMutex.Lock()
	defer warningMutex.Unlock()

	if warningHandler != nil {
		warningHandler(w)
	}
}

// DataConversionWarning はデータの型が暗黙的に変換された場合に発生する警告です。
// 整数画像にNoDataマスクを適用すると出力はfloat64になります。
type DataConversionWarning struct {
	FromType string
	ToType   string
	Reason   string
}

func (w *DataConversionWarning) Error() string {
	return fmt.Sprintf("data converted from %s to %s. Reason: %s", w.FromType, w.ToType, w.Reason)
}

// MarshalZerologObject はzerologのイベントに構造化された警告情報を追加します。
func (w *DataConversionWarning) MarshalZerologObject(e *zerolog.Event) {
	e.Str("from_type", w.FromType).
		Str("to_type", w.ToType).
		Str("reason", w.Reason).
		Str("type", "DataConversionWarning")
}

// NewDataConversionWarning は新しいDataConversionWarningを作成します。
func NewDataConversionWarning(from, to, reason string) *DataConversionWarning {
	return &DataConversionWarning{FromType: from, ToType: to, Reason: reason}
}

// ===========================================================================
//
//	構造化されたエラー型
//
// ===========================================================================

// NotFittedError はモデルが未学習の状態で `Predict` や `KNeighbors` を呼び出した場合のエラーです。
type NotFittedError struct {
	ModelName string
	Method    string
}

func (e *NotFittedError) Error() string {
	return fmt.Sprintf("spatial: %s: this model is not fitted yet. Call Fit() before using %s()", e.ModelName, e.Method)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NotFittedError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("model_name", e.ModelName).
		Str("method", e.Method).
		Str("type", "NotFittedError")
}

// NewNotFittedError は新しいNotFittedErrorを作成し、スタックトレースを付与します。
func NewNotFittedError(modelName, method string) error {
	return errors.WithStack(&NotFittedError{ModelName: modelName, Method: method})
}

// DimensionError は入力データの次元が期待値と異なる場合のエラーです。
type DimensionError struct {
	Op       string
	Expected int
	Got      int
	Axis     int // 0 for rows, 1 for columns/features
}

func (e *DimensionError) axisName() string {
	if e.Axis == 0 {
		return "rows"
	}
	return "features"
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("spatial: %s: dimension mismatch on axis %d (%s). Expected %d, got %d",
		e.Op, e.Axis, e.axisName(), e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *DimensionError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("operation", e.Op).
		Int("expected", e.Expected).
		Int("got", e.Got).
		Int("axis", e.Axis).
		Str("axis_name", e.axisName()).
		Str("type", "DimensionError")
}

// NewDimensionError は新しいDimensionErrorを作成し、スタックトレースを付与します。
func NewDimensionError(op string, expected, got, axis int) error {
	return errors.WithStack(&DimensionError{Op: op, Expected: expected, Got: got, Axis: axis})
}

// ValueError は引数の値が不適切または不正な場合に発生するエラーです。
type ValueError struct {
	Op      string
	Message string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("spatial: %s: %s", e.Op, e.Message)
}

// NewValueError は新しいValueErrorを作成し、スタックトレースを付与します。
func NewValueError(op, message string) error {
	return errors.WithStack(&ValueError{Op: op, Message: message})
}

// ModelError は機械学習モデルに関する一般的なエラーです。
type ModelError struct {
	Op   string
	Kind string
	Err  error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("spatial: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("spatial: %s: %s", e.Op, e.Kind)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// NewModelError は新しいModelErrorを作成し、スタックトレースを付与します。
func NewModelError(op, kind string, err error) error {
	return errors.WithStack(&ModelError{Op: op, Kind: kind, Err: err})
}

// ===========================================================================
//
//	画像・NoData 関連のエラー型
//
// ===========================================================================

// NoDataTypeError は NoData の指定がスカラーでも数値列でもない場合のエラーです。
type NoDataTypeError struct {
	TypeName string
}

func (e *NoDataTypeError) Error() string {
	return fmt.Sprintf("Invalid type `%s` for `nodata_vals`. "+
		"Provide a single number to apply to all bands, a sequence of numbers, or None.", e.TypeName)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NoDataTypeError) MarshalZerologObject(event *zerolog.Event) {
	event.Str("type_name", e.TypeName).
		Str("type", "NoDataTypeError")
}

// NewNoDataTypeError は新しいNoDataTypeErrorを作成し、スタックトレースを付与します。
func NewNoDataTypeError(typeName string) error {
	return errors.WithStack(&NoDataTypeError{TypeName: typeName})
}

// NoDataLengthError は NoData 値の数がバンド数と一致しない場合のエラーです。
type NoDataLengthError struct {
	Expected int
	Got      int
}

func (e *NoDataLengthError) Error() string {
	return fmt.Sprintf("Expected %d NoData values but got %d. "+
		"The length of `nodata_vals` must match the number of bands.", e.Expected, e.Got)
}

// MarshalZerologObject はzerologのイベントに構造化されたエラー情報を追加します。
func (e *NoDataLengthError) MarshalZerologObject(event *zerolog.Event) {
	event.Int("expected", e.Expected).
		Int("got", e.Got).
		Str("type", "NoDataLengthError")
}

// NewNoDataLengthError は新しいNoDataLengthErrorを作成し、スタックトレースを付与します。
func NewNoDataLengthError(expected, got int) error {
	return errors.WithStack(&NoDataLengthError{Expected: expected, Got: got})
}

// UnsupportedImageTypeError はサポートされていない画像表現が渡された場合のエラーです。
type UnsupportedImageTypeError struct {
	TypeName string
}

func (e *UnsupportedImageTypeError) Error() string {
	return fmt.Sprintf("Unsupported image type `%s`.", e.TypeName)
}

// NewUnsupportedImageTypeError は新しいUnsupportedImageTypeErrorを作成し、スタックトレースを付与します。
func NewUnsupportedImageTypeError(typeName string) error {
	return errors.WithStack(&UnsupportedImageTypeError{TypeName: typeName})
}

// ===========================================================================
//
//	cockroachdb/errors ラッパー関数
//
// ===========================================================================

// Is はエラーが特定のターゲットエラーかどうかを判定します。
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As はエラーが特定の型にキャスト可能かどうかを判定します。
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap は既存のエラーをメッセージ付きでラップします。
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// Wrapf は既存のエラーをフォーマット文字列でラップします。
func Wrapf(err error, format string, args ...interface{}) error {
	return errors.Wrapf(err, format, args...)
}

// New は新しいエラーを作成します。
func New(message string) error {
	return errors.New(message)
}

// Newf は新しいフォーマット済みエラーを作成します。
func Newf(format string, args ...interface{}) error {
	return errors.Newf(format, args...)
}

// WithStack はエラーにスタックトレースを付与します。
func WithStack(err error) error {
	return errors.WithStack(err)
}

// Join は複数のエラーをまとめます。nil は無視され、全て nil なら nil を返します。
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// ===========================================================================
//
//	共通エラー変数
//
// ===========================================================================

var (
	// ErrEmptyData は空のデータが渡された場合のエラーです。
	ErrEmptyData = New("empty data")

	// ErrSingularMatrix は特異行列の場合のエラーです。
	ErrSingularMatrix = New("singular matrix")

	// ErrChecksumMismatch はダウンロードしたファイルのハッシュが登録値と一致しない場合のエラーです。
	ErrChecksumMismatch = New("checksum mismatch")
)
