package common

import (
	"errors"
	"fmt"
)

// ErrorKind 错误的分类
type ErrorKind uint8

// 错误分类
const (
	KindUnknown ErrorKind = iota
	KindMissingConfiguration
	KindValidation
	KindStoreUnavailable
	KindStoreCorrupt
	KindDuplicateID
)

var errorKindStrings = map[ErrorKind]string{
	KindUnknown:              "Unknown",
	KindMissingConfiguration: "MissingConfiguration",
	KindValidation:           "ValidationError",
	KindStoreUnavailable:     "StoreUnavailable",
	KindStoreCorrupt:         "StoreCorrupt",
	KindDuplicateID:          "DuplicateId",
}

func (p ErrorKind) String() string {
	if s, ok := errorKindStrings[p]; ok {
		return s
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(p))
}

// KindError 带分类的错误,Err为底层的原因
type KindError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *KindError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.String()
}

// Unwrap returns the cause
func (e *KindError) Unwrap() error {
	return e.Err
}

// Is matches any *KindError of the same kind, so errors.Is(err, ErrStoreUnavailable) works on wrapped errors
func (e *KindError) Is(target error) bool {
	t, ok := target.(*KindError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// 分类的哨兵错误,用于errors.Is
var (
	ErrMissingConfiguration = &KindError{Kind: KindMissingConfiguration}
	ErrValidation           = &KindError{Kind: KindValidation}
	ErrStoreUnavailable     = &KindError{Kind: KindStoreUnavailable}
	ErrStoreCorrupt         = &KindError{Kind: KindStoreCorrupt}
	ErrDuplicateID          = &KindError{Kind: KindDuplicateID}
)

// NewError 创建分类错误
func NewError(kind ErrorKind, err error, msg string) *KindError {
	return &KindError{Kind: kind, Msg: msg, Err: err}
}

// NewErrorf 使用fmt.Sprintf构建错误信息
func NewErrorf(kind ErrorKind, err error, msgFormat string, args ...interface{}) *KindError {
	return &KindError{Kind: kind, Msg: fmt.Sprintf(msgFormat, args...), Err: err}
}

// KindOf 取得err链上第一个*KindError的分类
func KindOf(err error) ErrorKind {
	var e *KindError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
