package common

import (
	"strings"
	"unicode/utf8"
)

// StrValidator 字符串验证器
type StrValidator interface {
	// Validate 验证字符串参数是否符合规则
	Validate(param string) bool
}

// StringLenValidator 字符串长度验证,单位字节
type StringLenValidator struct {
	Min int //最小长度
	Max int //最大长度,<=0表示不限制
}

// Validate 验证字符串的长度
func (p *StringLenValidator) Validate(param string) bool {
	strLen := len(param)
	if strLen < p.Min {
		return false
	}
	return p.Max <= 0 || strLen <= p.Max
}

// NotEmptyValidator 非空
type NotEmptyValidator struct {
}

// Validate 验证字符串去掉空白后是否为空
func (p *NotEmptyValidator) Validate(param string) bool {
	if len(param) == 0 {
		return false
	}
	return len(strings.TrimSpace(param)) > 0
}

// UTF8Validator 合法的UTF-8
type UTF8Validator struct {
}

// Validate 验证字符串是否为合法的UTF-8
func (p *UTF8Validator) Validate(param string) bool {
	return utf8.ValidString(param)
}

// ValidateRule 一组验证器和验证失败时的描述
type ValidateRule struct {
	Desc       string
	Validators []StrValidator
}

// Validate 依次执行验证器,失败时返回Validation错误
func (p *ValidateRule) Validate(value string) error {
	for _, v := range p.Validators {
		if !v.Validate(value) {
			return NewError(KindValidation, nil, p.Desc)
		}
	}
	return nil
}

// ValidatePair 定义验证规则及其需要验证的值
type ValidatePair struct {
	Rule  *ValidateRule
	Value string
}

// ValidateAll 验证所有的规则,返回第一个失败
func ValidateAll(pairs ...*ValidatePair) error {
	for _, pair := range pairs {
		if err := pair.Rule.Validate(pair.Value); err != nil {
			return err
		}
	}
	return nil
}
