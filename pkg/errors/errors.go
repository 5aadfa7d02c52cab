package errors

import (
	stderrors "errors"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the supplied message and the current stack.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// NewWithReport 创建错误并上报
func NewWithReport(msg string) error {
	err := pkgerrors.New(msg)
	report(err)
	return err
}

// Errorf formats according to a format specifier and records the stack.
func Errorf(format string, args ...interface{}) error {
	return pkgerrors.Errorf(format, args...)
}

// ErrorfAndReport 格式化创建错误并上报
func ErrorfAndReport(format string, args ...interface{}) error {
	err := pkgerrors.Errorf(format, args...)
	report(err)
	return err
}

// Wrap returns nil when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrap(err, msg)
}

func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return pkgerrors.Wrapf(err, format, args...)
}

// WrapAndReport 包装错误并上报，err为nil时返回nil
func WrapAndReport(err error, msg string) error {
	if err == nil {
		return nil
	}
	err = pkgerrors.Wrap(err, msg)
	report(err)
	return err
}

func WrapfAndReport(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	err = pkgerrors.Wrapf(err, format, args...)
	report(err)
	return err
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithStack(err)
}

func WithStackAndReport(err error) error {
	if err == nil {
		return nil
	}
	err = pkgerrors.WithStack(err)
	report(err)
	return err
}

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// Cause returns the innermost error of a pkg/errors chain.
func Cause(err error) error {
	return pkgerrors.Cause(err)
}
