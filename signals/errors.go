package signals

import (
	"errors"
	"fmt"
)

// ErrInvalidSignal 信号字段不合法
var ErrInvalidSignal = errors.New("invalid signal")

// ValidationError 信号字段校验失败
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid signal: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidSignal
}

// PersistenceError 存储读写失败，整个对账流程中止
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceError(op string, err error) error {
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
